// Package queryfilter extracts the generated text from the raw output of the
// inference binary.
//
// The binary prints a banner and model loading diagnostics, then a line
// containing "sampling parameters:", then the generated text, then timing
// statistics starting with a "mem per token" line. Only the text between the
// two markers is forwarded.
package queryfilter

import "regexp"

// State of a Filter.
type State int

const (
	NotStarted State = iota
	Streaming
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Streaming:
		return "streaming"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

var (
	startMarker = regexp.MustCompile(`sampling parameters:`)
	endMarker   = regexp.MustCompile(`mem per token`)
)

// Result tells the caller what to do with the line just fed.
type Result struct {
	// Forward is true when the line belongs to the generated text.
	Forward bool
	// Terminal is true exactly once: on the first end marker.
	Terminal bool
}

// Filter is a single-use state machine for one query invocation.
// It is not safe for concurrent use.
type Filter struct {
	state State
	// signaled guards the terminal result; the end marker text can show up more than once.
	signaled bool
}

func New() *Filter { return &Filter{} }

func (f *Filter) State() State { return f.state }

// Signaled reports whether the terminal result was already returned.
func (f *Filter) Signaled() bool { return f.signaled }

// Feed advances the state machine with one line.
func (f *Filter) Feed(line string) Result {
	var r Result
	if endMarker.MatchString(line) {
		f.state = Ended
	}
	switch f.state {
	case Streaming:
		r.Forward = true
	case Ended:
		if !f.signaled {
			f.signaled = true
			r.Terminal = true
		}
	}
	// The start marker line itself is never forwarded.
	if f.state == NotStarted && startMarker.MatchString(line) {
		f.state = Streaming
	}
	return r
}
