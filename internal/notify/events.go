// Package notify carries pipeline notifications to whoever is listening:
// a desktop shell, the HTTP event stream, or the CLI console.
package notify

import "time"

// Kind enumerates the notification variants.
type Kind string

const (
	KindProgress      Kind = "progress"
	KindStartProgress Kind = "startProgress"
	KindOutput        Kind = "output"
	KindFinished      Kind = "finished"
	KindQueryFinished Kind = "queryFinished"
)

// Level tags output lines.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Event is one notification. Only the fields relevant to Kind are set.
// Percent is always encoded so a progress reset to 0 reaches listeners.
type Event struct {
	Kind    Kind      `json:"kind"`
	Task    string    `json:"task,omitempty"`
	Percent float64   `json:"percent"`
	Line    string    `json:"line,omitempty"`
	Level   Level     `json:"level,omitempty"`
	RunID   string    `json:"run_id,omitempty"`
	Time    time.Time `json:"time"`
}

// Sink receives events. Publish is fire-and-forget: implementations must not
// block the caller for long and must not panic.
type Sink interface {
	Publish(Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }
