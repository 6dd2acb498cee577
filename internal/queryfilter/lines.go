package queryfilter

import "strings"

// LineSplitter turns arbitrary output chunks into discrete lines.
// "\r\n", "\n" and a bare "\r" all terminate a line; terminal output from a
// pseudo-terminal uses "\r\n".
type LineSplitter struct {
	buf    strings.Builder
	pendCR bool
	emit   func(string)
}

func NewLineSplitter(emit func(string)) *LineSplitter {
	return &LineSplitter{emit: emit}
}

// Write implements io.Writer.
func (s *LineSplitter) Write(p []byte) (int, error) {
	for _, b := range p {
		switch b {
		case '\n':
			if s.pendCR {
				s.pendCR = false
				continue
			}
			s.flushLine()
		case '\r':
			s.flushLine()
			s.pendCR = true
		default:
			s.pendCR = false
			s.buf.WriteByte(b)
		}
	}
	return len(p), nil
}

func (s *LineSplitter) flushLine() {
	line := s.buf.String()
	s.buf.Reset()
	s.emit(line)
}

// Flush emits any buffered partial line.
func (s *LineSplitter) Flush() {
	s.pendCR = false
	if s.buf.Len() > 0 {
		s.flushLine()
	}
}
