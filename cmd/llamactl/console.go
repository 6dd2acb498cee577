package main

import (
	"fmt"
	"io"
	"sync"

	"llamactl/internal/notify"
)

// consoleSink renders pipeline events for a terminal: task headers,
// process output and a single updating progress line.
type consoleSink struct {
	mu         sync.Mutex
	w          io.Writer
	inProgress bool
}

func (c *consoleSink) Publish(e notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Kind {
	case notify.KindStartProgress:
		c.endLine()
		fmt.Fprintf(c.w, "==> %s\n", e.Task)
	case notify.KindProgress:
		if e.Percent <= 0 {
			c.endLine()
			return
		}
		fmt.Fprintf(c.w, "\r    %s %3.0f%%", e.Task, e.Percent)
		c.inProgress = true
	case notify.KindOutput:
		c.endLine()
		if e.Level == notify.LevelError {
			fmt.Fprintf(c.w, "!! %s\n", e.Line)
			return
		}
		fmt.Fprintln(c.w, e.Line)
	case notify.KindFinished:
		c.endLine()
		fmt.Fprintln(c.w, "==> install finished")
	}
}

func (c *consoleSink) endLine() {
	if c.inProgress {
		fmt.Fprintln(c.w)
		c.inProgress = false
	}
}
