package notify

import "time"

// Emitter is the typed front of a Sink used by the pipeline.
type Emitter struct {
	sink  Sink
	runID string
	now   func() time.Time
}

// NewEmitter wraps sink. A nil sink discards.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = Discard{}
	}
	return &Emitter{sink: sink, now: time.Now}
}

// WithRunID returns a copy stamping every event with id.
func (e *Emitter) WithRunID(id string) *Emitter {
	c := *e
	c.runID = id
	return &c
}

func (e *Emitter) publish(ev Event) {
	ev.RunID = e.runID
	ev.Time = e.now()
	e.sink.Publish(ev)
}

func (e *Emitter) Progress(task string, percent float64) {
	e.publish(Event{Kind: KindProgress, Task: task, Percent: percent})
}

func (e *Emitter) StartProgress(task string) {
	e.publish(Event{Kind: KindStartProgress, Task: task})
}

func (e *Emitter) Output(line string, level Level) {
	if level == "" {
		level = LevelInfo
	}
	e.publish(Event{Kind: KindOutput, Line: line, Level: level})
}

func (e *Emitter) Finished() { e.publish(Event{Kind: KindFinished}) }

func (e *Emitter) QueryFinished() { e.publish(Event{Kind: KindQueryFinished}) }
