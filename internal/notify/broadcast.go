package notify

import "sync"

// Broadcaster fans every event out to zero or more sinks.
type Broadcaster struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewBroadcaster(sinks ...Sink) *Broadcaster {
	b := &Broadcaster{}
	for _, s := range sinks {
		b.Add(s)
	}
	return b
}

// Add registers s. Nil sinks are ignored.
func (b *Broadcaster) Add(s Sink) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		s.Publish(e)
	}
}
