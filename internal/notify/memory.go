package notify

import "sync"

// MemorySink stores events in-memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Publish(e Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many events of kind k were recorded.
func (m *MemorySink) Count(k Kind) int {
	n := 0
	for _, e := range m.Events() {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Tasks returns the Task field of every startProgress event, in order.
func (m *MemorySink) Tasks() []string {
	var out []string
	for _, e := range m.Events() {
		if e.Kind == KindStartProgress {
			out = append(out, e.Task)
		}
	}
	return out
}
