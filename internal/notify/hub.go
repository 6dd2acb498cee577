package notify

import "sync"

const defaultSubscriberBuffer = 256

// Hub hands events to streaming subscribers. Each subscriber owns a bounded
// channel; when it is full the event is dropped for that subscriber only.
type Hub struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Event
	bufSize int
	dropped uint64
}

// NewHub creates a hub whose subscribers buffer up to bufSize events.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[int]chan Event), bufSize: bufSize}
}

// Subscribe returns a receive channel and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped++
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
