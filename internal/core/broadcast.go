package core

import (
	"sync"
	"time"
)

// Update is a single live notification pushed to subscribers when the engine
// derives new state.
type Update struct {
	Type      string      `json:"type"` // "event", "patterns", "anomalies"
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub fans engine updates out to subscribers. Publishing never blocks: a
// subscriber that falls behind loses its oldest queued updates, not the
// publisher's progress.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan Update
	nextID  int
	bufSize int
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Hub{
		subs:    make(map[int]chan Update),
		bufSize: bufSize,
	}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release the subscription; the channel is closed on cancel.
func (h *Hub) Subscribe() (<-chan Update, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Update, h.bufSize)
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the update to every subscriber, dropping the oldest
// queued update for any subscriber whose buffer is full.
func (h *Hub) Publish(u Update) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		for {
			select {
			case ch <- u:
			default:
				// Buffer full: evict the oldest and retry once.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribers returns the current subscriber count, for health output.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
