// Package gateway exposes the practice session engine over HTTP and
// WebSocket: session creation, the trainee call handshake, lifecycle
// controls, the live event feed, and the leave beacon.
package gateway

import (
	"sync"

	"github.com/parley-labs/parley/internal/practice"
)

const subscriberBuffer = 64

// Hub fans session events out to WebSocket subscribers. It satisfies
// practice.EventSink; Publish never blocks, a slow subscriber loses events
// rather than stalling the session.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	events chan practice.Event
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

func (h *Hub) Publish(evt practice.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[evt.SessionID] {
		select {
		case sub.events <- evt:
		default:
		}
	}
}

// Subscribe returns a channel of events for one session, plus a cancel
// function. The channel closes on cancel.
func (h *Hub) Subscribe(sessionID string) (<-chan practice.Event, func()) {
	sub := &subscriber{events: make(chan practice.Event, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.mu.Unlock()
		sub.close()
	}
	return sub.events, cancel
}

func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
