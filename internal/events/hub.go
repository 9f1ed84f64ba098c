package events

import (
	"sync"
)

// subscriberBuffer bounds each subscriber's queue. A subscriber that
// falls this far behind starts losing events; SSE clients recover by
// refetching state.
const subscriberBuffer = 64

// Hub is an in-process fan-out of Events. Subscribers register for a
// single project's stream, or for all projects with the empty ID.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	closed      bool
}

var _ Publisher = (*Hub)(nil)

// Subscriber receives events for one project through C.
type Subscriber struct {
	C         chan Event
	projectID string
	hub       *Hub
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]struct{})}
}

// Subscribe registers a subscriber for the given project's events. An
// empty projectID subscribes to every project. The caller must Close
// the subscriber when done.
func (h *Hub) Subscribe(projectID string) *Subscriber {
	sub := &Subscriber{
		C:         make(chan Event, subscriberBuffer),
		projectID: projectID,
		hub:       h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.C)
		return sub
	}
	h.subscribers[sub] = struct{}{}
	return sub
}

// Close unregisters the subscriber and closes its channel.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subscribers[s]; ok {
		delete(s.hub.subscribers, s)
		close(s.C)
	}
}

// Publish implements Publisher. Delivery is best-effort: a subscriber
// with a full buffer misses the event rather than blocking the worker.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		if sub.projectID != "" && sub.projectID != event.ProjectID {
			continue
		}
		select {
		case sub.C <- event:
		default:
		}
	}
}

// Shutdown closes every subscriber channel and rejects new subscribers.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.C)
	}
}
