// Package notify fans history-changed signals out to presentation surfaces.
//
// An Event only tells a surface that its view is stale. It never carries clip
// content; surfaces refetch through the service.
package notify

import (
	"sync"
	"time"
)

// Reason says what kind of change happened.
type Reason string

const (
	ReasonCaptured Reason = "captured"
	ReasonDeleted  Reason = "deleted"
	ReasonPinned   Reason = "pinned"
	ReasonCleared  Reason = "cleared"
	ReasonExpired  Reason = "expired"
)

// Event is an invalidation hint.
type Event struct {
	Reason Reason    `json:"reason"`
	ClipID int64     `json:"clip_id,omitempty"`
	At     time.Time `json:"at"`
}

// Sink receives events. Notify must not block.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Notify implements Sink.
func (f SinkFunc) Notify(e Event) { f(e) }

// Hub delivers each published event to every registered sink.
type Hub struct {
	mu    sync.RWMutex
	next  uint64
	sinks map[uint64]Sink
	now   func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sinks: make(map[uint64]Sink), now: time.Now}
}

// Add registers a sink and returns a function that removes it.
func (h *Hub) Add(s Sink) (remove func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.sinks[id] = s
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.sinks, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of registered sinks.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Publish delivers e to all sinks. A zero At is stamped with the current time.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = h.now()
	}
	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.sinks))
	for _, s := range h.sinks {
		sinks = append(sinks, s)
	}
	h.mu.RUnlock()

	for _, s := range sinks {
		s.Notify(e)
	}
}

// ChanSink buffers at most one pending event. A burst of events collapses
// into the latest one, which is all an invalidate-and-refetch consumer needs.
type ChanSink struct {
	ch chan Event
}

// NewChanSink creates a coalescing channel sink.
func NewChanSink() *ChanSink {
	return &ChanSink{ch: make(chan Event, 1)}
}

// C returns the receive channel.
func (s *ChanSink) C() <-chan Event {
	return s.ch
}

// Notify implements Sink.
func (s *ChanSink) Notify(e Event) {
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
