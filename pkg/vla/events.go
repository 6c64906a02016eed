package vla

import (
	"sync"
	"time"
)

// EventKind identifies a lifecycle, buffer, or fallback notification.
type EventKind string

// Controller lifecycle and fallback events.
const (
	EventStarted          EventKind = "started"
	EventStopped          EventKind = "stopped"
	EventPaused           EventKind = "paused"
	EventResumed          EventKind = "resumed"
	EventUnderrun         EventKind = "underrun"
	EventFallbackHold     EventKind = "fallback:position-hold"
	EventFallbackRetract  EventKind = "fallback:safe-retract"
	EventEndpointSwitched EventKind = "endpoint:switched"
	EventError            EventKind = "error"
)

// Buffer fill-level events.
const (
	EventBufferLow    EventKind = "buffer:low"
	EventBufferEmpty  EventKind = "buffer:empty"
	EventBufferFull   EventKind = "buffer:full"
	EventBufferRefill EventKind = "buffer:refill"
)

// Event is one notification from the control loop. Delivery is synchronous
// and at most once per occurrence; subscribers must not block.
type Event struct {
	Kind      EventKind `json:"kind"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id,omitempty"`

	// Detail carries human-readable context (e.g. which endpoint became
	// active, or the failing operation for error events).
	Detail string `json:"detail,omitempty"`

	// Err is set for error events. Not serialized; Detail carries the text.
	Err error `json:"-"`
}

// Notifier is an explicit callback registry. It replaces implicit
// event-emitter dispatch with subscriptions scoped to the notifier instance.
type Notifier struct {
	mu   sync.RWMutex
	subs map[int]func(Event)
	next int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func(Event))}
}

// Subscribe registers fn for all future events and returns an unsubscribe
// function. fn is invoked synchronously from the publishing goroutine.
func (n *Notifier) Subscribe(fn func(Event)) (cancel func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// SubscriberCount returns the number of active subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Publish delivers e to every subscriber.
func (n *Notifier) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	n.mu.RLock()
	fns := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
