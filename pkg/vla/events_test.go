package vla

import (
	"sync"
	"testing"
)

func TestNotifier_PublishReachesAllSubscribers(t *testing.T) {
	n := NewNotifier()

	var mu sync.Mutex
	got := make(map[int]int)
	for i := 0; i < 3; i++ {
		i := i
		n.Subscribe(func(e Event) {
			mu.Lock()
			got[i]++
			mu.Unlock()
		})
	}

	n.Publish(Event{Kind: EventStarted})
	n.Publish(Event{Kind: EventStopped})

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 3; i++ {
		if got[i] != 2 {
			t.Errorf("subscriber %d: got %d events, want 2", i, got[i])
		}
	}
}

func TestNotifier_CancelStopsDelivery(t *testing.T) {
	n := NewNotifier()

	var mu sync.Mutex
	count := 0
	cancel := n.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	n.Publish(Event{Kind: EventStarted})
	cancel()
	n.Publish(Event{Kind: EventStopped})

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("events after cancel: got %d, want 1", count)
	}
	if n.SubscriberCount() != 0 {
		t.Errorf("subscriber count: got %d, want 0", n.SubscriberCount())
	}
}

func TestNotifier_PublishSetsTime(t *testing.T) {
	n := NewNotifier()

	var got Event
	n.Subscribe(func(e Event) { got = e })
	n.Publish(Event{Kind: EventUnderrun})

	if got.Time.IsZero() {
		t.Error("publish should stamp a zero time")
	}
}

func TestNotifier_SubscribeDuringPublish(t *testing.T) {
	n := NewNotifier()

	// Subscribing from inside a callback must not deadlock.
	n.Subscribe(func(e Event) {
		if e.Kind == EventStarted {
			n.Subscribe(func(Event) {})
		}
	})
	n.Publish(Event{Kind: EventStarted})

	if n.SubscriberCount() != 2 {
		t.Errorf("subscriber count: got %d, want 2", n.SubscriberCount())
	}
}
