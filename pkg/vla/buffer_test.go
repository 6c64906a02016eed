package vla

import (
	"sync"
	"testing"
)

func makeActions(n int, startTime float64) []Action {
	actions := make([]Action, n)
	for i := range actions {
		actions[i] = Action{
			JointCommands: []float64{float64(i), float64(i) * 0.1},
			Timestamp:     startTime + float64(i)*0.02,
		}
	}
	return actions
}

func TestBuffer_PushRespectsCapacity(t *testing.T) {
	b := NewBuffer(4, 0.25, 0.5)

	added := b.Push(makeActions(10, 0))
	if added != 4 {
		t.Errorf("added: got %d, want 4", added)
	}
	if b.Count() != 4 {
		t.Errorf("count: got %d, want 4", b.Count())
	}

	// Full buffer accepts nothing.
	added = b.Push(makeActions(1, 100))
	if added != 0 {
		t.Errorf("added to full buffer: got %d, want 0", added)
	}
}

func TestBuffer_PopReturnsFIFO(t *testing.T) {
	b := NewBuffer(8, 0.25, 0.5)
	b.Push(makeActions(3, 0))

	for i := 0; i < 3; i++ {
		a := b.Pop()
		if a == nil {
			t.Fatalf("pop %d returned nil", i)
		}
		if a.JointCommands[0] != float64(i) {
			t.Errorf("pop %d: got joint %v, want %v", i, a.JointCommands[0], float64(i))
		}
	}
}

func TestBuffer_PopEmptyCountsUnderrun(t *testing.T) {
	b := NewBuffer(4, 0.25, 0.5)

	if a := b.Pop(); a != nil {
		t.Errorf("pop on empty: got %v, want nil", a)
	}
	if a := b.Pop(); a != nil {
		t.Errorf("second pop on empty: got %v, want nil", a)
	}
	if b.UnderrunCount() != 2 {
		t.Errorf("underrun count: got %d, want 2", b.UnderrunCount())
	}
}

func TestBuffer_NeedsPrefetchBelowThreshold(t *testing.T) {
	b := NewBuffer(16, 0.25, 0.5)

	if !b.NeedsPrefetch() {
		t.Error("empty buffer should need prefetch")
	}

	b.Push(makeActions(16, 0))
	if b.NeedsPrefetch() {
		t.Error("full buffer should not need prefetch")
	}

	// Drain to 7 of 16 (43%), below the 50% threshold.
	for i := 0; i < 9; i++ {
		b.Pop()
	}
	if !b.NeedsPrefetch() {
		t.Error("buffer below prefetch threshold should need prefetch")
	}
}

func TestBuffer_MarkPrefetchSuppressesTrigger(t *testing.T) {
	b := NewBuffer(16, 0.25, 0.5)

	b.MarkPrefetchRequested()
	if b.NeedsPrefetch() {
		t.Error("marked buffer should not need prefetch")
	}

	// Refilling above the threshold clears the mark.
	b.Push(makeActions(16, 0))
	for i := 0; i < 9; i++ {
		b.Pop()
	}
	if !b.NeedsPrefetch() {
		t.Error("refill should have cleared the prefetch mark")
	}
}

func TestBuffer_ClearPrefetchReenablesTrigger(t *testing.T) {
	b := NewBuffer(16, 0.25, 0.5)

	b.MarkPrefetchRequested()
	b.ClearPrefetchRequested()
	if !b.NeedsPrefetch() {
		t.Error("cleared buffer should need prefetch again")
	}
}

func TestBuffer_Events(t *testing.T) {
	b := NewBuffer(4, 0.3, 0.5)

	var mu sync.Mutex
	var events []EventKind
	b.SetNotify(func(kind EventKind) {
		mu.Lock()
		events = append(events, kind)
		mu.Unlock()
	})

	b.Push(makeActions(4, 0)) // refill + full
	b.Pop()                   // 3/4, above low
	b.Pop()                   // 2/4
	b.Pop()                   // 1/4 -> low
	b.Pop()                   // 0/4 -> low
	b.Pop()                   // empty

	mu.Lock()
	defer mu.Unlock()

	want := []EventKind{
		EventBufferRefill, EventBufferFull,
		EventBufferLow, EventBufferLow, EventBufferEmpty,
	}
	if len(events) != len(want) {
		t.Fatalf("events: got %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, events[i], want[i])
		}
	}
}

func TestBuffer_NotifyMayQueryBuffer(t *testing.T) {
	b := NewBuffer(4, 0.25, 0.5)

	// Callbacks run outside the lock, so Stats must not deadlock.
	b.SetNotify(func(EventKind) {
		_ = b.Stats()
	})
	b.Push(makeActions(4, 0))
	b.Pop()
}

func TestBuffer_StatsLevels(t *testing.T) {
	b := NewBuffer(4, 0.3, 0.5)

	if got := b.Stats().Level; got != LevelEmpty {
		t.Errorf("level: got %v, want %v", got, LevelEmpty)
	}

	b.Push(makeActions(1, 0))
	if got := b.Stats().Level; got != LevelLow {
		t.Errorf("level: got %v, want %v", got, LevelLow)
	}

	b.Push(makeActions(2, 1))
	if got := b.Stats().Level; got != LevelNormal {
		t.Errorf("level: got %v, want %v", got, LevelNormal)
	}

	b.Push(makeActions(1, 2))
	if got := b.Stats().Level; got != LevelFull {
		t.Errorf("level: got %v, want %v", got, LevelFull)
	}
}

func TestBuffer_ClearReenablesPrefetch(t *testing.T) {
	b := NewBuffer(16, 0.25, 0.5)

	b.MarkPrefetchRequested()
	b.Clear()
	if !b.NeedsPrefetch() {
		t.Error("clear should re-arm the prefetch trigger")
	}
}

func TestBuffer_ClearKeepsCounters(t *testing.T) {
	b := NewBuffer(4, 0.25, 0.5)
	b.Pop() // underrun
	b.Push(makeActions(3, 0))
	b.Clear()

	if b.Count() != 0 {
		t.Errorf("count after clear: got %d, want 0", b.Count())
	}
	if b.UnderrunCount() != 1 {
		t.Errorf("underrun count after clear: got %d, want 1", b.UnderrunCount())
	}
}

func TestBuffer_ConcurrentPushPop(t *testing.T) {
	b := NewBuffer(16, 0.25, 0.5)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			b.Push(makeActions(4, float64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 400; i++ {
			b.Pop()
		}
	}()
	wg.Wait()

	if c := b.Count(); c < 0 || c > 16 {
		t.Errorf("count out of bounds after concurrent use: %d", c)
	}
}
