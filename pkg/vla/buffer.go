package vla

import "sync"

// BufferLevel classifies the buffer fill state.
type BufferLevel string

// Buffer fill levels, derived from count/capacity versus the configured
// thresholds.
const (
	LevelEmpty  BufferLevel = "empty"
	LevelLow    BufferLevel = "low"
	LevelNormal BufferLevel = "normal"
	LevelFull   BufferLevel = "full"
)

// Default buffer tuning. Capacity matches one inference chunk so a single
// predict call can refill an empty buffer exactly.
const (
	DefaultBufferCapacity    = 16
	DefaultLowThreshold      = 0.25
	DefaultPrefetchThreshold = 0.5
)

// BufferStats is a point-in-time snapshot of the buffer.
type BufferStats struct {
	Count         int         `json:"count"`
	Capacity      int         `json:"capacity"`
	Level         BufferLevel `json:"level"`
	FillRatio     float64     `json:"fill_ratio"`
	UnderrunCount uint64      `json:"underrun_count"`
}

// Buffer is a bounded, time-ordered FIFO of pending actions. It is the
// latency-hiding mechanism of the control loop: all operations are O(1),
// synchronous, and never block, so tick timing is unaffected by network
// variance. One tick-loop reader may race with one prefetch writer; a
// mutex guards the queue.
type Buffer struct {
	mu                sync.Mutex
	queue             []Action
	capacity          int
	lowThreshold      float64
	prefetchThreshold float64
	underrunCount     uint64
	prefetchRequested bool

	// notify, when set, receives buffer fill events. Invoked after the
	// lock is released, so callbacks may safely query the buffer.
	notify func(EventKind)
}

// NewBuffer creates a buffer with the given capacity and thresholds.
// Non-positive or out-of-range arguments fall back to the defaults.
func NewBuffer(capacity int, lowThreshold, prefetchThreshold float64) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	if lowThreshold <= 0 || lowThreshold >= 1 {
		lowThreshold = DefaultLowThreshold
	}
	if prefetchThreshold <= 0 || prefetchThreshold >= 1 {
		prefetchThreshold = DefaultPrefetchThreshold
	}
	return &Buffer{
		queue:             make([]Action, 0, capacity),
		capacity:          capacity,
		lowThreshold:      lowThreshold,
		prefetchThreshold: prefetchThreshold,
	}
}

// SetNotify registers a fill-event callback. Pass nil to disable.
func (b *Buffer) SetNotify(fn func(EventKind)) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

// Push appends actions up to the remaining capacity and returns how many
// were actually added. Excess actions are silently dropped. Crossing back
// above the prefetch threshold clears the prefetch-requested flag and fires
// a refill event; reaching capacity fires a full event.
func (b *Buffer) Push(actions []Action) int {
	b.mu.Lock()

	room := b.capacity - len(b.queue)
	if room <= 0 {
		b.mu.Unlock()
		return 0
	}

	added := len(actions)
	if added > room {
		added = room
	}

	before := b.fillRatioLocked()
	b.queue = append(b.queue, actions[:added]...)
	after := b.fillRatioLocked()

	var fired []EventKind
	if after >= b.prefetchThreshold && before < b.prefetchThreshold {
		b.prefetchRequested = false
		fired = append(fired, EventBufferRefill)
	}
	if len(b.queue) == b.capacity {
		fired = append(fired, EventBufferFull)
	}
	notify := b.notify
	b.mu.Unlock()

	b.fire(notify, fired)
	return added
}

// Pop removes and returns the oldest action, or nil if the buffer is empty.
// Every nil result counts as an underrun and fires an empty event. A pop
// that leaves the fill ratio below the low threshold fires a low event.
func (b *Buffer) Pop() *Action {
	b.mu.Lock()

	if len(b.queue) == 0 {
		b.underrunCount++
		notify := b.notify
		b.mu.Unlock()
		b.fire(notify, []EventKind{EventBufferEmpty})
		return nil
	}

	a := b.queue[0]
	b.queue = b.queue[1:]

	var fired []EventKind
	if b.fillRatioLocked() < b.lowThreshold {
		fired = append(fired, EventBufferLow)
	}
	notify := b.notify
	b.mu.Unlock()

	b.fire(notify, fired)
	return &a
}

// Peek returns the oldest action without removing it, or nil if empty.
func (b *Buffer) Peek() *Action {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil
	}
	a := b.queue[0]
	return &a
}

// Clear empties the queue and re-arms the prefetch trigger. Counters are
// preserved.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.queue = b.queue[:0]
	b.prefetchRequested = false
	b.mu.Unlock()
}

// Count returns the number of buffered actions.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Capacity returns the fixed buffer capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// NeedsPrefetch reports whether the fill ratio is below the prefetch
// threshold and no prefetch has been requested yet.
func (b *Buffer) NeedsPrefetch() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fillRatioLocked() < b.prefetchThreshold && !b.prefetchRequested
}

// MarkPrefetchRequested suppresses further prefetch triggers until the
// buffer refills above the prefetch threshold (or the mark is cleared).
func (b *Buffer) MarkPrefetchRequested() {
	b.mu.Lock()
	b.prefetchRequested = true
	b.mu.Unlock()
}

// ClearPrefetchRequested re-enables prefetch triggers. Called when a prefetch
// completes, so a small or failed refill cannot permanently block the next one.
func (b *Buffer) ClearPrefetchRequested() {
	b.mu.Lock()
	b.prefetchRequested = false
	b.mu.Unlock()
}

// Stats returns a snapshot of the buffer state.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		Count:         len(b.queue),
		Capacity:      b.capacity,
		Level:         b.levelLocked(),
		FillRatio:     b.fillRatioLocked(),
		UnderrunCount: b.underrunCount,
	}
}

// UnderrunCount returns how many pops found the buffer empty.
func (b *Buffer) UnderrunCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.underrunCount
}

func (b *Buffer) fillRatioLocked() float64 {
	return float64(len(b.queue)) / float64(b.capacity)
}

func (b *Buffer) levelLocked() BufferLevel {
	switch {
	case len(b.queue) == 0:
		return LevelEmpty
	case len(b.queue) == b.capacity:
		return LevelFull
	case b.fillRatioLocked() < b.lowThreshold:
		return LevelLow
	default:
		return LevelNormal
	}
}

func (b *Buffer) fire(notify func(EventKind), kinds []EventKind) {
	if notify == nil {
		return
	}
	for _, k := range kinds {
		notify(k)
	}
}
