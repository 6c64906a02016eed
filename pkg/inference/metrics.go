package inference

import (
	"sync"
	"time"

	"github.com/fleetmind/go-vla/pkg/vla"
)

// metricsAlpha is the EMA smoothing factor for the average latency.
const metricsAlpha = 0.2

// Collector tracks per-request latency and failure counts for one client.
// It is goroutine-safe; every transport embeds one so Metrics() always has
// a value to return.
type Collector struct {
	mu          sync.Mutex
	avgMs       float64
	lastMs      float64
	initialized bool
	requests    uint64
	failures    uint64
	history     []float64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{history: make([]float64, 0, 100)}
}

// RecordSuccess records one completed request with its round-trip time.
func (m *Collector) RecordSuccess(rtt time.Duration) {
	ms := float64(rtt) / float64(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	m.lastMs = ms
	if !m.initialized {
		m.avgMs = ms
		m.initialized = true
	} else {
		m.avgMs = metricsAlpha*ms + (1-metricsAlpha)*m.avgMs
	}

	m.history = append(m.history, ms)
	if len(m.history) > 100 {
		m.history = m.history[1:]
	}
}

// RecordFailure records one failed request.
func (m *Collector) RecordFailure() {
	m.mu.Lock()
	m.requests++
	m.failures++
	m.mu.Unlock()
}

// Snapshot returns the current metrics.
func (m *Collector) Snapshot() vla.ClientMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return vla.ClientMetrics{
		AvgLatencyMs:  m.avgMs,
		LastLatencyMs: m.lastMs,
		Requests:      m.requests,
		Failures:      m.failures,
	}
}

// P95 returns the 95th-percentile latency over the recent history, or zero
// with fewer than two samples.
func (m *Collector) P95() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) < 2 {
		return 0
	}

	// Insertion sort a copy; history is capped at 100 entries.
	sorted := make([]float64, len(m.history))
	copy(sorted, m.history)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Reset clears all recorded samples and counters.
func (m *Collector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avgMs = 0
	m.lastMs = 0
	m.initialized = false
	m.requests = 0
	m.failures = 0
	m.history = m.history[:0]
}
