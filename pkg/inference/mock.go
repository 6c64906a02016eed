package inference

import (
	"context"
	"sync"
	"time"

	"github.com/fleetmind/go-vla/pkg/vla"
)

// Mock implements vla.InferenceClient for testing. All methods can be
// customized via function fields; calls are recorded for verification.
type Mock struct {
	// ConnectFunc is called when Connect is invoked. If nil, returns nil.
	ConnectFunc func(ctx context.Context) error

	// PredictFunc is called when Predict is invoked. If nil, returns
	// ErrNotConnected.
	PredictFunc func(ctx context.Context, obs vla.Observation) (*vla.ActionChunk, error)

	// CloseFunc is called when Close is invoked. If nil, returns nil.
	CloseFunc func() error

	// MetricsFunc is called when Metrics is invoked. If nil, returns a
	// zero value.
	MetricsFunc func() vla.ClientMetrics

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method      string
	Observation vla.Observation
	Time        time.Time
}

// Connect calls ConnectFunc and records the call.
func (m *Mock) Connect(ctx context.Context) error {
	m.record("Connect", vla.Observation{})
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

// Predict calls PredictFunc and records the call.
func (m *Mock) Predict(ctx context.Context, obs vla.Observation) (*vla.ActionChunk, error) {
	m.record("Predict", obs)
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, obs)
	}
	return nil, wrapErr("mock", ErrNotConnected)
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", vla.Observation{})
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Metrics calls MetricsFunc, or returns a zero value.
func (m *Mock) Metrics() vla.ClientMetrics {
	if m.MetricsFunc != nil {
		return m.MetricsFunc()
	}
	return vla.ClientMetrics{}
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Mock) record(method string, obs vla.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Observation: obs, Time: time.Now()})
}

// WithChunks returns a mock that serves the given chunks in order, then
// repeats the last one.
func WithChunks(chunks ...*vla.ActionChunk) *Mock {
	var mu sync.Mutex
	next := 0
	return &Mock{
		PredictFunc: func(ctx context.Context, obs vla.Observation) (*vla.ActionChunk, error) {
			mu.Lock()
			defer mu.Unlock()
			i := next
			if i >= len(chunks) {
				i = len(chunks) - 1
			} else {
				next++
			}
			return chunks[i], nil
		},
	}
}

// WithError returns a mock whose Connect and Predict always fail with err.
func WithError(err error) *Mock {
	return &Mock{
		ConnectFunc: func(ctx context.Context) error { return err },
		PredictFunc: func(ctx context.Context, obs vla.Observation) (*vla.ActionChunk, error) {
			return nil, err
		},
	}
}

// Verify Mock implements the controller contract at compile time.
var _ vla.InferenceClient = (*Mock)(nil)
