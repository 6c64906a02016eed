package vla

import (
	"context"

	"github.com/fleetmind/go-vla/pkg/embodiment"
)

// InferenceClient is the controller-side contract for a remote VLA
// inference endpoint. The controller holds up to two instances (cloud
// primary, edge fallback) and talks to exactly one at a time.
type InferenceClient interface {
	// Connect establishes the session with the endpoint.
	Connect(ctx context.Context) error

	// Predict turns an observation into a batch of future actions.
	Predict(ctx context.Context, obs Observation) (*ActionChunk, error)

	// Close releases the connection. Must be safe to call more than once.
	Close() error

	// Metrics returns best-effort client statistics. Implementations
	// always return a value; fields are zero when unknown.
	Metrics() ClientMetrics
}

// ClientMetrics is the always-present metrics snapshot of an inference
// client.
type ClientMetrics struct {
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
	Requests      uint64  `json:"requests"`
	Failures      uint64  `json:"failures"`
}

// EmbodimentLoader resolves embodiment tags for the controller. Loaders are
// injected at construction and scoped to the controller's lifetime.
type EmbodimentLoader interface {
	Load(tag string) (*embodiment.Config, error)
	Default() *embodiment.Config
}
