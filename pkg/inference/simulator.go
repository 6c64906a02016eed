package inference

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/fleetmind/go-vla/pkg/vla"
)

// Simulator default tuning, matching the latency profile of a small VLA
// model on datacenter hardware.
const (
	simChunkSize    = 16
	simActionDim    = 6
	simTickSec      = 0.02 // 50Hz action spacing
	simMinLatencyMs = 20
	simMaxLatencyMs = 50
)

// Simulator implements vla.InferenceClient without a model server. It
// generates smooth, physically plausible sinusoidal trajectories with
// continuity across chunks, and sleeps a randomized interval to mimic
// inference latency. Used by the CLI's sim mode and integration tests.
type Simulator struct {
	// ChunkSize is the number of actions per chunk (default 16).
	ChunkSize int

	// ActionDim is the number of joints (default 6).
	ActionDim int

	// Latency overrides the randomized latency when positive.
	Latency time.Duration

	metrics *Collector

	mu       sync.Mutex
	sequence int
	current  []float64
	closed   bool
}

// NewSimulator creates a simulator with default geometry.
func NewSimulator() *Simulator {
	return &Simulator{
		ChunkSize: simChunkSize,
		ActionDim: simActionDim,
		metrics:   NewCollector(),
	}
}

// Connect is a no-op for the simulator.
func (s *Simulator) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wrapErr("sim", ErrClosed)
	}
	return nil
}

// Predict generates one chunk of smooth actions continuing from the
// previous chunk's end state.
func (s *Simulator) Predict(ctx context.Context, obs vla.Observation) (*vla.ActionChunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, wrapErr("sim", ErrClosed)
	}
	s.mu.Unlock()

	latency := s.Latency
	if latency <= 0 {
		ms := simMinLatencyMs + rand.Float64()*(simMaxLatencyMs-simMinLatencyMs)
		latency = time.Duration(ms * float64(time.Millisecond))
	}

	start := time.Now()
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		s.metrics.RecordFailure()
		return nil, wrapErr("sim", ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chunkSize := s.ChunkSize
	if chunkSize <= 0 {
		chunkSize = simChunkSize
	}
	dim := s.ActionDim
	if dim <= 0 {
		dim = simActionDim
	}

	// Continue from the previous end state, or seed from the observation.
	if s.current == nil || len(s.current) != dim {
		s.current = make([]float64, dim)
		for i := 0; i < dim && i < len(obs.JointPositions); i++ {
			s.current[i] = clampUnit(obs.JointPositions[i])
		}
	}

	base := obs.Timestamp
	if base == 0 {
		base = float64(start.UnixNano()) / 1e9
	}

	actions := make([]vla.Action, chunkSize)
	for i := 0; i < chunkSize; i++ {
		phase := float64(s.sequence*chunkSize+i) * 0.1

		joints := make([]float64, dim)
		for j := range joints {
			delta := 0.02 * math.Sin(phase+float64(j)*0.5)
			s.current[j] = clampUnit(s.current[j] + delta)
			joints[j] = s.current[j]
		}

		gripper := 0.5 + 0.3*math.Sin(phase*0.3)
		if gripper < 0 {
			gripper = 0
		} else if gripper > 1 {
			gripper = 1
		}

		actions[i] = vla.Action{
			JointCommands:  joints,
			GripperCommand: gripper,
			Timestamp:      base + float64(i+1)*simTickSec,
		}
	}

	s.sequence++
	elapsed := time.Since(start)
	s.metrics.RecordSuccess(elapsed)

	return &vla.ActionChunk{
		Actions:         actions,
		InferenceTimeMs: float64(elapsed) / float64(time.Millisecond),
		ModelVersion:    "sim-0.1",
		Confidence:      0.9,
		SequenceNumber:  s.sequence,
	}, nil
}

// Close marks the simulator closed.
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Metrics returns the latency snapshot.
func (s *Simulator) Metrics() vla.ClientMetrics {
	return s.metrics.Snapshot()
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// Verify Simulator implements the controller contract at compile time.
var _ vla.InferenceClient = (*Simulator)(nil)
