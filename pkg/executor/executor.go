// Package executor contains robot-side action sinks for the control loop.
// HTTPDriver posts joint targets to a robot daemon's HTTP API; Recorder
// captures actions in memory for tests and dry runs.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fleetmind/go-vla/internal/httpc"
	"github.com/fleetmind/go-vla/pkg/vla"
)

// DefaultCommandTimeout bounds a single joint-command POST so a stuck
// daemon fails one tick, not the loop.
const DefaultCommandTimeout = 500 * time.Millisecond

// HTTPDriver implements vla.Executor against a robot daemon's HTTP API.
type HTTPDriver struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu       sync.Mutex
	lastObs  vla.Observation
	observed bool
}

// NewHTTPDriver creates a driver for the daemon at baseURL
// (e.g. "http://10.0.0.12:8000").
func NewHTTPDriver(baseURL string, logger *slog.Logger) *HTTPDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDriver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpc.NewClient(DefaultCommandTimeout),
		logger:  logger.With("component", "executor"),
	}
}

type jointCommand struct {
	JointPositions []float64 `json:"joint_positions"`
	Gripper        float64   `json:"gripper"`
	Timestamp      float64   `json:"timestamp"`
}

// Execute posts one action to the daemon's command route.
func (d *HTTPDriver) Execute(action vla.Action) error {
	cmd := jointCommand{
		JointPositions: action.JointCommands,
		Gripper:        action.GripperCommand,
		Timestamp:      action.Timestamp,
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode joint command: %w", err)
	}

	resp, err := d.http.Post(d.baseURL+"/api/joints/command",
		"application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("joint command failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("joint command rejected: %s: %s",
			resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// JointState is the daemon's reported arm state.
type JointState struct {
	JointPositions  []float64 `json:"joint_positions"`
	JointVelocities []float64 `json:"joint_velocities"`
	Gripper         float64   `json:"gripper"`
	Timestamp       float64   `json:"timestamp"`
}

// State reads the daemon's current joint state.
func (d *HTTPDriver) State(ctx context.Context) (*JointState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.baseURL+"/api/joints/state", nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("joint state request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("joint state request rejected: %s", resp.Status)
	}

	var state JointState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode joint state: %w", err)
	}
	return &state, nil
}

// Observe adapts State into the controller's observation contract. On a
// failed read it logs and returns the last good observation so a transient
// daemon hiccup does not poison the next inference request.
func (d *HTTPDriver) Observe() vla.Observation {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCommandTimeout)
	defer cancel()

	state, err := d.State(ctx)
	if err != nil {
		d.logger.Warn("observation read failed, reusing last state", "error", err)
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.lastObs
	}

	obs := vla.Observation{
		JointPositions:  state.JointPositions,
		JointVelocities: state.JointVelocities,
		Timestamp:       state.Timestamp,
	}

	d.mu.Lock()
	d.lastObs = obs
	d.observed = true
	d.mu.Unlock()
	return obs
}

var _ vla.Executor = (*HTTPDriver)(nil)
var _ vla.ObservationSource = (*HTTPDriver)(nil)

// Recorder implements vla.Executor by capturing actions in memory. Tests
// and the CLI's dry-run mode use it in place of a real robot.
type Recorder struct {
	// FailAfter makes Execute return an error once this many actions have
	// been recorded, when positive.
	FailAfter int

	mu      sync.Mutex
	actions []vla.Action
}

// Execute records the action.
func (r *Recorder) Execute(action vla.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAfter > 0 && len(r.actions) >= r.FailAfter {
		return fmt.Errorf("recorder full after %d actions", r.FailAfter)
	}
	r.actions = append(r.actions, action.Clone())
	return nil
}

// Actions returns a copy of everything recorded so far.
func (r *Recorder) Actions() []vla.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vla.Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Len returns the number of recorded actions.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

// Last returns the most recent action, or false when empty.
func (r *Recorder) Last() (vla.Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.actions) == 0 {
		return vla.Action{}, false
	}
	return r.actions[len(r.actions)-1].Clone(), true
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = nil
}

var _ vla.Executor = (*Recorder)(nil)
