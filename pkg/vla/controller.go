package vla

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmind/go-vla/pkg/embodiment"
)

// Mode is the controller lifecycle state.
type Mode string

// Controller modes. Transitions: inactive -> active <-> paused -> stopped
// -> inactive. Start on any mode other than inactive fails.
const (
	ModeInactive Mode = "inactive"
	ModeActive   Mode = "active"
	ModePaused   Mode = "paused"
	ModeStopped  Mode = "stopped"
)

// Endpoint identifies which inference client is active.
type Endpoint string

// Inference endpoints. Cloud is primary; edge is the hot standby.
const (
	EndpointCloud Endpoint = "cloud"
	EndpointEdge  Endpoint = "edge"
)

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Mode              Mode        `json:"mode"`
	SessionID         string      `json:"session_id,omitempty"`
	Instruction       string      `json:"instruction,omitempty"`
	EmbodimentTag     string      `json:"embodiment_tag,omitempty"`
	Buffer            BufferStats `json:"buffer"`
	RTTEstimateMs     float64     `json:"rtt_estimate_ms"`
	ClockOffsetSec    float64     `json:"clock_offset_sec"`
	LastInferenceMs   float64     `json:"last_inference_ms"`
	LastActionAt      time.Time   `json:"last_action_at"`
	UnderrunCount     uint64      `json:"underrun_count"`
	ExecErrorCount    uint64      `json:"exec_error_count"`
	TickCount         uint64      `json:"tick_count"`
	UsingEdgeFallback bool        `json:"using_edge_fallback"`
}

// Controller drives a robot at a fixed cadence from remote VLA predictions.
// It owns the action buffer, the interpolator, and up to two inference
// clients (cloud primary, edge fallback), and implements the mode state
// machine, the prefetch trigger, and the underrun fallback cascade.
//
// A Controller is reusable across sessions but not reentrant: Start while
// not inactive returns ErrAlreadyRunning.
type Controller struct {
	cfg      *Config
	logger   *slog.Logger
	loader   EmbodimentLoader
	cloud    InferenceClient
	edge     InferenceClient
	buffer   *Buffer
	interp   *Interpolator
	notifier *Notifier

	mu               sync.Mutex
	mode             Mode
	starting         bool
	instruction      string
	sessionID        string
	emb              *embodiment.Config
	exec             Executor
	obs              ObservationSource
	active           Endpoint
	lastAction       *Action
	lastActionTime   time.Time
	underrunActive   bool
	underrunSince    time.Time
	holdNotified     bool
	retractAction    *Action
	prefetchInFlight bool
	lastInferenceMs  float64
	tickCount        uint64
	execErrors       uint64
	dimMismatches    uint64
	stop             chan struct{}
	done             chan struct{}

	prefetchWG sync.WaitGroup
}

// New creates a controller. cloud is the primary inference client; edge may
// be nil when no fallback endpoint is configured.
func New(loader EmbodimentLoader, cloud, edge InferenceClient, opts ...Option) *Controller {
	cfg := DefaultControllerConfig()
	cfg.apply(opts...)

	c := &Controller{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "vla.controller"),
		loader:   loader,
		cloud:    cloud,
		edge:     edge,
		buffer:   NewBuffer(cfg.BufferCapacity, cfg.LowThreshold, cfg.PrefetchThreshold),
		interp:   NewInterpolator(cfg.Method),
		notifier: NewNotifier(),
		mode:     ModeInactive,
		active:   EndpointCloud,
	}
	c.interp.SetAlpha(cfg.RTTAlpha)
	c.buffer.SetNotify(func(kind EventKind) {
		c.publish(kind, "", nil)
	})
	return c
}

// Subscribe registers an event callback and returns an unsubscribe
// function. Callbacks run synchronously on loop goroutines and must not
// block.
func (c *Controller) Subscribe(fn func(Event)) (cancel func()) {
	return c.notifier.Subscribe(fn)
}

// Buffer exposes the action buffer, primarily for tests and dashboards.
func (c *Controller) Buffer() *Buffer { return c.buffer }

// Interpolator exposes the interpolator state.
func (c *Controller) Interpolator() *Interpolator { return c.interp }

// Start begins a control session: loads the embodiment config, connects the
// inference endpoint(s), primes the buffer with one synchronous predict,
// and starts the tick loop.
//
// The embodiment load degrades to the loader's default on failure; only the
// inability to reach any inference endpoint makes Start fail.
func (c *Controller) Start(instruction string, exec Executor, obs ObservationSource) error {
	if exec == nil {
		return ErrNoExecutor
	}
	if obs == nil {
		return ErrNoObservationSource
	}

	c.mu.Lock()
	if c.mode != ModeInactive || c.starting {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.starting = true
	c.mu.Unlock()

	sessionID := uuid.NewString()
	logger := c.logger.With("session_id", sessionID)

	emb := c.loadEmbodiment(logger)

	active, err := c.connectEndpoints(logger)
	if err != nil {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.instruction = instruction
	c.sessionID = sessionID
	c.emb = emb
	c.exec = exec
	c.obs = obs
	c.active = active
	c.lastAction = nil
	c.lastActionTime = time.Time{}
	c.underrunActive = false
	c.retractAction = nil
	c.prefetchInFlight = false
	c.lastInferenceMs = 0
	c.tickCount = 0
	c.execErrors = 0
	c.dimMismatches = 0
	c.mu.Unlock()

	// Prime the buffer before the timer starts so the first ticks do not
	// immediately underrun. A priming failure is not fatal; the fallback
	// cascade and prefetch retries cover it.
	if err := c.requestActions(c.clientFor(active), obs); err != nil {
		logger.Warn("priming fetch failed", "error", err)
		c.publish(EventError, "priming fetch: "+err.Error(), err)
	}

	c.mu.Lock()
	c.mode = ModeActive
	c.starting = false
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done
	c.mu.Unlock()

	go c.run(stop, done)

	logger.Info("control session started",
		"instruction", instruction,
		"embodiment", emb.Tag,
		"endpoint", active,
		"tick_interval", c.cfg.TickInterval,
	)
	c.publish(EventStarted, instruction, nil)
	return nil
}

// Stop halts the tick loop, clears the buffer, and closes both clients.
// Safe to call at any time, including mid-prefetch; late prefetch results
// are discarded. Errors from closing clients are swallowed.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.mode == ModeInactive || c.mode == ModeStopped {
		c.mu.Unlock()
		return nil
	}
	c.mode = ModeStopped
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
	c.prefetchWG.Wait()

	c.buffer.Clear()
	c.closeClients()
	c.interp.Reset()

	c.mu.Lock()
	session := c.sessionID
	c.mode = ModeInactive
	c.instruction = ""
	c.sessionID = ""
	c.exec = nil
	c.obs = nil
	c.lastAction = nil
	c.retractAction = nil
	c.underrunActive = false
	c.mu.Unlock()

	c.logger.Info("control session stopped", "session_id", session)
	c.notifier.Publish(Event{Kind: EventStopped, SessionID: session})
	return nil
}

// Pause suspends ticking without tearing down the session. No-op unless
// active. An in-flight prefetch is not cancelled.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.mode != ModeActive {
		c.mu.Unlock()
		return
	}
	c.mode = ModePaused
	c.mu.Unlock()
	c.publish(EventPaused, "", nil)
}

// Resume continues ticking after a Pause. No-op unless paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.mode != ModePaused {
		c.mu.Unlock()
		return
	}
	c.mode = ModeActive
	c.mu.Unlock()
	c.publish(EventResumed, "", nil)
}

// Mode returns the current lifecycle mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// IsActive reports whether the controller is ticking.
func (c *Controller) IsActive() bool {
	return c.Mode() == ModeActive
}

// SessionID returns the current session identifier, or empty when inactive.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status returns a snapshot of the controller, buffer, and estimators.
func (c *Controller) Status() Status {
	istats := c.interp.Stats()
	bstats := c.buffer.Stats()

	c.mu.Lock()
	defer c.mu.Unlock()

	tag := ""
	if c.emb != nil {
		tag = c.emb.Tag
	}
	return Status{
		Mode:              c.mode,
		SessionID:         c.sessionID,
		Instruction:       c.instruction,
		EmbodimentTag:     tag,
		Buffer:            bstats,
		RTTEstimateMs:     istats.RTTEstimateMs,
		ClockOffsetSec:    istats.ClockOffsetSec,
		LastInferenceMs:   c.lastInferenceMs,
		LastActionAt:      c.lastActionTime,
		UnderrunCount:     bstats.UnderrunCount,
		ExecErrorCount:    c.execErrors,
		TickCount:         c.tickCount,
		UsingEdgeFallback: c.active == EndpointEdge,
	}
}

// run is the tick loop goroutine. It owns no I/O: every tick body completes
// in-memory work plus one fast executor call, keeping well under the tick
// interval.
func (c *Controller) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick executes one control cycle: pop, interpolate, denormalize, execute;
// or run the fallback cascade when the buffer is dry. Failures inside a
// tick never stop the loop.
func (c *Controller) tick() {
	c.mu.Lock()
	if c.mode != ModeActive {
		c.mu.Unlock()
		return
	}
	c.tickCount++
	count := c.tickCount
	exec := c.exec
	emb := c.emb
	c.mu.Unlock()

	if a := c.buffer.Pop(); a != nil {
		c.executeAction(*a, exec, emb)
	} else {
		c.handleUnderrun(exec, emb)
	}

	c.maybePrefetch()

	// Heartbeat roughly every 5 seconds at the default cadence.
	if count%256 == 0 {
		c.logger.Debug("tick heartbeat",
			"ticks", count,
			"buffer", c.buffer.Count(),
			"rtt_ms", c.interp.RTTEstimate(),
		)
	}
}

// executeAction smooths, denormalizes, and hands one action to the
// executor.
func (c *Controller) executeAction(a Action, exec Executor, emb *embodiment.Config) {
	c.mu.Lock()
	c.underrunActive = false
	c.retractAction = nil
	c.mu.Unlock()

	// Blend toward the next buffered action at the current instant on the
	// server's timeline. The legacy loop only did this for non-linear
	// methods; AlwaysInterpolate enables it for linear too.
	if c.cfg.AlwaysInterpolate || c.interp.Method() != MethodLinear {
		if next := c.buffer.Peek(); next != nil {
			a = c.interp.Interpolate(a, *next, c.interp.ToServerTime(unixNow()))
		}
	}

	raw := c.denormalize(a, emb)

	if err := exec.Execute(raw); err != nil {
		c.recordExecError(err)
		return
	}

	c.mu.Lock()
	c.lastAction = &raw
	c.lastActionTime = time.Now()
	c.mu.Unlock()
}

// denormalize converts a model-space action to robot space. Joint-count
// mismatches are padded or truncated, logged as warnings, never fatal.
func (c *Controller) denormalize(a Action, emb *embodiment.Config) Action {
	if emb == nil {
		return a
	}

	if !emb.Matches(a.JointCommands) {
		c.mu.Lock()
		c.dimMismatches++
		n := c.dimMismatches
		c.mu.Unlock()
		if n%100 == 1 {
			derr := &DimensionError{Got: len(a.JointCommands), Want: emb.ActionDim, Tag: emb.Tag}
			c.logger.Warn("action dimension mismatch", "error", derr, "occurrences", n)
		}
	}

	return Action{
		JointCommands:  emb.Denormalize(a.JointCommands),
		GripperCommand: a.GripperCommand,
		Timestamp:      a.Timestamp,
	}
}

// handleUnderrun runs the two-tier fallback cascade. Tier 1 re-executes the
// last commanded action (position hold). Past the underrun timeout, tier 2
// synthesizes a zero-command retract, preserving the gripper, and fails
// over to the edge endpoint when one is configured.
func (c *Controller) handleUnderrun(exec Executor, emb *embodiment.Config) {
	now := time.Now()

	c.mu.Lock()
	first := !c.underrunActive
	if first {
		c.underrunActive = true
		c.underrunSince = now
		c.holdNotified = false
	}
	elapsed := now.Sub(c.underrunSince)
	last := c.lastAction
	retract := c.retractAction
	holdNotified := c.holdNotified
	c.mu.Unlock()

	if first {
		c.publish(EventUnderrun, "", nil)
	}

	if elapsed < c.cfg.UnderrunTimeout {
		// Tier 1: hold the last commanded pose. Safe because it repeats a
		// command that already executed successfully.
		if last == nil {
			return
		}
		if !holdNotified {
			c.mu.Lock()
			c.holdNotified = true
			c.mu.Unlock()
			c.publish(EventFallbackHold, "", nil)
		}
		if err := exec.Execute(*last); err != nil {
			c.recordExecError(err)
		}
		return
	}

	// Tier 2: safe retract.
	if retract == nil {
		retract = c.synthesizeRetract(last, emb)
		c.mu.Lock()
		c.retractAction = retract
		needSwitch := c.edge != nil && c.active != EndpointEdge
		c.mu.Unlock()

		c.logger.Warn("underrun exceeded timeout, issuing safe retract",
			"elapsed", elapsed, "timeout", c.cfg.UnderrunTimeout)
		c.publish(EventFallbackRetract, "", nil)

		if needSwitch {
			c.switchEndpoint(EndpointEdge, "sustained underrun")
		}
	}

	if err := exec.Execute(*retract); err != nil {
		c.recordExecError(err)
	}
}

// synthesizeRetract builds the tier-2 action: all joint commands zeroed
// (zero velocity / zero delta, executor-defined), last gripper preserved.
func (c *Controller) synthesizeRetract(last *Action, emb *embodiment.Config) *Action {
	dim := 0
	if emb != nil {
		dim = emb.ActionDim
	}
	if dim == 0 && last != nil {
		dim = len(last.JointCommands)
	}

	var gripper float64
	if last != nil {
		gripper = last.GripperCommand
	}

	return &Action{
		JointCommands:  make([]float64, dim),
		GripperCommand: gripper,
		Timestamp:      unixNow(),
	}
}

// maybePrefetch triggers an asynchronous refill when the buffer is below
// the prefetch threshold and no request is already in flight.
func (c *Controller) maybePrefetch() {
	if !c.buffer.NeedsPrefetch() {
		return
	}

	c.mu.Lock()
	if c.prefetchInFlight || c.mode != ModeActive {
		c.mu.Unlock()
		return
	}
	c.prefetchInFlight = true
	client := c.clientFor(c.active)
	obs := c.obs
	c.mu.Unlock()

	c.buffer.MarkPrefetchRequested()

	c.prefetchWG.Add(1)
	go func() {
		defer c.prefetchWG.Done()
		defer func() {
			// Re-arm the trigger on every completion: a successful refill
			// smaller than the threshold gap must not suppress the next one.
			c.buffer.ClearPrefetchRequested()
			c.mu.Lock()
			c.prefetchInFlight = false
			c.mu.Unlock()
		}()

		if err := c.requestActions(client, obs); err != nil {
			c.logger.Warn("prefetch failed", "error", err)
			c.publish(EventError, "prefetch: "+err.Error(), err)

			c.mu.Lock()
			failover := c.active == EndpointCloud && c.edge != nil && c.mode == ModeActive
			c.mu.Unlock()
			if failover {
				c.switchEndpoint(EndpointEdge, "prefetch failure")
			}
		}
	}()
}

// requestActions performs one observation -> predict -> push round trip and
// feeds the RTT and clock-offset estimators. Results arriving after the
// session left the active/paused states are discarded.
func (c *Controller) requestActions(client InferenceClient, obs ObservationSource) error {
	if client == nil {
		return ErrNoInferenceEndpoint
	}

	c.mu.Lock()
	instruction := c.instruction
	sessionID := c.sessionID
	tag := ""
	if c.emb != nil {
		tag = c.emb.Tag
	}
	c.mu.Unlock()

	o := obs.Observe()
	o.LanguageInstruction = instruction
	o.SessionID = sessionID
	if o.EmbodimentTag == "" {
		o.EmbodimentTag = tag
	}
	if o.Timestamp == 0 {
		o.Timestamp = unixNow()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PredictTimeout)
	defer cancel()

	start := time.Now()
	chunk, err := client.Predict(ctx, o)
	if err != nil {
		return err
	}
	rttMs := float64(time.Since(start)) / float64(time.Millisecond)

	c.interp.UpdateRTT(rttMs)
	if len(chunk.Actions) > 0 {
		c.interp.UpdateClockOffset(chunk.Actions[0].Timestamp, unixNow())
	}

	c.mu.Lock()
	discard := c.mode == ModeStopped
	if !discard {
		if chunk.InferenceTimeMs > 0 {
			c.lastInferenceMs = chunk.InferenceTimeMs
		} else {
			c.lastInferenceMs = rttMs
		}
	}
	c.mu.Unlock()

	if discard {
		c.logger.Debug("discarding prefetch result after stop",
			"actions", len(chunk.Actions))
		return nil
	}

	added := c.buffer.Push(chunk.Actions)
	if added < len(chunk.Actions) {
		c.logger.Debug("buffer dropped excess actions",
			"received", len(chunk.Actions), "added", added)
	}
	return nil
}

// switchEndpoint atomically swaps the active client and emits the
// notification. All failover paths go through here.
func (c *Controller) switchEndpoint(target Endpoint, reason string) {
	c.mu.Lock()
	if c.active == target {
		c.mu.Unlock()
		return
	}
	c.active = target
	client := c.clientFor(target)
	c.mu.Unlock()

	c.logger.Warn("inference endpoint switched", "endpoint", target, "reason", reason)
	c.publish(EventEndpointSwitched, fmt.Sprintf("%s: %s", target, reason), nil)

	// Best-effort connect in case the standby never came up; Predict will
	// surface any remaining failure.
	if client != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
			defer cancel()
			if err := client.Connect(ctx); err != nil {
				c.logger.Warn("standby connect failed", "endpoint", target, "error", err)
			}
		}()
	}
}

// loadEmbodiment resolves the configured tag, degrading to the default
// embodiment on failure (never fatal).
func (c *Controller) loadEmbodiment(logger *slog.Logger) *embodiment.Config {
	tag := c.cfg.EmbodimentTag
	if tag == "" {
		return c.loader.Default()
	}

	emb, err := c.loader.Load(tag)
	if err != nil {
		logger.Warn("embodiment load failed, using default", "tag", tag, "error", err)
		return c.loader.Default()
	}
	return emb
}

// connectEndpoints connects the cloud client, falling back to edge when
// cloud is unreachable. With cloud healthy, the edge standby is connected
// opportunistically in the background.
func (c *Controller) connectEndpoints(logger *slog.Logger) (Endpoint, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var cloudErr error
	if c.cloud != nil {
		cloudErr = c.cloud.Connect(ctx)
		if cloudErr == nil {
			if c.edge != nil {
				go c.warmStandby()
			}
			return EndpointCloud, nil
		}
		logger.Warn("cloud endpoint unreachable", "error", cloudErr)
	}

	if c.edge != nil {
		edgeErr := c.edge.Connect(ctx)
		if edgeErr == nil {
			logger.Warn("starting on edge endpoint")
			return EndpointEdge, nil
		}
		return "", fmt.Errorf("%w (cloud: %v, edge: %v)",
			ErrNoInferenceEndpoint, cloudErr, edgeErr)
	}

	return "", fmt.Errorf("%w (cloud: %v)", ErrNoInferenceEndpoint, cloudErr)
}

// warmStandby connects the edge client in the background so failover does
// not pay a connect round trip.
func (c *Controller) warmStandby() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	if err := c.edge.Connect(ctx); err != nil {
		c.logger.Warn("edge standby connect failed", "error", err)
	}
}

func (c *Controller) closeClients() {
	for _, client := range []InferenceClient{c.cloud, c.edge} {
		if client == nil {
			continue
		}
		if err := client.Close(); err != nil {
			c.logger.Debug("client close error", "error", err)
		}
	}
}

func (c *Controller) clientFor(ep Endpoint) InferenceClient {
	if ep == EndpointEdge {
		return c.edge
	}
	return c.cloud
}

func (c *Controller) recordExecError(err error) {
	c.mu.Lock()
	c.execErrors++
	n := c.execErrors
	c.mu.Unlock()

	if n%100 == 1 {
		c.logger.Warn("action execution failed", "error", err, "occurrences", n)
	}
	c.publish(EventError, "execute: "+err.Error(), err)
}

func (c *Controller) publish(kind EventKind, detail string, err error) {
	c.mu.Lock()
	session := c.sessionID
	c.mu.Unlock()

	c.notifier.Publish(Event{
		Kind:      kind,
		SessionID: session,
		Detail:    detail,
		Err:       err,
	})
}

// unixNow returns the local clock as fractional Unix seconds, the timestamp
// convention of the action timeline.
func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
