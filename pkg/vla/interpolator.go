package vla

import (
	"math"
	"sync"
)

// Method selects the blend function used between two actions.
type Method string

// Supported interpolation methods.
const (
	// MethodLinear blends element-wise with the raw fraction t.
	MethodLinear Method = "linear"

	// MethodCubic applies the smoothstep polynomial 3t^2 - 2t^3 before
	// blending, giving zero slope at both endpoints.
	MethodCubic Method = "cubic"
)

// DefaultRTTAlpha is the EMA smoothing factor for RTT samples.
const DefaultRTTAlpha = 0.3

// InterpolatorStats is a snapshot of the interpolator's estimators.
type InterpolatorStats struct {
	RTTEstimateMs  float64 `json:"rtt_estimate_ms"`
	ClockOffsetSec float64 `json:"clock_offset_sec"`
}

// Interpolator blends between buffered actions to mask the 20ms tick
// granularity against an action stream whose spacing may not match the tick
// interval. It also carries the RTT and clock-offset estimators the
// controller uses to reason about prefetch lead time. Estimator updates
// come from the prefetch goroutine while the tick loop reads; a mutex
// guards the small amount of shared state.
type Interpolator struct {
	mu             sync.Mutex
	method         Method
	alpha          float64
	rttEstimateMs  float64
	rttInitialized bool
	clockOffsetSec float64
}

// NewInterpolator creates an interpolator using the given method and the
// default EMA smoothing factor. Unknown methods fall back to linear.
func NewInterpolator(method Method) *Interpolator {
	if method != MethodLinear && method != MethodCubic {
		method = MethodLinear
	}
	return &Interpolator{method: method, alpha: DefaultRTTAlpha}
}

// SetMethod changes the blend function.
func (ip *Interpolator) SetMethod(method Method) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if method == MethodLinear || method == MethodCubic {
		ip.method = method
	}
}

// Method returns the configured blend function.
func (ip *Interpolator) Method() Method {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.method
}

// SetAlpha overrides the EMA smoothing factor. Values outside (0, 1] are
// ignored.
func (ip *Interpolator) SetAlpha(alpha float64) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if alpha > 0 && alpha <= 1 {
		ip.alpha = alpha
	}
}

// UpdateRTT feeds one round-trip sample (milliseconds) into the EMA. The
// first sample sets the estimate directly.
func (ip *Interpolator) UpdateRTT(sampleMs float64) {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	if !ip.rttInitialized {
		ip.rttEstimateMs = sampleMs
		ip.rttInitialized = true
		return
	}
	ip.rttEstimateMs = ip.alpha*sampleMs + (1-ip.alpha)*ip.rttEstimateMs
}

// UpdateClockOffset records the difference between the local clock and the
// server's action timeline, from the first action of a received chunk.
func (ip *Interpolator) UpdateClockOffset(serverTimestampSec, localTimestampSec float64) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.clockOffsetSec = localTimestampSec - serverTimestampSec
}

// RTTEstimate returns the smoothed round-trip estimate in milliseconds.
func (ip *Interpolator) RTTEstimate() float64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.rttEstimateMs
}

// ClockOffset returns the local-minus-server clock offset in seconds.
func (ip *Interpolator) ClockOffset() float64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.clockOffsetSec
}

// ToServerTime converts a local Unix timestamp to the server's action
// timeline using the current offset estimate.
func (ip *Interpolator) ToServerTime(localSec float64) float64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return localSec - ip.clockOffsetSec
}

// Reset zeroes the RTT and clock-offset estimators. The method is kept.
func (ip *Interpolator) Reset() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.rttEstimateMs = 0
	ip.rttInitialized = false
	ip.clockOffsetSec = 0
}

// Stats returns a snapshot of the estimators.
func (ip *Interpolator) Stats() InterpolatorStats {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return InterpolatorStats{
		RTTEstimateMs:  ip.rttEstimateMs,
		ClockOffsetSec: ip.clockOffsetSec,
	}
}

// Interpolate blends a and b at atTime using the configured method. The
// fraction is clamped to [0, 1], so times outside [a.Timestamp, b.Timestamp]
// return an endpoint rather than extrapolating. Identical timestamps are
// treated as t = 0.
func (ip *Interpolator) Interpolate(a, b Action, atTime float64) Action {
	span := b.Timestamp - a.Timestamp

	var t float64
	if span > 0 {
		t = clamp01((atTime - a.Timestamp) / span)
	}

	if ip.Method() == MethodCubic {
		t = smoothstep(t)
	}

	return blend(a, b, t, atTime)
}

// SelectAction returns the action whose timestamp is closest to atTime,
// preferring the earlier action on ties. Returns nil for an empty slice.
func (ip *Interpolator) SelectAction(actions []Action, atTime float64) *Action {
	if len(actions) == 0 {
		return nil
	}

	best := 0
	bestDist := math.Abs(actions[0].Timestamp - atTime)
	for i := 1; i < len(actions); i++ {
		d := math.Abs(actions[i].Timestamp - atTime)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}

	a := actions[best].Clone()
	return &a
}

// InterpolateAtTime finds the bracketing pair around atTime and blends
// between them. Times outside the chunk's range clamp to the nearest
// endpoint action; there is no extrapolation. Returns nil for an empty
// slice.
func (ip *Interpolator) InterpolateAtTime(actions []Action, atTime float64) *Action {
	if len(actions) == 0 {
		return nil
	}

	if atTime <= actions[0].Timestamp {
		a := actions[0].Clone()
		return &a
	}
	last := len(actions) - 1
	if atTime >= actions[last].Timestamp {
		a := actions[last].Clone()
		return &a
	}

	for i := 0; i < last; i++ {
		if actions[i].Timestamp <= atTime && atTime <= actions[i+1].Timestamp {
			out := ip.Interpolate(actions[i], actions[i+1], atTime)
			return &out
		}
	}

	// Non-monotonic timestamps: fall back to nearest neighbor.
	return ip.SelectAction(actions, atTime)
}

// blend linearly mixes joint and gripper values with fraction t. Joint
// vectors of unequal length blend over the shorter prefix and copy the
// remainder from a.
func blend(a, b Action, t, atTime float64) Action {
	joints := make([]float64, len(a.JointCommands))
	copy(joints, a.JointCommands)
	n := len(a.JointCommands)
	if len(b.JointCommands) < n {
		n = len(b.JointCommands)
	}
	for i := 0; i < n; i++ {
		joints[i] = a.JointCommands[i] + t*(b.JointCommands[i]-a.JointCommands[i])
	}

	return Action{
		JointCommands:  joints,
		GripperCommand: a.GripperCommand + t*(b.GripperCommand-a.GripperCommand),
		Timestamp:      atTime,
	}
}

// smoothstep is the cubic ease 3t^2 - 2t^3. It matches linear at t = 0,
// 0.5, and 1 but has zero slope at the endpoints.
func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
