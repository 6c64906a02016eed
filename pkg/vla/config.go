package vla

import (
	"log/slog"
	"time"
)

// Default controller tuning.
const (
	DefaultTickInterval    = 20 * time.Millisecond
	DefaultUnderrunTimeout = 500 * time.Millisecond
	DefaultConnectTimeout  = 5 * time.Second
	DefaultPredictTimeout  = 5 * time.Second
)

// Config holds controller tuning. Zero values are replaced with defaults by
// New.
type Config struct {
	// TickInterval is the control cadence (20ms = 50Hz).
	TickInterval time.Duration

	// Buffer geometry and thresholds.
	BufferCapacity    int
	LowThreshold      float64
	PrefetchThreshold float64

	// UnderrunTimeout is how long the position-hold tier runs before the
	// cascade escalates to safe retract.
	UnderrunTimeout time.Duration

	// Method selects the blend function for buffer-to-buffer interpolation.
	Method Method

	// AlwaysInterpolate applies interpolation for every method. When false
	// the loop keeps the legacy behavior of interpolating only for
	// non-linear methods.
	AlwaysInterpolate bool

	// RTTAlpha is the EMA smoothing factor for round-trip samples.
	RTTAlpha float64

	// EmbodimentTag selects the robot model config; falls back to the
	// loader's default when loading fails.
	EmbodimentTag string

	// Network timeouts for the inference clients.
	ConnectTimeout time.Duration
	PredictTimeout time.Duration

	// Logger receives structured loop diagnostics.
	Logger *slog.Logger
}

// Option is a functional option for configuring a Controller.
type Option func(*Config)

// WithTickInterval sets the control cadence.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) { c.TickInterval = d }
}

// WithBufferCapacity sets the action buffer capacity.
func WithBufferCapacity(n int) Option {
	return func(c *Config) { c.BufferCapacity = n }
}

// WithThresholds sets the low and prefetch fill thresholds.
func WithThresholds(low, prefetch float64) Option {
	return func(c *Config) {
		c.LowThreshold = low
		c.PrefetchThreshold = prefetch
	}
}

// WithUnderrunTimeout sets the position-hold duration before safe retract.
func WithUnderrunTimeout(d time.Duration) Option {
	return func(c *Config) { c.UnderrunTimeout = d }
}

// WithMethod sets the interpolation method.
func WithMethod(m Method) Option {
	return func(c *Config) { c.Method = m }
}

// WithAlwaysInterpolate applies interpolation regardless of method.
func WithAlwaysInterpolate(on bool) Option {
	return func(c *Config) { c.AlwaysInterpolate = on }
}

// WithRTTAlpha sets the EMA smoothing factor for RTT samples.
func WithRTTAlpha(alpha float64) Option {
	return func(c *Config) { c.RTTAlpha = alpha }
}

// WithEmbodimentTag selects the embodiment config.
func WithEmbodimentTag(tag string) Option {
	return func(c *Config) { c.EmbodimentTag = tag }
}

// WithConnectTimeout sets the endpoint connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithPredictTimeout sets the per-request inference timeout.
func WithPredictTimeout(d time.Duration) Option {
	return func(c *Config) { c.PredictTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultControllerConfig returns the standard 50Hz tuning.
func DefaultControllerConfig() *Config {
	return &Config{
		TickInterval:      DefaultTickInterval,
		BufferCapacity:    DefaultBufferCapacity,
		LowThreshold:      DefaultLowThreshold,
		PrefetchThreshold: DefaultPrefetchThreshold,
		UnderrunTimeout:   DefaultUnderrunTimeout,
		Method:            MethodLinear,
		RTTAlpha:          DefaultRTTAlpha,
		ConnectTimeout:    DefaultConnectTimeout,
		PredictTimeout:    DefaultPredictTimeout,
		Logger:            slog.Default(),
	}
}

// apply fills zero values with defaults after options ran.
func (c *Config) apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.UnderrunTimeout <= 0 {
		c.UnderrunTimeout = DefaultUnderrunTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.PredictTimeout <= 0 {
		c.PredictTimeout = DefaultPredictTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
