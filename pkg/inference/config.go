package inference

import (
	"log/slog"
	"time"
)

// Config holds client configuration shared by the HTTP and websocket
// transports.
type Config struct {
	// BaseURL is the endpoint root, e.g. "https://vla.example.com" or
	// "ws://edge.local:8090".
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model requests a specific model from multi-model endpoints.
	Model string

	// Name labels the client in logs and errors ("cloud", "edge").
	Name string

	// Timeout bounds one predict round trip.
	Timeout time.Duration

	// ConnectTimeout bounds the initial dial/health check.
	ConnectTimeout time.Duration

	// Logger receives structured client diagnostics.
	Logger *slog.Logger
}

// Option is a functional option for configuring clients.
type Option func(*Config)

// WithBaseURL sets the endpoint root URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel requests a specific model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithName labels the client in logs and errors.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithTimeout bounds one predict round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithConnectTimeout bounds the initial dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns client defaults sized for a 50Hz control loop: the
// predict timeout must stay well under the buffer's worth of actions
// (16 x 20ms = 320ms of cover) plus the underrun hold window.
func DefaultConfig() *Config {
	return &Config{
		Name:           "endpoint",
		Timeout:        2 * time.Second,
		ConnectTimeout: 5 * time.Second,
		Logger:         slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
