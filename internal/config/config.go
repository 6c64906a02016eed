// Package config provides configuration for go-vla commands. Values come
// from a TOML file, then VLA_* environment variables, in that order of
// increasing precedence. CLI flags override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Defaults matching the inference server's published env surface.
const (
	DefaultTickMs         = 20
	DefaultBufferCapacity = 16
	DefaultTimeoutMs      = 5000
	DefaultEmbodiment     = "so101_arm"
	DefaultMethod         = "linear"
	DefaultUnderrunMs     = 500
	DefaultWebAddr        = ":8090"
	DefaultLogLevel       = "info"
)

// Config holds everything the session runner needs.
type Config struct {
	// Endpoints.
	CloudURL string `toml:"cloud_url"`
	EdgeURL  string `toml:"edge_url"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`

	// Robot daemon.
	RobotURL string `toml:"robot_url"`

	// Control loop.
	TickMs         int    `toml:"tick_ms"`
	BufferCapacity int    `toml:"buffer_capacity"`
	UnderrunMs     int    `toml:"underrun_ms"`
	Method         string `toml:"method"`
	TimeoutMs      int    `toml:"timeout_ms"`

	// Embodiment.
	Embodiment    string `toml:"embodiment"`
	EmbodimentDir string `toml:"embodiment_dir"`

	// Task.
	Instruction string `toml:"instruction"`

	// Dashboard and logging.
	WebAddr  string `toml:"web_addr"`
	LogLevel string `toml:"log_level"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		TickMs:         DefaultTickMs,
		BufferCapacity: DefaultBufferCapacity,
		UnderrunMs:     DefaultUnderrunMs,
		Method:         DefaultMethod,
		TimeoutMs:      DefaultTimeoutMs,
		Embodiment:     DefaultEmbodiment,
		WebAddr:        DefaultWebAddr,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads the config file at path (optional, "" skips it), applies env
// overrides, and validates. Returned config is ready to use.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays VLA_* environment variables.
func (c *Config) applyEnv() {
	envStr(&c.CloudURL, "VLA_CLOUD_URL")
	envStr(&c.EdgeURL, "VLA_EDGE_URL")
	envStr(&c.APIKey, "VLA_API_KEY")
	envStr(&c.Model, "VLA_MODEL")
	envStr(&c.RobotURL, "VLA_ROBOT_URL")
	envInt(&c.TickMs, "VLA_TICK_MS")
	envInt(&c.BufferCapacity, "VLA_BUFFER_CAPACITY")
	envInt(&c.UnderrunMs, "VLA_UNDERRUN_MS")
	envStr(&c.Method, "VLA_METHOD")
	envInt(&c.TimeoutMs, "VLA_TIMEOUT_MS")
	envStr(&c.Embodiment, "VLA_EMBODIMENT")
	envStr(&c.EmbodimentDir, "VLA_EMBODIMENT_DIR")
	envStr(&c.Instruction, "VLA_INSTRUCTION")
	envStr(&c.WebAddr, "VLA_WEB_ADDR")
	envStr(&c.LogLevel, "VLA_LOG_LEVEL")
}

// Validate checks ranges and enums, collecting every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("tick_ms must be positive, got %d", c.TickMs))
	}
	if c.BufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("buffer_capacity must be positive, got %d", c.BufferCapacity))
	}
	if c.UnderrunMs <= 0 {
		errs = append(errs, fmt.Errorf("underrun_ms must be positive, got %d", c.UnderrunMs))
	}
	if c.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMs))
	}
	switch c.Method {
	case "linear", "cubic":
	default:
		errs = append(errs, fmt.Errorf("method must be linear or cubic, got %q", c.Method))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug/info/warn/error, got %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// TickInterval returns the tick period as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// UnderrunTimeout returns the hold-before-retract window as a duration.
func (c *Config) UnderrunTimeout() time.Duration {
	return time.Duration(c.UnderrunMs) * time.Millisecond
}

// Timeout returns the predict timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
