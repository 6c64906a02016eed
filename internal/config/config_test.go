package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.TickInterval() != 20*time.Millisecond {
		t.Errorf("tick interval: got %v, want 20ms", cfg.TickInterval())
	}
	if cfg.BufferCapacity != 16 {
		t.Errorf("buffer capacity: got %d, want 16", cfg.BufferCapacity)
	}
	if cfg.Embodiment != "so101_arm" {
		t.Errorf("embodiment: got %q, want so101_arm", cfg.Embodiment)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vla.toml")
	data := []byte(`cloud_url = "https://vla.example.com"
tick_ms = 10
method = "cubic"
embodiment = "franka_panda"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CloudURL != "https://vla.example.com" {
		t.Errorf("cloud url: got %q", cfg.CloudURL)
	}
	if cfg.TickMs != 10 {
		t.Errorf("tick ms: got %d, want 10", cfg.TickMs)
	}
	if cfg.Method != "cubic" {
		t.Errorf("method: got %q, want cubic", cfg.Method)
	}
	// Unset keys keep defaults.
	if cfg.BufferCapacity != DefaultBufferCapacity {
		t.Errorf("buffer capacity: got %d, want default", cfg.BufferCapacity)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vla.toml")
	if err := os.WriteFile(path, []byte(`tick_ms = 10`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VLA_TICK_MS", "40")
	t.Setenv("VLA_EDGE_URL", "ws://edge.local:9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickMs != 40 {
		t.Errorf("tick ms: got %d, want env value 40", cfg.TickMs)
	}
	if cfg.EdgeURL != "ws://edge.local:9000" {
		t.Errorf("edge url: got %q", cfg.EdgeURL)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/vla.toml"); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLoad_EmptyPathSkipsFile(t *testing.T) {
	if _, err := Load(""); err != nil {
		t.Errorf("empty path should load defaults, got %v", err)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.TickMs = 0
	cfg.Method = "quintic"
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"tick_ms", "method", "log_level"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error should mention %s: %v", want, msg)
		}
	}
}

func TestLoad_InvalidEnvIntIgnored(t *testing.T) {
	t.Setenv("VLA_TICK_MS", "fast")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickMs != DefaultTickMs {
		t.Errorf("tick ms: got %d, want default", cfg.TickMs)
	}
}
