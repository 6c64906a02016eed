package embodiment

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultTag is the embodiment used when no tag is configured or a load
// fails non-fatally.
const DefaultTag = "so101_arm"

// Loader resolves embodiment tags to configs. Lookup order: cache, YAML
// file in the configured directory, compiled-in defaults. Safe for
// concurrent use.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*Config
}

// NewLoader creates a loader. dir may be empty, in which case only the
// compiled-in embodiments are available.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		dir:    dir,
		logger: logger.With("component", "embodiment.loader"),
		cache:  make(map[string]*Config),
	}
}

// Load resolves a tag to its config. The returned config is shared and must
// be treated as read-only.
func (l *Loader) Load(tag string) (*Config, error) {
	if tag == "" {
		return nil, fmt.Errorf("embodiment: empty tag")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cfg, ok := l.cache[tag]; ok {
		return cfg, nil
	}

	cfg, err := l.loadFile(tag)
	if err != nil {
		if builtin, ok := builtins[tag]; ok {
			l.cache[tag] = builtin
			return builtin, nil
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.cache[tag] = cfg
	l.logger.Info("embodiment loaded", "tag", tag, "action_dim", cfg.ActionDim)
	return cfg, nil
}

// Default returns the fallback embodiment used when loading by tag fails.
func (l *Loader) Default() *Config {
	return builtins[DefaultTag]
}

func (l *Loader) loadFile(tag string) (*Config, error) {
	if l.dir == "" {
		return nil, fmt.Errorf("embodiment: no config directory for tag %q", tag)
	}

	path := filepath.Join(l.dir, tag+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("embodiment: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("embodiment: parse %s: %w", path, err)
	}
	if cfg.Tag == "" {
		cfg.Tag = tag
	}
	return &cfg, nil
}

// builtin constructs a config with zero-mean, uniform-std normalization.
// Real deployments override these with per-robot YAML files; the compiled-in
// values give a working loop without a config directory.
func builtin(tag string, dim int, std float64, imgSize int, joints ...string) *Config {
	means := make([]float64, dim)
	stds := make([]float64, dim)
	for i := range stds {
		stds[i] = std
	}
	return &Config{
		Tag:         tag,
		ActionDim:   dim,
		ProprioDim:  dim,
		JointNames:  joints,
		Mean:        means,
		Std:         stds,
		ImageWidth:  imgSize,
		ImageHeight: imgSize,
	}
}

// builtins covers the embodiments the inference models ship with.
var builtins = map[string]*Config{
	"so101_arm": builtin("so101_arm", 6, 1.5708, 224,
		"shoulder_pan", "shoulder_lift", "elbow_flex",
		"wrist_flex", "wrist_roll", "gripper_mount"),
	"franka_panda": builtin("franka_panda", 7, 1.8, 224,
		"joint1", "joint2", "joint3", "joint4", "joint5", "joint6", "joint7"),
	"aloha":      builtin("aloha", 14, 1.2, 224),
	"unitree_h1": builtin("unitree_h1", 19, 2.0, 448),
}
