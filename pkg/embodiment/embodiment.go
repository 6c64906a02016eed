// Package embodiment holds per-robot-model configuration: joint layout and
// the normalization statistics needed to translate model-space actions into
// robot-space commands.
//
// A Config is loaded once per control session and is read-only afterwards.
// Loaders are plain injected values, scoped to the controller that owns
// them; there is no process-wide registry.
package embodiment

import (
	"fmt"
)

// Config describes one robot model (an "embodiment").
type Config struct {
	// Tag is the embodiment identifier, e.g. "so101_arm".
	Tag string `yaml:"tag"`

	// ActionDim is the number of joint commands (gripper excluded).
	ActionDim int `yaml:"action_dim"`

	// ProprioDim is the proprioception vector length in observations.
	ProprioDim int `yaml:"proprio_dim"`

	// JointNames orders the joints; len(JointNames) == ActionDim.
	JointNames []string `yaml:"joint_names"`

	// Mean and Std are per-joint normalization statistics. A model-space
	// value v maps to robot space as v*Std[i] + Mean[i].
	Mean []float64 `yaml:"mean"`
	Std  []float64 `yaml:"std"`

	// Camera input size expected by the model for this embodiment.
	ImageWidth  int `yaml:"image_width"`
	ImageHeight int `yaml:"image_height"`
}

// Validate checks internal consistency of the config.
func (c *Config) Validate() error {
	if c.Tag == "" {
		return fmt.Errorf("embodiment: tag required")
	}
	if c.ActionDim <= 0 {
		return fmt.Errorf("embodiment %q: action_dim must be positive, got %d", c.Tag, c.ActionDim)
	}
	if len(c.JointNames) != 0 && len(c.JointNames) != c.ActionDim {
		return fmt.Errorf("embodiment %q: %d joint names for action_dim %d",
			c.Tag, len(c.JointNames), c.ActionDim)
	}
	if len(c.Mean) != c.ActionDim {
		return fmt.Errorf("embodiment %q: mean vector has %d entries, want %d",
			c.Tag, len(c.Mean), c.ActionDim)
	}
	if len(c.Std) != c.ActionDim {
		return fmt.Errorf("embodiment %q: std vector has %d entries, want %d",
			c.Tag, len(c.Std), c.ActionDim)
	}
	for i, s := range c.Std {
		if s == 0 {
			return fmt.Errorf("embodiment %q: std[%d] is zero", c.Tag, i)
		}
	}
	return nil
}

// Denormalize converts model-space joint values ([-1, 1] range) into
// robot-space raw values using the per-joint mean/std. A short input is
// padded with zero-position commands (which map to the joint mean); a long
// input is truncated. The returned slice always has ActionDim entries.
func (c *Config) Denormalize(joints []float64) []float64 {
	out := make([]float64, c.ActionDim)
	for i := 0; i < c.ActionDim; i++ {
		var v float64
		if i < len(joints) {
			v = joints[i]
		}
		out[i] = v*c.Std[i] + c.Mean[i]
	}
	return out
}

// Normalize converts robot-space joint values back into model space. Input
// is padded or truncated to ActionDim like Denormalize.
func (c *Config) Normalize(raw []float64) []float64 {
	out := make([]float64, c.ActionDim)
	for i := 0; i < c.ActionDim; i++ {
		var v float64
		if i < len(raw) {
			v = raw[i]
		}
		out[i] = (v - c.Mean[i]) / c.Std[i]
	}
	return out
}

// Matches reports whether a joint vector already has the expected length.
func (c *Config) Matches(joints []float64) bool {
	return len(joints) == c.ActionDim
}
