package vla

// Action is one timestamped motor command. Joint values are in model space
// ([-1, 1] normalized) until denormalized against an embodiment config.
// Actions are treated as immutable once produced; fallback states synthesize
// a new Action rather than mutating an existing one.
type Action struct {
	// JointCommands holds per-joint target values, in joint-name order.
	JointCommands []float64 `json:"joint_commands"`

	// GripperCommand is the gripper target in [0, 1].
	GripperCommand float64 `json:"gripper_command"`

	// Timestamp is Unix seconds (fractional) on the server's clock.
	Timestamp float64 `json:"timestamp"`
}

// Clone returns a deep copy of the action.
func (a Action) Clone() Action {
	joints := make([]float64, len(a.JointCommands))
	copy(joints, a.JointCommands)
	return Action{
		JointCommands:  joints,
		GripperCommand: a.GripperCommand,
		Timestamp:      a.Timestamp,
	}
}

// ActionChunk is an ordered batch of actions returned by one inference call.
// Timestamps are expected to be non-decreasing within a chunk.
type ActionChunk struct {
	Actions         []Action `json:"actions"`
	InferenceTimeMs float64  `json:"inference_time_ms"`
	ModelVersion    string   `json:"model_version"`
	Confidence      float64  `json:"confidence"`
	SequenceNumber  int      `json:"sequence_number"`
}

// Observation is the robot state snapshot sent to the inference service.
// The control loop treats it as opaque beyond stamping the instruction and
// session fields before each request.
type Observation struct {
	CameraImage         []byte    `json:"camera_image,omitempty"`
	JointPositions      []float64 `json:"joint_positions"`
	JointVelocities     []float64 `json:"joint_velocities"`
	LanguageInstruction string    `json:"language_instruction"`
	Timestamp           float64   `json:"timestamp"`
	EmbodimentTag       string    `json:"embodiment_tag"`
	SessionID           string    `json:"session_id,omitempty"`
}

// ActionResult reports the outcome of executing one action on the robot.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Executor applies one action to the robot. Implementations must be safe to
// call at up to 50Hz and must not block beyond the tick budget.
type Executor interface {
	Execute(a Action) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(a Action) error

// Execute calls f.
func (f ExecutorFunc) Execute(a Action) error { return f(a) }

// ObservationSource produces the current robot observation. Called once
// synchronously at Start and once per prefetch.
type ObservationSource interface {
	Observe() Observation
}

// ObservationSourceFunc adapts a function to the ObservationSource interface.
type ObservationSourceFunc func() Observation

// Observe calls f.
func (f ObservationSourceFunc) Observe() Observation { return f() }
