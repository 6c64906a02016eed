package vla

import (
	"errors"
	"fmt"
)

// Sentinel errors for controller lifecycle conditions.
var (
	// ErrAlreadyRunning is returned by Start when the controller is not inactive.
	ErrAlreadyRunning = errors.New("vla: controller already running")

	// ErrNoInferenceEndpoint is returned by Start when neither the cloud nor
	// the edge endpoint could be connected.
	ErrNoInferenceEndpoint = errors.New("vla: no inference endpoint available")

	// ErrNoExecutor is returned by Start when no action executor is provided.
	ErrNoExecutor = errors.New("vla: action executor required")

	// ErrNoObservationSource is returned by Start when no observation source
	// is provided.
	ErrNoObservationSource = errors.New("vla: observation source required")
)

// DimensionError describes an action/embodiment joint-count mismatch.
// It is surfaced as a warning and an error event; the mismatched action is
// padded or truncated by policy, never dropped mid-loop.
type DimensionError struct {
	Got  int // joints in the action
	Want int // joints the embodiment expects
	Tag  string
}

// Error implements the error interface.
func (e *DimensionError) Error() string {
	return fmt.Sprintf("vla: action has %d joint commands, embodiment %q expects %d",
		e.Got, e.Tag, e.Want)
}
