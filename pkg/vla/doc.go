// Package vla implements the real-time control loop that drives a robot
// from a stream of Vision-Language-Action (VLA) model predictions.
//
// A Controller consumes action chunks from a remote inference endpoint and
// feeds individual actions to a robot executor at a fixed cadence (50Hz by
// default). A bounded action buffer hides network jitter, an interpolator
// smooths the coarse chunk granularity against the tick clock, and a
// two-tier fallback cascade (position hold, then safe retract with endpoint
// failover) keeps the robot safe when the buffer runs dry.
//
// The controller never stops ticking because of a single failed action or
// prefetch; failures surface through events and Status(), not through
// loop-terminating errors.
package vla
