package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSchedulerClosed is returned when tasks are submitted from outside a
	// fiber after Close.
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrNilTask is returned when a submitted batch contains a nil task.
	ErrNilTask = errors.New("nil task")

	// ErrInvalidTask is returned for tasks whose traits name an unknown
	// priority or stack class.
	ErrInvalidTask = errors.New("invalid task traits")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid scheduler config")

	// ErrInvalidCore is returned when the affinity mask names a core that
	// does not exist.
	ErrInvalidCore = errors.New("invalid cpu core")

	// ErrStackAllocation is returned when a fiber pool arena cannot be
	// reserved.
	ErrStackAllocation = errors.New("stack allocation failed")
)

// SchedulerError carries a message and the sentinel it wraps.
type SchedulerError struct {
	msg string
	err error
}

func (e *SchedulerError) Error() string {
	if e.err == nil {
		return "fiberscheduler: " + e.msg
	}
	return fmt.Sprintf("fiberscheduler: %s: %v", e.msg, e.err)
}

func (e *SchedulerError) Unwrap() error {
	return e.err
}

func newSchedulerError(err error, format string, args ...any) error {
	return &SchedulerError{msg: fmt.Sprintf(format, args...), err: err}
}

// AssertionError is the panic value raised when an internal invariant is
// broken. The scheduler never recovers from it.
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string {
	return "fiberscheduler: assertion failed: " + e.Msg
}

func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&AssertionError{Msg: fmt.Sprintf(format, args...)})
	}
}
