// Package tasklet provides error types mirroring the interpreter-facing
// exception kinds a cooperative-microthread runtime raises, with cause
// chain support.
package tasklet

import (
	"errors"
	"fmt"
)

// TypeError reports a value of the wrong type passed across the
// tasklet/channel API. No function in this package returns one.
type TypeError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if e.Message == "" {
		return "type error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TypeError) Unwrap() error {
	return e.Cause
}

// ValueError is raised when an argument has the right type but an invalid
// value (e.g. a negative tick interval, an unknown channel preference).
type ValueError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *ValueError) Error() string {
	if e.Message == "" {
		return "value error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *ValueError) Unwrap() error {
	return e.Cause
}

// RuntimeError is raised for scheduler-level invariant violations that are
// recoverable by the caller: switching into a dead tasklet, binding a
// tasklet that is not Restorable, running a tasklet on two schedulers at
// once, and similar misuse that the runtime can detect and reject cleanly.
type RuntimeError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Message == "" {
		return "runtime error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// SystemError is raised when an invariant the runtime documents as "MUST
// hold" is observed to be violated — a fault, not a usage mistake. These
// are never expected in correct code and are not meant to be recovered
// from; they exist so the violation surfaces as a typed Bomb instead of a
// silent corruption of the ready queue or a channel's wait queue.
type SystemError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *SystemError) Error() string {
	if e.Message == "" {
		return "system error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *SystemError) Unwrap() error {
	return e.Cause
}

// MemoryError is a preallocated Bomb kind: its Value must never itself
// require an allocation to construct or raise, since it exists to report
// conditions like free-list exhaustion where a normal allocation might
// fail too. Callers should treat a MemoryError as already-boxed and avoid
// wrapping it further.
type MemoryError struct {
	Message string
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	if e.Message == "" {
		return "out of memory"
	}
	return e.Message
}

// TaskletExit is a SystemExit-flavored signal: raised into a tasklet to
// unwind it cooperatively (Kill, or scheduler shutdown), rather than to
// report a fault. A bare TaskletExit carries no payload; Value, when set,
// is the tasklet's requested exit payload (mirroring SystemExit.code).
type TaskletExit struct {
	Value  any
	Pinned bool
}

// Error implements the error interface.
func (e *TaskletExit) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("tasklet exit: %v", e.Value)
	}
	return "tasklet exit"
}

// Is reports whether target is also a *TaskletExit, regardless of payload —
// callers that only care "was this tasklet killed" should match against a
// bare &TaskletExit{}.
func (e *TaskletExit) Is(target error) bool {
	var t *TaskletExit
	return errors.As(target, &t)
}

// AggregateError collects multiple causes into a single error. No function
// in this package constructs one; Channel.Close and Scheduler.Close do not
// report per-tasklet failures.
type AggregateError struct {
	Errors []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "aggregate error (empty)"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors occurred, first: %v", len(e.Errors), e.Errors[0])
	}
}

// Unwrap returns the errors slice for multi-error unwrapping.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Is implements custom error matching for AggregateError: true if target is
// itself an *AggregateError, or matches any contained error.
func (e *AggregateError) Is(target error) bool {
	var aggTarget *AggregateError
	if errors.As(target, &aggTarget) {
		return true
	}
	for _, err := range e.Errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// WrapError wraps an error with a message and cause chain, satisfying
// errors.Is(result, cause) == true.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
