package scanning

import (
	"errors"
	"fmt"
)

// TaskStatus represents the execution state of an individual enumeration task.
// It enables fine-grained tracking of task progress and error conditions.
type TaskStatus string

// ErrTaskStatusUnknown is returned when a task status cannot be parsed.
var ErrTaskStatusUnknown = errors.New("task status unknown")

const (
	// TaskStatusQueued indicates a task is created but has not acquired a
	// pool slot yet.
	TaskStatusQueued TaskStatus = "QUEUED"

	// TaskStatusRunning indicates a task holds a pool slot and its
	// enumerator is executing.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSucceeded indicates the enumerator returned a usable result.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed indicates the enumerator reported an error or the
	// task could not be dispatched.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusTimedOut indicates the task exceeded its per-task timeout.
	TaskStatusTimedOut TaskStatus = "TIMED_OUT"

	// TaskStatusCancelled indicates the task ended due to an explicit
	// cancellation request.
	TaskStatusCancelled TaskStatus = "CANCELLED"

	// TaskStatusUnspecified is used when a task status is unknown.
	TaskStatusUnspecified TaskStatus = "UNSPECIFIED"
)

// String returns the string representation of the TaskStatus.
func (s TaskStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are allowed out of this status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusTimedOut, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseTaskStatus converts a string to a TaskStatus.
func ParseTaskStatus(s string) TaskStatus {
	switch s {
	case "QUEUED":
		return TaskStatusQueued
	case "RUNNING":
		return TaskStatusRunning
	case "SUCCEEDED":
		return TaskStatusSucceeded
	case "FAILED":
		return TaskStatusFailed
	case "TIMED_OUT":
		return TaskStatusTimedOut
	case "CANCELLED":
		return TaskStatusCancelled
	default:
		return TaskStatusUnspecified
	}
}

// validateTransition checks if a status transition is valid and returns an error if not.
func (s TaskStatus) validateTransition(target TaskStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid task status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. Transitions are monotonic: a task never regresses to an earlier state.
func (s TaskStatus) isValidTransition(target TaskStatus) bool {
	switch s {
	case TaskStatusQueued:
		// A queued task starts running once it holds a slot. It can also
		// fail before acquiring one (config validation, pool exhaustion)
		// or be cancelled before dispatch.
		return target == TaskStatusRunning || target == TaskStatusFailed || target == TaskStatusCancelled
	case TaskStatusRunning:
		return target == TaskStatusSucceeded || target == TaskStatusFailed ||
			target == TaskStatusTimedOut || target == TaskStatusCancelled
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusTimedOut, TaskStatusCancelled:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
