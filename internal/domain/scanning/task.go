package scanning

import (
	"time"
)

// Task tracks the lifecycle of a single enumerator execution attempt within
// a scan. It is owned by the scheduler: only the task's own execution path
// and the scheduler's finalize step write to it, never concurrently.
type Task struct {
	enumerator string
	status     TaskStatus
	timeline   *Timeline

	result        *EnumerationResult
	failureReason string
}

// TaskOption defines functional options for configuring a new Task.
type TaskOption func(*Task)

// WithTaskTimeProvider sets a custom time provider for the task's timeline.
func WithTaskTimeProvider(tp TimeProvider) TaskOption {
	return func(t *Task) { t.timeline = NewTimeline(tp) }
}

// NewTask creates a QUEUED task for the named enumerator.
func NewTask(enumerator string, opts ...TaskOption) *Task {
	t := &Task{
		enumerator: enumerator,
		status:     TaskStatusQueued,
		timeline:   NewTimeline(new(realTimeProvider)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ReconstructTask creates a Task from persisted data without enforcing
// creation-time invariants. This should only be used by repositories when
// reconstructing from storage.
func ReconstructTask(
	enumerator string,
	status TaskStatus,
	timeline *Timeline,
	result *EnumerationResult,
	failureReason string,
) *Task {
	return &Task{
		enumerator:    enumerator,
		status:        status,
		timeline:      timeline,
		result:        result,
		failureReason: failureReason,
	}
}

// Enumerator returns the name of the enumerator this task executes.
func (t *Task) Enumerator() string { return t.enumerator }

// Status returns the current execution status of the task.
func (t *Task) Status() TaskStatus { return t.status }

// StartTime returns when the task began running, zero while queued.
func (t *Task) StartTime() time.Time { return t.timeline.StartedAt() }

// EndTime returns when the task reached a terminal state.
func (t *Task) EndTime() time.Time { return t.timeline.CompletedAt() }

// Duration returns how long the task ran, zero until terminal.
func (t *Task) Duration() time.Duration { return t.timeline.Duration() }

// Result returns the enumeration result, nil unless the task succeeded.
func (t *Task) Result() *EnumerationResult { return t.result }

// FailureReason returns why the task ended unsuccessfully, empty on success.
func (t *Task) FailureReason() string { return t.failureReason }

// IsTerminal reports whether the task has reached a terminal state.
func (t *Task) IsTerminal() bool { return t.status.IsTerminal() }

// updateStatus changes the task's status after validating the transition and
// maintains the timeline marks tied to lifecycle edges.
func (t *Task) updateStatus(newStatus TaskStatus) error {
	if err := t.status.validateTransition(newStatus); err != nil {
		return err
	}

	if t.status == TaskStatusQueued && newStatus == TaskStatusRunning {
		t.timeline.MarkStarted()
	}
	if newStatus.IsTerminal() {
		t.timeline.MarkCompleted()
	}

	t.status = newStatus
	return nil
}

// Start transitions the task to RUNNING. It is called only after the task
// has acquired a pool slot.
func (t *Task) Start() error {
	return t.updateStatus(TaskStatusRunning)
}

// Succeed records the enumerator's result and marks the task SUCCEEDED.
func (t *Task) Succeed(result EnumerationResult) error {
	if err := t.updateStatus(TaskStatusSucceeded); err != nil {
		return err
	}
	t.result = &result
	return nil
}

// Fail marks the task FAILED with the given cause.
func (t *Task) Fail(cause error) error {
	if err := t.updateStatus(TaskStatusFailed); err != nil {
		return err
	}
	if cause != nil {
		t.failureReason = cause.Error()
	}
	return nil
}

// TimeOut marks the task TIMED_OUT with the given cause.
func (t *Task) TimeOut(cause error) error {
	if err := t.updateStatus(TaskStatusTimedOut); err != nil {
		return err
	}
	if cause != nil {
		t.failureReason = cause.Error()
	}
	return nil
}

// Cancel marks the task CANCELLED. Tasks already terminal keep their
// recorded outcome; callers check IsTerminal first.
func (t *Task) Cancel(cause error) error {
	if err := t.updateStatus(TaskStatusCancelled); err != nil {
		return err
	}
	if cause != nil {
		t.failureReason = cause.Error()
	}
	return nil
}

// clone returns a deep copy for read-only snapshots.
func (t *Task) clone() *Task {
	cp := *t
	tl := *t.timeline
	cp.timeline = &tl
	if t.result != nil {
		r := *t.result
		cp.result = &r
	}
	return &cp
}
