// Package scanning provides the domain model for scan orchestration: the
// Scan and Task aggregates with their lifecycle state machines, the merged
// ScanResult aggregate, progress snapshots, and the repository port toward
// persistence. All mutation goes through the scheduler, which owns a Scan
// exclusively until it reaches a terminal state.
package scanning

import (
	"time"

	"github.com/google/uuid"
)

// Scan is the aggregate unit of work covering all requested enumerators for
// one target. It is owned exclusively by the scheduler until terminal; other
// components read defensively-copied snapshots.
type Scan struct {
	id       uuid.UUID
	target   string
	request  ScanRequest
	status   ScanStatus
	timeline *Timeline

	tasks  []*Task
	result *ScanResult

	cancelRequested bool
}

// ScanOption defines functional options for configuring a new Scan.
type ScanOption func(*Scan)

// WithScanTimeProvider sets a custom time provider for the scan's timeline.
func WithScanTimeProvider(tp TimeProvider) ScanOption {
	return func(s *Scan) { s.timeline = NewTimeline(tp) }
}

// NewScan creates a PENDING scan from an accepted request. The id is
// generated at intake and is unique across the process lifetime.
func NewScan(request ScanRequest, opts ...ScanOption) *Scan {
	s := &Scan{
		id:       uuid.New(),
		target:   request.Target(),
		request:  request,
		status:   ScanStatusPending,
		timeline: NewTimeline(new(realTimeProvider)),
		result:   NewScanResult(request.Target()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReconstructScan creates a Scan from persisted data, bypassing creation
// invariants. This should only be used by repositories when loading from
// storage.
func ReconstructScan(
	id uuid.UUID,
	request ScanRequest,
	status ScanStatus,
	timeline *Timeline,
	tasks []*Task,
	result *ScanResult,
	cancelRequested bool,
) *Scan {
	return &Scan{
		id:              id,
		target:          request.Target(),
		request:         request,
		status:          status,
		timeline:        timeline,
		tasks:           tasks,
		result:          result,
		cancelRequested: cancelRequested,
	}
}

// ID returns the unique identifier for this scan.
func (s *Scan) ID() uuid.UUID { return s.id }

// Target returns the target identifier being scanned.
func (s *Scan) Target() string { return s.target }

// Request returns the immutable submission that created this scan.
func (s *Scan) Request() ScanRequest { return s.request }

// Status returns the current lifecycle status of the scan.
func (s *Scan) Status() ScanStatus { return s.status }

// CreatedAt returns when the scan was accepted.
func (s *Scan) CreatedAt() time.Time { return s.timeline.CreatedAt() }

// StartTime returns when the first task was dispatched.
func (s *Scan) StartTime() time.Time { return s.timeline.StartedAt() }

// EndTime returns when the scan reached a terminal state and whether it has.
func (s *Scan) EndTime() (time.Time, bool) {
	if s.status.IsTerminal() {
		return s.timeline.CompletedAt(), true
	}
	return time.Time{}, false
}

// Tasks returns the scan's tasks in dispatch order. The slice is a copy but
// the tasks are live; callers outside the scheduler use Snapshot instead.
func (s *Scan) Tasks() []*Task {
	return append([]*Task(nil), s.tasks...)
}

// Result returns the live aggregate. Only the correlator mutates it.
func (s *Scan) Result() *ScanResult { return s.result }

// CancelRequested reports whether cancellation has been requested. The flag
// is irreversible once set.
func (s *Scan) CancelRequested() bool { return s.cancelRequested }

// AddTask appends a QUEUED task for one requested enumerator. Tasks are only
// added while the scan is PENDING.
func (s *Scan) AddTask(task *Task) {
	s.tasks = append(s.tasks, task)
	s.timeline.UpdateLastUpdate()
}

// Start transitions the scan to RUNNING on first task dispatch.
func (s *Scan) Start() error {
	return s.updateStatus(ScanStatusRunning)
}

// RequestCancel marks the scan for cancellation. A PENDING scan transitions
// to CANCELLED immediately; a RUNNING scan transitions once its in-flight
// tasks have been signalled and drained. It returns false if the scan is
// already terminal.
func (s *Scan) RequestCancel() bool {
	if s.status.IsTerminal() {
		return false
	}
	s.cancelRequested = true
	s.timeline.UpdateLastUpdate()
	return true
}

// TerminalTaskCount returns how many tasks have reached a terminal state.
func (s *Scan) TerminalTaskCount() int {
	n := 0
	for _, t := range s.tasks {
		if t.IsTerminal() {
			n++
		}
	}
	return n
}

// AllTasksTerminal reports whether every task has reached a terminal state.
func (s *Scan) AllTasksTerminal() bool {
	return s.TerminalTaskCount() == len(s.tasks)
}

// Finalize computes and applies the scan's terminal status from its tasks.
// Every task must already be terminal. A scan whose cancellation was
// requested always finalizes as CANCELLED, even when tasks succeeded
// first; their merged results stay readable on the scan. Otherwise the
// scan is COMPLETED when at least one task succeeded and FAILED when none
// did, so a scan-level deadline that cut off still-running tasks is not a
// failure if some task had already succeeded.
func (s *Scan) Finalize() error {
	if s.cancelRequested {
		return s.updateStatus(ScanStatusCancelled)
	}
	target := ScanStatusFailed
	for _, t := range s.tasks {
		if t.Status() == TaskStatusSucceeded {
			target = ScanStatusCompleted
			break
		}
	}
	return s.updateStatus(target)
}

// updateStatus changes the scan's status after validating the transition.
func (s *Scan) updateStatus(newStatus ScanStatus) error {
	if err := s.status.validateTransition(newStatus); err != nil {
		return err
	}

	if s.status == ScanStatusPending && newStatus == ScanStatusRunning {
		s.timeline.MarkStarted()
	}
	if newStatus.IsTerminal() {
		s.timeline.MarkCompleted()
	}

	s.status = newStatus
	return nil
}

// Snapshot returns a deep copy of the scan safe for concurrent readers. For
// terminal scans repeated snapshots are stable across calls.
func (s *Scan) Snapshot() *Scan {
	tl := *s.timeline
	tasks := make([]*Task, len(s.tasks))
	for i, t := range s.tasks {
		tasks[i] = t.clone()
	}
	return &Scan{
		id:              s.id,
		target:          s.target,
		request:         s.request,
		status:          s.status,
		timeline:        &tl,
		tasks:           tasks,
		result:          s.result.Snapshot(),
		cancelRequested: s.cancelRequested,
	}
}

// Summary condenses the scan for listings.
type ScanSummary struct {
	ID        uuid.UUID
	Target    string
	Status    ScanStatus
	CreatedAt time.Time
	EndedAt   time.Time
	TaskCount int
}

// Summarize builds a ScanSummary for listing endpoints.
func (s *Scan) Summarize() ScanSummary {
	endedAt, _ := s.EndTime()
	return ScanSummary{
		ID:        s.id,
		Target:    s.target,
		Status:    s.status,
		CreatedAt: s.timeline.CreatedAt(),
		EndedAt:   endedAt,
		TaskCount: len(s.tasks),
	}
}
