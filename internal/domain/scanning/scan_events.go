package scanning

import (
	"github.com/google/uuid"

	"github.com/sitescout/sitescout/internal/domain/events"
)

// Event types emitted by the scheduler on scan and task transitions.
// Transports and other external observers subscribe to these through the
// event bus; in-process progress streaming goes through the publisher.
const (
	EventTypeScanSubmitted  events.EventType = "scan.submitted"
	EventTypeScanStarted    events.EventType = "scan.started"
	EventTypeScanCompleted  events.EventType = "scan.completed"
	EventTypeScanFailed     events.EventType = "scan.failed"
	EventTypeScanCancelled  events.EventType = "scan.cancelled"
	EventTypeTaskTransition events.EventType = "scan.task_transition"
)

// ScanLifecycleEvent signals a scan status change.
type ScanLifecycleEvent struct {
	ScanID uuid.UUID
	Target string
	Status ScanStatus
}

// NewScanLifecycleEvent builds the lifecycle event for a scan's current state.
func NewScanLifecycleEvent(scan *Scan) events.DomainEvent {
	payload := ScanLifecycleEvent{
		ScanID: scan.ID(),
		Target: scan.Target(),
		Status: scan.Status(),
	}

	eventType := EventTypeScanSubmitted
	switch scan.Status() {
	case ScanStatusRunning:
		eventType = EventTypeScanStarted
	case ScanStatusCompleted:
		eventType = EventTypeScanCompleted
	case ScanStatusFailed:
		eventType = EventTypeScanFailed
	case ScanStatusCancelled:
		eventType = EventTypeScanCancelled
	}

	return events.NewDomainEvent(eventType, payload)
}

// TaskTransitionEvent signals a task status change within a scan.
type TaskTransitionEvent struct {
	ScanID     uuid.UUID
	Enumerator string
	Status     TaskStatus
	Reason     string
}

// NewTaskTransitionEvent builds the transition event for a task's current state.
func NewTaskTransitionEvent(scanID uuid.UUID, task *Task) events.DomainEvent {
	return events.NewDomainEvent(EventTypeTaskTransition, TaskTransitionEvent{
		ScanID:     scanID,
		Enumerator: task.Enumerator(),
		Status:     task.Status(),
		Reason:     task.FailureReason(),
	})
}
