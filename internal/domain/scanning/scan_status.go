package scanning

import (
	"errors"
	"fmt"
)

// ScanStatus represents the lifecycle state of a scan. It enables tracking of
// a scan from submission through completion, failure, or cancellation.
type ScanStatus string

// ErrScanStatusUnknown is returned when a scan status cannot be parsed.
var ErrScanStatusUnknown = errors.New("scan status unknown")

const (
	// ScanStatusPending indicates a scan has been accepted but no task has
	// been dispatched yet.
	ScanStatusPending ScanStatus = "PENDING"

	// ScanStatusRunning indicates at least one task has been dispatched and
	// the scan has not yet reached a terminal state.
	ScanStatusRunning ScanStatus = "RUNNING"

	// ScanStatusCompleted indicates every task is terminal and at least one
	// task succeeded.
	ScanStatusCompleted ScanStatus = "COMPLETED"

	// ScanStatusFailed indicates every task is terminal and none succeeded.
	ScanStatusFailed ScanStatus = "FAILED"

	// ScanStatusCancelled indicates the scan ended because cancellation was
	// requested before it could complete.
	ScanStatusCancelled ScanStatus = "CANCELLED"

	// ScanStatusUnspecified is used when a scan status is unknown.
	ScanStatusUnspecified ScanStatus = "UNSPECIFIED"
)

// String returns the string representation of the ScanStatus.
func (s ScanStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are allowed out of this status.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusCancelled
}

// ParseScanStatus converts a string to a ScanStatus.
func ParseScanStatus(s string) ScanStatus {
	switch s {
	case "PENDING":
		return ScanStatusPending
	case "RUNNING":
		return ScanStatusRunning
	case "COMPLETED":
		return ScanStatusCompleted
	case "FAILED":
		return ScanStatusFailed
	case "CANCELLED":
		return ScanStatusCancelled
	default:
		return ScanStatusUnspecified
	}
}

// validateTransition checks if a status transition is valid and returns an error if not.
func (s ScanStatus) validateTransition(target ScanStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid scan status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. It enforces the scan lifecycle rules to prevent invalid state changes.
func (s ScanStatus) isValidTransition(target ScanStatus) bool {
	switch s {
	case ScanStatusPending:
		// From Pending, dispatch moves the scan to Running; cancellation
		// before any dispatch moves it straight to Cancelled.
		return target == ScanStatusRunning || target == ScanStatusCancelled
	case ScanStatusRunning:
		return target == ScanStatusCompleted || target == ScanStatusFailed || target == ScanStatusCancelled
	case ScanStatusCompleted, ScanStatusFailed, ScanStatusCancelled:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
