package scanning

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrScanNotFound is returned when a scan id does not resolve to a known scan.
var ErrScanNotFound = errors.New("scan not found")

// ErrNoEnumerators is returned when a request names no resolvable enumerator.
var ErrNoEnumerators = errors.New("no resolvable enumerators requested")

// ErrEmptyTarget is returned when a request carries an empty target.
var ErrEmptyTarget = errors.New("scan target must not be empty")

// ConfigError indicates an enumerator's required configuration keys are
// missing from the request options. It is surfaced before slot acquisition so
// no pool resource is consumed for a task that cannot run.
type ConfigError struct {
	Enumerator  string
	MissingKeys []string
}

// Error returns a string representation of the error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("enumerator %s missing required config keys: %s",
		e.Enumerator, strings.Join(e.MissingKeys, ", "))
}

// EnumeratorError indicates an enumerator implementation reported a failure.
// The task is marked FAILED; sibling tasks are unaffected.
type EnumeratorError struct {
	Enumerator string
	Err        error
}

// Error returns a string representation of the error.
func (e *EnumeratorError) Error() string {
	return fmt.Sprintf("enumerator %s failed: %v", e.Enumerator, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *EnumeratorError) Unwrap() error { return e.Err }

// TimeoutError indicates a task exceeded its per-task timeout while running.
type TimeoutError struct {
	Enumerator string
	Timeout    time.Duration
}

// Error returns a string representation of the error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("enumerator %s exceeded per-task timeout of %s", e.Enumerator, e.Timeout)
}

// PoolExhaustedError indicates a pool slot could not be acquired within the
// configured wait bound. The task is marked FAILED; siblings keep waiting on
// their own acquires.
type PoolExhaustedError struct {
	Enumerator string
	WaitBound  time.Duration
}

// Error returns a string representation of the error.
func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("no browser slot became available for enumerator %s within %s", e.Enumerator, e.WaitBound)
}

// CancellationError indicates a scan or task ended due to an explicit
// cancellation request. It is distinct from FAILED so callers can
// distinguish "gave up" from "asked to stop".
type CancellationError struct {
	ScanID     uuid.UUID
	Enumerator string
}

// Error returns a string representation of the error.
func (e *CancellationError) Error() string {
	if e.Enumerator == "" {
		return fmt.Sprintf("scan %s cancelled", e.ScanID)
	}
	return fmt.Sprintf("task %s of scan %s cancelled", e.Enumerator, e.ScanID)
}
