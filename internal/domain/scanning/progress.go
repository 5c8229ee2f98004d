package scanning

import (
	"time"

	"github.com/google/uuid"
)

// Progress is a point-in-time view of a scan published to subscribers on
// every task transition. It carries a snapshot of the partial result so slow
// consumers never observe the live aggregate mid-merge.
type Progress struct {
	scanID           uuid.UUID
	status           ScanStatus
	sequenceNum      int64
	timestamp        time.Time
	completedTasks   int
	totalTasks       int
	currentOperation string
	partialResult    *ScanResult
}

// NewProgress creates a progress update for a scan transition.
func NewProgress(
	scanID uuid.UUID,
	status ScanStatus,
	sequenceNum int64,
	completedTasks int,
	totalTasks int,
	currentOperation string,
	partialResult *ScanResult,
) Progress {
	return Progress{
		scanID:           scanID,
		status:           status,
		sequenceNum:      sequenceNum,
		timestamp:        time.Now(),
		completedTasks:   completedTasks,
		totalTasks:       totalTasks,
		currentOperation: currentOperation,
		partialResult:    partialResult,
	}
}

// ScanID returns the scan this update describes.
func (p Progress) ScanID() uuid.UUID { return p.scanID }

// Status returns the scan status at the time of the update.
func (p Progress) Status() ScanStatus { return p.status }

// SequenceNum returns the per-scan sequence number of this update.
func (p Progress) SequenceNum() int64 { return p.sequenceNum }

// Timestamp returns when the update was created.
func (p Progress) Timestamp() time.Time { return p.timestamp }

// CompletedTasks returns how many tasks were terminal at update time.
func (p Progress) CompletedTasks() int { return p.completedTasks }

// TotalTasks returns the scan's total task count.
func (p Progress) TotalTasks() int { return p.totalTasks }

// PercentComplete returns terminal tasks over total tasks, in [0, 100].
func (p Progress) PercentComplete() float64 {
	if p.totalTasks == 0 {
		return 0
	}
	return float64(p.completedTasks) / float64(p.totalTasks) * 100
}

// CurrentOperation returns a human-readable description of what the scan is
// doing, e.g. "web_scanner running".
func (p Progress) CurrentOperation() string { return p.currentOperation }

// PartialResult returns a snapshot of the merged result so far, nil when no
// task has produced data yet.
func (p Progress) PartialResult() *ScanResult { return p.partialResult }

// IsFinal reports whether this is the terminal update for the scan.
func (p Progress) IsFinal() bool { return p.status.IsTerminal() }
