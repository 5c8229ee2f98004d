package scanning

import (
	"context"

	"github.com/google/uuid"
)

// ScanFilter narrows List results. Zero values match everything.
type ScanFilter struct {
	// Target matches scans for this exact target when non-empty.
	Target string

	// Statuses matches scans in any of these states when non-empty.
	Statuses []ScanStatus
}

// Matches reports whether a summary passes the filter.
func (f ScanFilter) Matches(s ScanSummary) bool {
	if f.Target != "" && f.Target != s.Target {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if st == s.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// ScanPage is one page of scan summaries plus pagination metadata.
type ScanPage struct {
	Summaries  []ScanSummary
	TotalCount int
	HasMore    bool
}

// ScanRepository is the persistence gateway for terminal scans. The scheduler
// calls Save exactly once per terminal transition; implementations may
// checkpoint more often but are not required to. Concrete backends live
// outside this domain.
type ScanRepository interface {
	// Save persists the scan's current state.
	Save(ctx context.Context, scan *Scan) error

	// Load retrieves a scan by id. It returns ErrScanNotFound when the id
	// is unknown.
	Load(ctx context.Context, id uuid.UUID) (*Scan, error)

	// List retrieves a filtered, paginated page of scan summaries ordered
	// by creation time, newest first.
	List(ctx context.Context, filter ScanFilter, limit, offset int) (ScanPage, error)

	// Delete removes a scan. It returns ErrScanNotFound when the id is
	// unknown.
	Delete(ctx context.Context, id uuid.UUID) error
}
