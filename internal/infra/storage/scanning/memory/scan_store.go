// Package memory provides an in-memory implementation of the scan repository
// for single-process deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sitescout/sitescout/internal/domain/scanning"
)

var _ scanning.ScanRepository = (*ScanStore)(nil)

// ScanStore provides an in-memory implementation of scanning.ScanRepository.
// Stored scans are isolated from callers through deep-copied snapshots so a
// caller mutating a loaded scan never alters the stored state.
type ScanStore struct {
	mu    sync.RWMutex
	scans map[uuid.UUID]*scanning.Scan
}

// NewScanStore creates an empty in-memory scan store.
func NewScanStore() *ScanStore {
	return &ScanStore{scans: make(map[uuid.UUID]*scanning.Scan)}
}

// Save persists a snapshot of the scan's current state, replacing any
// previous version.
func (s *ScanStore) Save(ctx context.Context, scan *scanning.Scan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[scan.ID()] = scan.Snapshot()
	return nil
}

// Load retrieves a scan by id. It returns scanning.ErrScanNotFound when the
// id is unknown.
func (s *ScanStore) Load(ctx context.Context, id uuid.UUID) (*scanning.Scan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scan, exists := s.scans[id]
	if !exists {
		return nil, scanning.ErrScanNotFound
	}
	return scan.Snapshot(), nil
}

// List retrieves a filtered, paginated page of scan summaries ordered by
// creation time, newest first.
func (s *ScanStore) List(ctx context.Context, filter scanning.ScanFilter, limit, offset int) (scanning.ScanPage, error) {
	if err := ctx.Err(); err != nil {
		return scanning.ScanPage{}, err
	}

	s.mu.RLock()
	summaries := make([]scanning.ScanSummary, 0, len(s.scans))
	for _, scan := range s.scans {
		summary := scan.Summarize()
		if filter.Matches(summary) {
			summaries = append(summaries, summary)
		}
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID.String() > summaries[j].ID.String()
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	total := len(summaries)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	return scanning.ScanPage{
		Summaries:  summaries[offset:end],
		TotalCount: total,
		HasMore:    end < total,
	}, nil
}

// Delete removes a scan. It returns scanning.ErrScanNotFound when the id is
// unknown.
func (s *ScanStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scans[id]; !exists {
		return scanning.ErrScanNotFound
	}
	delete(s.scans, id)
	return nil
}
