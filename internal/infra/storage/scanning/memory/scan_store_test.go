package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitescout/sitescout/internal/domain/scanning"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newScanAt(target string, createdAt time.Time) *scanning.Scan {
	scan := scanning.NewScan(
		scanning.NewScanRequest(target),
		scanning.WithScanTimeProvider(&fixedClock{now: createdAt}),
	)
	scan.AddTask(scanning.NewTask("web_scanner"))
	return scan
}

func TestLoadUnknownScanReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	_, err := store.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, scanning.ErrScanNotFound)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	scan := newScanAt("example.com", time.Now())

	require.NoError(t, store.Save(ctx, scan))

	loaded, err := store.Load(ctx, scan.ID())
	require.NoError(t, err)
	assert.Equal(t, scan.ID(), loaded.ID())
	assert.Equal(t, "example.com", loaded.Target())
	assert.Equal(t, scanning.ScanStatusPending, loaded.Status())
	assert.Len(t, loaded.Tasks(), 1)
}

func TestStoredScansAreIsolatedFromCallers(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	scan := newScanAt("example.com", time.Now())
	require.NoError(t, store.Save(ctx, scan))

	// Mutating the original after saving must not alter the stored copy.
	require.NoError(t, scan.Start())

	loaded, err := store.Load(ctx, scan.ID())
	require.NoError(t, err)
	assert.Equal(t, scanning.ScanStatusPending, loaded.Status())

	// Mutating a loaded copy must not alter the stored copy either.
	require.NoError(t, loaded.Start())

	again, err := store.Load(ctx, scan.ID())
	require.NoError(t, err)
	assert.Equal(t, scanning.ScanStatusPending, again.Status())
}

func TestSaveReplacesPreviousVersion(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	scan := newScanAt("example.com", time.Now())

	require.NoError(t, store.Save(ctx, scan))
	require.NoError(t, scan.Start())
	require.NoError(t, store.Save(ctx, scan))

	loaded, err := store.Load(ctx, scan.ID())
	require.NoError(t, err)
	assert.Equal(t, scanning.ScanStatusRunning, loaded.Status())

	page, err := store.List(ctx, scanning.ScanFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
}

func TestListOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	oldest := newScanAt("a.example", base)
	middle := newScanAt("b.example", base.Add(time.Hour))
	newest := newScanAt("c.example", base.Add(2*time.Hour))
	for _, scan := range []*scanning.Scan{middle, oldest, newest} {
		require.NoError(t, store.Save(ctx, scan))
	}

	page, err := store.List(ctx, scanning.ScanFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Summaries, 3)
	assert.Equal(t, newest.ID(), page.Summaries[0].ID)
	assert.Equal(t, middle.ID(), page.Summaries[1].ID)
	assert.Equal(t, oldest.ID(), page.Summaries[2].ID)
	assert.False(t, page.HasMore)
}

func TestListFiltersByTargetAndStatus(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	now := time.Now()

	pending := newScanAt("example.com", now)
	running := newScanAt("example.com", now.Add(time.Minute))
	require.NoError(t, running.Start())
	other := newScanAt("other.example", now.Add(2*time.Minute))
	for _, scan := range []*scanning.Scan{pending, running, other} {
		require.NoError(t, store.Save(ctx, scan))
	}

	page, err := store.List(ctx, scanning.ScanFilter{Target: "example.com"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)

	page, err = store.List(ctx, scanning.ScanFilter{
		Target:   "example.com",
		Statuses: []scanning.ScanStatus{scanning.ScanStatusRunning},
	}, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Summaries, 1)
	assert.Equal(t, running.ID(), page.Summaries[0].ID)
}

func TestListPaginates(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, newScanAt("example.com", base.Add(time.Duration(i)*time.Minute))))
	}

	first, err := store.List(ctx, scanning.ScanFilter{}, 2, 0)
	require.NoError(t, err)
	assert.Len(t, first.Summaries, 2)
	assert.Equal(t, 5, first.TotalCount)
	assert.True(t, first.HasMore)

	last, err := store.List(ctx, scanning.ScanFilter{}, 2, 4)
	require.NoError(t, err)
	assert.Len(t, last.Summaries, 1)
	assert.False(t, last.HasMore)

	past, err := store.List(ctx, scanning.ScanFilter{}, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, past.Summaries)
	assert.Equal(t, 5, past.TotalCount)
	assert.False(t, past.HasMore)
}

func TestDeleteRemovesScan(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	scan := newScanAt("example.com", time.Now())
	require.NoError(t, store.Save(ctx, scan))

	require.NoError(t, store.Delete(ctx, scan.ID()))

	_, err := store.Load(ctx, scan.ID())
	assert.ErrorIs(t, err, scanning.ErrScanNotFound)
	assert.ErrorIs(t, store.Delete(ctx, scan.ID()), scanning.ErrScanNotFound)
}
