package scanning

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/sitescout/sitescout/internal/domain/scanning"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func testTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("test")
}

func progressUpdate(scanID uuid.UUID, status domain.ScanStatus, seq int64) domain.Progress {
	return domain.NewProgress(scanID, status, seq, 0, 1, "testing", domain.NewScanResult("example.com"))
}

func collect(t *testing.T, ch <-chan domain.Progress) []domain.Progress {
	t.Helper()
	var got []domain.Progress
	for {
		select {
		case update, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, update)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for progress stream to close")
		}
	}
}

func TestSubscriberReceivesUpdatesInOrder(t *testing.T) {
	t.Parallel()

	pub := NewProgressPublisher(8, testLogger(), testTracer())
	scanID := uuid.New()
	ctx := context.Background()

	ch, err := pub.Subscribe(ctx, scanID)
	require.NoError(t, err)

	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusRunning, 1))
	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusRunning, 2))
	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusCompleted, 3))

	got := collect(t, ch)
	require.Len(t, got, 3)
	for i, update := range got {
		assert.Equal(t, int64(i+1), update.SequenceNum())
	}
	assert.True(t, got[2].IsFinal())
}

func TestSlowSubscriberDropsOldestFirst(t *testing.T) {
	t.Parallel()

	pub := NewProgressPublisher(2, testLogger(), testTracer())
	scanID := uuid.New()
	ctx := context.Background()

	ch, err := pub.Subscribe(ctx, scanID)
	require.NoError(t, err)

	// Nothing consumes while five updates arrive into a buffer of two.
	for seq := int64(1); seq <= 4; seq++ {
		pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusRunning, seq))
	}
	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusCompleted, 5))

	got := collect(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].SequenceNum())
	assert.Equal(t, int64(5), got[1].SequenceNum())
}

func TestFinalUpdateClosesAllStreams(t *testing.T) {
	t.Parallel()

	pub := NewProgressPublisher(8, testLogger(), testTracer())
	scanID := uuid.New()
	ctx := context.Background()

	first, err := pub.Subscribe(ctx, scanID)
	require.NoError(t, err)
	second, err := pub.Subscribe(ctx, scanID)
	require.NoError(t, err)

	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusCancelled, 1))

	for _, ch := range []<-chan domain.Progress{first, second} {
		got := collect(t, ch)
		require.Len(t, got, 1)
		assert.Equal(t, domain.ScanStatusCancelled, got[0].Status())
	}
}

func TestLateSubscriberObservesTerminalState(t *testing.T) {
	t.Parallel()

	pub := NewProgressPublisher(8, testLogger(), testTracer())
	scanID := uuid.New()
	ctx := context.Background()

	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusRunning, 1))
	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusCompleted, 2))

	ch, err := pub.Subscribe(ctx, scanID)
	require.NoError(t, err)

	got := collect(t, ch)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ScanStatusCompleted, got[0].Status())
	assert.Equal(t, int64(2), got[0].SequenceNum())
}

func TestSubscribersAreIndependent(t *testing.T) {
	t.Parallel()

	pub := NewProgressPublisher(1, testLogger(), testTracer())
	scanID := uuid.New()
	ctx := context.Background()

	// A saturated slow subscriber must not affect what a fast one sees.
	slow, err := pub.Subscribe(ctx, scanID)
	require.NoError(t, err)
	fast, err := pub.Subscribe(ctx, scanID)
	require.NoError(t, err)

	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusRunning, 1))

	select {
	case update := <-fast:
		assert.Equal(t, int64(1), update.SequenceNum())
	case <-time.After(time.Second):
		t.Fatal("fast subscriber did not receive update")
	}

	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusRunning, 2))
	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusCompleted, 3))

	got := collect(t, slow)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].SequenceNum())

	got = collect(t, fast)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].SequenceNum())
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
	t.Parallel()

	pub := NewProgressPublisher(8, testLogger(), testTracer())
	scanID := uuid.New()
	subCtx, cancel := context.WithCancel(context.Background())

	ch, err := pub.Subscribe(subCtx, scanID)
	require.NoError(t, err)
	cancel()

	// The stream closes without a final update once the subscription ends.
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestForgetDropsRetainedFinal(t *testing.T) {
	t.Parallel()

	pub := NewProgressPublisher(8, testLogger(), testTracer())
	scanID := uuid.New()
	ctx := context.Background()

	pub.Publish(ctx, progressUpdate(scanID, domain.ScanStatusCompleted, 1))
	pub.Forget(scanID)

	ch, err := pub.Subscribe(ctx, scanID)
	require.NoError(t, err)

	// No retained final remains, so the stream stays open and empty.
	select {
	case update, ok := <-ch:
		t.Fatalf("unexpected receive: %v (open=%v)", update, ok)
	case <-time.After(50 * time.Millisecond):
	}
}
