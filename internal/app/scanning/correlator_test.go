package scanning

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/sitescout/sitescout/internal/domain/scanning"
)

func startCorrelator(t *testing.T) *Correlator {
	t.Helper()
	c := NewCorrelator(testLogger(), testTracer())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(context.Background())
	}()
	t.Cleanup(func() {
		c.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("correlator did not stop")
		}
	})
	return c
}

func TestMergeIsVisibleOnReturn(t *testing.T) {
	t.Parallel()

	c := startCorrelator(t)
	aggregate := domain.NewScanResult("example.com")

	result := domain.NewEnumerationResult("web_scanner", "example.com",
		map[string][]string{"emails": {"info@example.com"}}, nil, nil, time.Second)
	require.NoError(t, c.Merge(context.Background(), aggregate, result))

	assert.Equal(t, []string{"info@example.com"}, aggregate.Field("emails"))
}

func TestConcurrentMergesAllLand(t *testing.T) {
	t.Parallel()

	c := startCorrelator(t)
	aggregate := domain.NewScanResult("example.com")

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result := domain.NewEnumerationResult(
				fmt.Sprintf("enum-%d", i), "example.com",
				map[string][]string{"subdomains": {fmt.Sprintf("s%d.example.com", i)}},
				nil, nil, 0)
			assert.NoError(t, c.Merge(context.Background(), aggregate, result))
		}(i)
	}
	wg.Wait()

	assert.Len(t, aggregate.Field("subdomains"), writers)
	assert.Len(t, aggregate.Sources(), writers)
}

func TestMergeAfterStopReturnsStoppedError(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(testLogger(), testTracer())
	go func() { _ = c.Run(context.Background()) }()
	c.Stop()

	err := c.Merge(context.Background(), domain.NewScanResult("example.com"),
		domain.NewEnumerationResult("web_scanner", "example.com", nil, nil, nil, 0))
	assert.ErrorIs(t, err, ErrCorrelatorStopped)
}

func TestMergeHonorsCallerContext(t *testing.T) {
	t.Parallel()

	// Run is never started, so the send blocks until the context ends.
	c := NewCorrelator(testLogger(), testTracer())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Merge(ctx, domain.NewScanResult("example.com"),
		domain.NewEnumerationResult("web_scanner", "example.com", nil, nil, nil, 0))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunReturnsWhenContextEnds(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(testLogger(), testTracer())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("correlator did not exit on context cancellation")
	}
}
