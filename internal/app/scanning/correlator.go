// Package scanning contains the application services that drive scans: the
// scheduler that owns scan execution, the correlator that merges enumerator
// results, the progress publisher, and the orchestrator facade exposed to
// transport layers.
package scanning

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/sitescout/sitescout/internal/domain/scanning"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

// ErrCorrelatorStopped is returned when a merge is requested after the
// correlator has shut down.
var ErrCorrelatorStopped = errors.New("correlator stopped")

// mergeRequest carries one terminal task outcome to the correlator goroutine.
type mergeRequest struct {
	aggregate *domain.ScanResult
	result    domain.EnumerationResult
	done      chan struct{}
}

// Correlator merges enumerator results into scan aggregates under a
// single-writer discipline. All merges flow through one channel consumed by
// one goroutine, so an aggregate is never mutated by interleaved writers even
// when tasks from many scans complete concurrently.
type Correlator struct {
	requests chan mergeRequest

	stopOnce sync.Once
	stopped  chan struct{}

	logger *logger.Logger
	tracer trace.Tracer
}

// NewCorrelator returns a correlator ready to accept merges once Run is
// started.
func NewCorrelator(logger *logger.Logger, tracer trace.Tracer) *Correlator {
	return &Correlator{
		requests: make(chan mergeRequest),
		stopped:  make(chan struct{}),
		logger:   logger.With("component", "correlator"),
		tracer:   tracer,
	}
}

// Run consumes merge requests until ctx is cancelled or Stop is called.
// It must be running for Merge calls to complete.
func (c *Correlator) Run(ctx context.Context) error {
	c.logger.Info(ctx, "Correlator started")
	defer c.logger.Info(ctx, "Correlator stopped")

	for {
		select {
		case req := <-c.requests:
			req.aggregate.Merge(req.result)
			close(req.done)
		case <-ctx.Done():
			c.stopOnce.Do(func() { close(c.stopped) })
			return ctx.Err()
		case <-c.stopped:
			return nil
		}
	}
}

// Stop halts the correlator. Pending Merge calls return ErrCorrelatorStopped.
func (c *Correlator) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

// Merge applies one enumeration result to the scan aggregate and returns once
// the merge is visible. Calls from concurrent task goroutines are serialized
// in arrival order.
func (c *Correlator) Merge(ctx context.Context, aggregate *domain.ScanResult, result domain.EnumerationResult) error {
	ctx, span := c.tracer.Start(ctx, "correlator.merge",
		trace.WithAttributes(
			attribute.String("enumerator", result.Enumerator()),
			attribute.String("target", result.Target()),
		))
	defer span.End()

	req := mergeRequest{aggregate: aggregate, result: result, done: make(chan struct{})}

	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrCorrelatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		span.AddEvent("result_merged")
		return nil
	case <-c.stopped:
		return ErrCorrelatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
