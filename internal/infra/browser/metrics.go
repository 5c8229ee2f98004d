package browser

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// PoolMetrics defines the metrics operations recorded by the pool.
type PoolMetrics interface {
	// Slot metrics
	IncSlotAcquired(ctx context.Context)
	IncSlotReleased(ctx context.Context)
	IncAcquireTimeout(ctx context.Context)

	// Instance metrics
	IncInstanceLaunched(ctx context.Context)
	IncInstanceRecycled(ctx context.Context)
}

// poolMetrics implements PoolMetrics.
type poolMetrics struct {
	heldSlots       metric.Int64UpDownCounter
	acquireTimeouts metric.Int64Counter

	instancesLaunched metric.Int64Counter
	instancesRecycled metric.Int64Counter
}

const poolNamespace = "browser_pool"

// NewPoolMetrics creates a new pool metrics instance.
func NewPoolMetrics(mp metric.MeterProvider) (*poolMetrics, error) {
	meter := mp.Meter(poolNamespace)

	m := new(poolMetrics)
	var err error

	if m.heldSlots, err = meter.Int64UpDownCounter(
		"held_slots",
		metric.WithDescription("Number of pool slots currently held by tasks"),
	); err != nil {
		return nil, err
	}

	if m.acquireTimeouts, err = meter.Int64Counter(
		"acquire_timeouts_total",
		metric.WithDescription("Total number of acquires that timed out waiting for a slot"),
	); err != nil {
		return nil, err
	}

	if m.instancesLaunched, err = meter.Int64Counter(
		"instances_launched_total",
		metric.WithDescription("Total number of browser instances launched"),
	); err != nil {
		return nil, err
	}

	if m.instancesRecycled, err = meter.Int64Counter(
		"instances_recycled_total",
		metric.WithDescription("Total number of browser instances closed instead of reused"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *poolMetrics) IncSlotAcquired(ctx context.Context) { m.heldSlots.Add(ctx, 1) }
func (m *poolMetrics) IncSlotReleased(ctx context.Context) { m.heldSlots.Add(ctx, -1) }
func (m *poolMetrics) IncAcquireTimeout(ctx context.Context) {
	m.acquireTimeouts.Add(ctx, 1)
}
func (m *poolMetrics) IncInstanceLaunched(ctx context.Context) {
	m.instancesLaunched.Add(ctx, 1)
}
func (m *poolMetrics) IncInstanceRecycled(ctx context.Context) {
	m.instancesRecycled.Add(ctx, 1)
}
