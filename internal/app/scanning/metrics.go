package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/sitescout/sitescout/internal/domain/scanning"
)

// SchedulerMetrics defines the metrics operations recorded by the scheduler.
type SchedulerMetrics interface {
	// Scan metrics
	IncScanSubmitted(ctx context.Context)
	ObserveScanFinished(ctx context.Context, status domain.ScanStatus, duration time.Duration)

	// Task metrics
	ObserveTaskFinished(ctx context.Context, enumerator string, status domain.TaskStatus)
}

// schedulerMetrics implements SchedulerMetrics.
type schedulerMetrics struct {
	scansSubmitted metric.Int64Counter
	scansFinished  metric.Int64Counter
	scanDuration   metric.Float64Histogram

	tasksFinished metric.Int64Counter
}

const schedulerNamespace = "scheduler"

// NewSchedulerMetrics creates a new scheduler metrics instance.
func NewSchedulerMetrics(mp metric.MeterProvider) (*schedulerMetrics, error) {
	meter := mp.Meter(schedulerNamespace)

	m := new(schedulerMetrics)
	var err error

	if m.scansSubmitted, err = meter.Int64Counter(
		"scans_submitted_total",
		metric.WithDescription("Total number of scans accepted for execution"),
	); err != nil {
		return nil, err
	}

	if m.scansFinished, err = meter.Int64Counter(
		"scans_finished_total",
		metric.WithDescription("Total number of scans that reached a terminal status"),
	); err != nil {
		return nil, err
	}

	if m.scanDuration, err = meter.Float64Histogram(
		"scan_duration_seconds",
		metric.WithDescription("Wall-clock time from scan creation to terminal status"),
	); err != nil {
		return nil, err
	}

	if m.tasksFinished, err = meter.Int64Counter(
		"tasks_finished_total",
		metric.WithDescription("Total number of tasks that reached a terminal status"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *schedulerMetrics) IncScanSubmitted(ctx context.Context) {
	m.scansSubmitted.Add(ctx, 1)
}

func (m *schedulerMetrics) ObserveScanFinished(ctx context.Context, status domain.ScanStatus, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.scansFinished.Add(ctx, 1, attrs)
	m.scanDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *schedulerMetrics) ObserveTaskFinished(ctx context.Context, enumerator string, status domain.TaskStatus) {
	m.tasksFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("enumerator", enumerator),
		attribute.String("status", string(status)),
	))
}
