package scanning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	domain "github.com/sitescout/sitescout/internal/domain/scanning"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestSchedulerMetricsRecordTerminalStatuses(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	metrics, err := NewSchedulerMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.IncScanSubmitted(ctx)
	metrics.IncScanSubmitted(ctx)
	metrics.ObserveScanFinished(ctx, domain.ScanStatusCompleted, 2*time.Second)
	metrics.ObserveTaskFinished(ctx, "web_scanner", domain.TaskStatusSucceeded)
	metrics.ObserveTaskFinished(ctx, "web_scanner", domain.TaskStatusCancelled)

	collected := collectMetrics(t, reader)

	submitted, ok := collected["scans_submitted_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, submitted.DataPoints, 1)
	assert.Equal(t, int64(2), submitted.DataPoints[0].Value)

	finished, ok := collected["scans_finished_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, finished.DataPoints, 1)
	status, _ := finished.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, string(domain.ScanStatusCompleted), status.AsString())

	tasks, ok := collected["tasks_finished_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, tasks.DataPoints, 2)

	duration, ok := collected["scan_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)
}
