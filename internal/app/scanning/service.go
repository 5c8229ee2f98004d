package scanning

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitescout/sitescout/internal/domain/enumeration"
	domain "github.com/sitescout/sitescout/internal/domain/scanning"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

// ScanOrchestrator is the boundary facade toward transport layers. It wraps
// the scheduler, registry, store, and progress publisher behind the
// operations a CLI, HTTP, or RPC surface needs, leaving those surfaces free
// of orchestration concerns.
type ScanOrchestrator struct {
	scheduler *Scheduler
	registry  *enumeration.Registry
	store     domain.ScanRepository
	progress  *ProgressPublisher

	// optionDefaults holds per-enumerator option defaults from configuration,
	// merged beneath each request's own options.
	optionDefaults map[string]map[string]string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewScanOrchestrator wires the facade over its collaborators.
func NewScanOrchestrator(
	scheduler *Scheduler,
	registry *enumeration.Registry,
	store domain.ScanRepository,
	progress *ProgressPublisher,
	optionDefaults map[string]map[string]string,
	logger *logger.Logger,
	tracer trace.Tracer,
) *ScanOrchestrator {
	return &ScanOrchestrator{
		scheduler:      scheduler,
		registry:       registry,
		store:          store,
		progress:       progress,
		optionDefaults: optionDefaults,
		logger:         logger.With("component", "scan_orchestrator"),
		tracer:         tracer,
	}
}

// SubmitScan accepts a scan for the target, returning its id immediately.
// Empty enumerators means all enabled enumerators. Configured option
// defaults for the requested enumerators are merged beneath the request's
// own options.
func (o *ScanOrchestrator) SubmitScan(ctx context.Context, target string, enumerators []string, options map[string]string) (uuid.UUID, error) {
	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.submit_scan",
		trace.WithAttributes(
			attribute.String("target", target),
			attribute.Int("enumerator_count", len(enumerators)),
		))
	defer span.End()

	merged := o.mergeOptions(enumerators, options)
	request := domain.NewScanRequest(target,
		domain.WithEnumerators(enumerators...),
		domain.WithOptions(merged),
	)

	id, err := o.scheduler.Submit(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return uuid.Nil, err
	}
	span.SetAttributes(attribute.String("scan_id", id.String()))
	return id, nil
}

// GetScan returns a snapshot of the scan, live or stored. It returns
// domain.ErrScanNotFound for unknown ids.
func (o *ScanOrchestrator) GetScan(ctx context.Context, id uuid.UUID) (*domain.Scan, error) {
	return o.scheduler.Get(ctx, id)
}

// ListScans returns a filtered, paginated page of scan summaries, newest
// first.
func (o *ScanOrchestrator) ListScans(ctx context.Context, filter domain.ScanFilter, limit, offset int) (domain.ScanPage, error) {
	return o.store.List(ctx, filter, limit, offset)
}

// CancelScan requests cancellation of a scan. It returns false when the scan
// is already terminal and domain.ErrScanNotFound for unknown ids.
func (o *ScanOrchestrator) CancelScan(ctx context.Context, id uuid.UUID) (bool, error) {
	return o.scheduler.Cancel(ctx, id)
}

// DeleteScan removes a terminal scan from the store and releases retained
// progress state. Deleting a scan that is still executing is rejected;
// cancel it first.
func (o *ScanOrchestrator) DeleteScan(ctx context.Context, id uuid.UUID) error {
	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.delete_scan",
		trace.WithAttributes(attribute.String("scan_id", id.String())))
	defer span.End()

	if !o.scheduler.Forget(id) {
		span.SetStatus(codes.Error, "scan still active")
		return fmt.Errorf("scan %s is still active, cancel it before deleting", id)
	}

	if err := o.store.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}
	o.progress.Forget(id)

	o.logger.Info(ctx, "Scan deleted", "scan_id", id)
	return nil
}

// StreamProgress returns a finite, ordered stream of progress updates for
// the scan, ending with one final update when the scan goes terminal. Each
// call gets its own independent stream from now. It returns
// domain.ErrScanNotFound for unknown ids.
func (o *ScanOrchestrator) StreamProgress(ctx context.Context, id uuid.UUID) (<-chan domain.Progress, error) {
	if _, err := o.scheduler.Get(ctx, id); err != nil {
		return nil, err
	}
	return o.progress.Subscribe(ctx, id)
}

// ListEnumerators returns the descriptors of all registered enumerators,
// sorted by name.
func (o *ScanOrchestrator) ListEnumerators(ctx context.Context) []enumeration.Descriptor {
	return o.registry.List()
}

// mergeOptions layers the request's options over configured defaults for the
// requested enumerators. Request values win.
func (o *ScanOrchestrator) mergeOptions(enumerators []string, options map[string]string) map[string]string {
	names := enumerators
	if len(names) == 0 {
		names = o.registry.EnabledNames()
	}

	merged := make(map[string]string)
	for _, name := range names {
		for k, v := range o.optionDefaults[name] {
			merged[k] = v
		}
	}
	for k, v := range options {
		merged[k] = v
	}
	return merged
}
