package scanning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sitescout/sitescout/internal/domain/enumeration"
	"github.com/sitescout/sitescout/internal/domain/events"
	domain "github.com/sitescout/sitescout/internal/domain/scanning"
	"github.com/sitescout/sitescout/internal/infra/browser"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

// SchedulerConfig controls scan execution timing.
type SchedulerConfig struct {
	// TaskTimeout is the per-task execution budget. The clock starts when
	// the task enters RUNNING, not when it is queued.
	TaskTimeout time.Duration

	// ScanDeadline is applied to scans whose request carries no deadline of
	// its own. Zero means no scan-level deadline.
	ScanDeadline time.Duration

	// GracePeriod bounds how long cancellation waits for an in-flight
	// enumerator to return before its task is abandoned and its slot
	// reclaimed.
	GracePeriod time.Duration
}

// scanState pairs a live scan with its execution controls. The mutex guards
// all scan and task mutation; each task is written only by its own goroutine
// and the finalize step, never both at once.
type scanState struct {
	mu     sync.Mutex
	scan   *domain.Scan
	cancel context.CancelFunc
	seq    int64
}

// taskOutcome is what one enumerator invocation produced.
type taskOutcome struct {
	result domain.EnumerationResult
	err    error
}

// Scheduler owns scan execution: it validates submissions, fans tasks out
// over the browser pool, applies per-task and per-scan timeouts, drives
// cancellation, and finalizes and persists each scan once all its tasks are
// terminal. A Scan is mutated only through its scanState until terminal;
// every other component reads snapshots.
type Scheduler struct {
	cfg SchedulerConfig

	registry   *enumeration.Registry
	pool       *browser.Pool
	store      domain.ScanRepository
	correlator *Correlator
	progress   *ProgressPublisher
	publisher  events.DomainEventPublisher
	metrics    SchedulerMetrics

	mu    sync.RWMutex
	scans map[uuid.UUID]*scanState

	runCtx context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup

	logger *logger.Logger
	tracer trace.Tracer
}

// NewScheduler wires a scheduler over its collaborators. The correlator must
// already be running before scans are submitted.
func NewScheduler(
	cfg SchedulerConfig,
	registry *enumeration.Registry,
	pool *browser.Pool,
	store domain.ScanRepository,
	correlator *Correlator,
	progress *ProgressPublisher,
	publisher events.DomainEventPublisher,
	metrics SchedulerMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Scheduler {
	runCtx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:        cfg,
		registry:   registry,
		pool:       pool,
		store:      store,
		correlator: correlator,
		progress:   progress,
		publisher:  publisher,
		metrics:    metrics,
		scans:      make(map[uuid.UUID]*scanState),
		runCtx:     runCtx,
		stop:       stop,
		logger:     logger.With("component", "scheduler"),
		tracer:     tracer,
	}
}

// Submit validates the request, creates a PENDING scan with one QUEUED task
// per resolvable enumerator, and returns its id immediately. Dispatch happens
// asynchronously. Requested names that do not resolve are skipped with a
// warning; the request is rejected only when none resolve.
func (s *Scheduler) Submit(ctx context.Context, request domain.ScanRequest) (uuid.UUID, error) {
	logger := s.logger.With("operation", "submit", "target", request.Target())
	ctx, span := s.tracer.Start(ctx, "scheduler.submit",
		trace.WithAttributes(attribute.String("target", request.Target())))
	defer span.End()

	if request.Target() == "" {
		span.SetStatus(codes.Error, "empty target")
		return uuid.Nil, domain.ErrEmptyTarget
	}

	names := request.Enumerators()
	if len(names) == 0 {
		names = s.registry.EnabledNames()
	}

	resolvable := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := s.registry.Resolve(name); err != nil {
			logger.Warn(ctx, "Skipping unknown enumerator", "enumerator", name)
			span.AddEvent("enumerator_skipped", trace.WithAttributes(attribute.String("enumerator", name)))
			continue
		}
		resolvable = append(resolvable, name)
	}
	if len(resolvable) == 0 {
		span.SetStatus(codes.Error, "no resolvable enumerators")
		return uuid.Nil, domain.ErrNoEnumerators
	}

	scan := domain.NewScan(request)
	for _, name := range resolvable {
		scan.AddTask(domain.NewTask(name))
	}
	span.SetAttributes(
		attribute.String("scan_id", scan.ID().String()),
		attribute.Int("task_count", len(resolvable)),
	)

	scanCtx, cancel := context.WithCancel(s.runCtx)
	state := &scanState{scan: scan, cancel: cancel}

	s.mu.Lock()
	s.scans[scan.ID()] = state
	s.mu.Unlock()

	// Checkpoint the PENDING scan so listings see it before it finishes.
	if err := s.store.Save(ctx, scan); err != nil {
		logger.Warn(ctx, "Failed to checkpoint submitted scan", "scan_id", scan.ID(), "error", err)
	}
	s.publishLifecycle(ctx, scan)

	s.wg.Add(1)
	go s.execute(scanCtx, state)

	s.metrics.IncScanSubmitted(ctx)
	logger.Info(ctx, "Scan submitted", "scan_id", scan.ID(), "enumerators", resolvable)
	span.AddEvent("scan_submitted")
	return scan.ID(), nil
}

// Cancel signals cancellation of a scan. It returns false when the scan is
// already terminal and ErrScanNotFound when the id is unknown.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.cancel",
		trace.WithAttributes(attribute.String("scan_id", id.String())))
	defer span.End()

	s.mu.RLock()
	state, ok := s.scans[id]
	s.mu.RUnlock()

	if !ok {
		if _, err := s.store.Load(ctx, id); err != nil {
			span.SetStatus(codes.Error, "scan not found")
			return false, err
		}
		// Known only to the store, so it is no longer live.
		return false, nil
	}

	state.mu.Lock()
	requested := state.scan.RequestCancel()
	state.mu.Unlock()

	if requested {
		state.cancel()
		s.logger.Info(ctx, "Scan cancellation requested", "scan_id", id)
		span.AddEvent("cancellation_requested")
	}
	return requested, nil
}

// Get returns a defensively-copied snapshot of a live scan, or the stored
// scan when no live one exists. Terminal snapshots are stable across calls.
func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (*domain.Scan, error) {
	s.mu.RLock()
	state, ok := s.scans[id]
	s.mu.RUnlock()

	if !ok {
		return s.store.Load(ctx, id)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.scan.Snapshot(), nil
}

// Forget drops a terminal scan from the live index, typically after a
// delete. It reports whether the scan is gone from the index; a live
// non-terminal scan is never dropped.
func (s *Scheduler) Forget(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.scans[id]
	if !ok {
		return true
	}

	state.mu.Lock()
	terminal := state.scan.Status().IsTerminal()
	state.mu.Unlock()

	if terminal {
		delete(s.scans, id)
	}
	return terminal
}

// Stop cancels all in-flight scans and waits for them to finalize, bounded
// by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// execute drives one scan from dispatch to finalization.
func (s *Scheduler) execute(ctx context.Context, state *scanState) {
	defer s.wg.Done()

	scanID := state.scan.ID()
	logger := s.logger.With("operation", "execute", "scan_id", scanID)
	ctx, span := s.tracer.Start(ctx, "scheduler.execute",
		trace.WithAttributes(attribute.String("scan_id", scanID.String())))
	defer span.End()

	deadline := state.scan.Request().Deadline()
	if deadline <= 0 {
		deadline = s.cfg.ScanDeadline
	}
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
		span.SetAttributes(attribute.String("scan_deadline", deadline.String()))
	}

	state.mu.Lock()
	if state.scan.CancelRequested() {
		// Cancelled before any dispatch; no task ever ran.
		for _, task := range state.scan.Tasks() {
			if !task.IsTerminal() {
				s.mustTransition(ctx, task.Cancel(&domain.CancellationError{ScanID: scanID, Enumerator: task.Enumerator()}))
			}
		}
		state.mu.Unlock()
		s.finalize(ctx, state)
		return
	}

	if err := state.scan.Start(); err != nil {
		state.mu.Unlock()
		logger.Error(ctx, "Failed to start scan", "error", err)
		span.RecordError(err)
		return
	}
	tasks := state.scan.Tasks()
	s.emitProgressLocked(ctx, state, "dispatching enumerators")
	state.mu.Unlock()
	s.publishLifecycle(ctx, state.scan)

	var g errgroup.Group
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			s.runTask(ctx, state, task)
			return nil
		})
	}
	g.Wait()

	s.finalize(ctx, state)
	logger.Info(ctx, "Scan finished", "status", state.scan.Status())
}

// runTask executes one enumerator task end to end: config validation, slot
// acquisition, timed invocation, and terminal bookkeeping. Task failures
// never propagate; siblings run to their own outcomes.
func (s *Scheduler) runTask(ctx context.Context, state *scanState, task *domain.Task) {
	name := task.Enumerator()
	scanID := state.scan.ID()
	logger := s.logger.With("operation", "run_task", "scan_id", scanID, "enumerator", name)
	ctx, span := s.tracer.Start(ctx, "scheduler.run_task",
		trace.WithAttributes(
			attribute.String("scan_id", scanID.String()),
			attribute.String("enumerator", name),
		))
	defer span.End()

	request := state.scan.Request()
	options := request.Options()

	// Config validation happens before slot acquisition so a task that
	// cannot run never consumes a pool resource.
	if err := s.registry.ValidateConfig(name, options); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "config validation failed")
		s.completeTask(ctx, state, task, func() error { return task.Fail(err) }, "config validation failed")
		return
	}

	if ctx.Err() != nil {
		s.completeTask(ctx, state, task, func() error {
			return task.Cancel(&domain.CancellationError{ScanID: scanID, Enumerator: name})
		}, "cancelled before dispatch")
		return
	}

	inst, err := s.pool.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, browser.ErrAcquireTimeout):
			s.completeTask(ctx, state, task, func() error {
				return task.Fail(&domain.PoolExhaustedError{Enumerator: name, WaitBound: s.pool.AcquireTimeout()})
			}, "pool exhausted")
		case ctx.Err() != nil:
			s.completeTask(ctx, state, task, func() error {
				return task.Cancel(&domain.CancellationError{ScanID: scanID, Enumerator: name})
			}, "cancelled while waiting for slot")
		default:
			s.completeTask(ctx, state, task, func() error { return task.Fail(err) }, "slot acquisition failed")
		}
		return
	}
	// The slot is released exactly once on every exit path below. Instances
	// flagged failed are recycled by the pool rather than reused.
	defer s.pool.Release(inst)

	state.mu.Lock()
	if state.scan.CancelRequested() {
		s.mustTransition(ctx, task.Cancel(&domain.CancellationError{ScanID: scanID, Enumerator: name}))
		s.emitProgressLocked(ctx, state, fmt.Sprintf("cancelled %s", name))
		state.mu.Unlock()
		s.metrics.ObserveTaskFinished(ctx, name, task.Status())
		s.publishTransition(ctx, scanID, task)
		return
	}
	s.mustTransition(ctx, task.Start())
	s.emitProgressLocked(ctx, state, fmt.Sprintf("running %s", name))
	state.mu.Unlock()
	s.publishTransition(ctx, scanID, task)
	logger.Debug(ctx, "Task running")

	// The per-task budget starts now that the task holds a slot.
	taskCtx, cancelTask := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancelTask()
	runCtx := browser.WithInstance(taskCtx, inst)

	outcomes := make(chan taskOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomes <- taskOutcome{err: &domain.EnumeratorError{
					Enumerator: name,
					Err:        fmt.Errorf("enumerator panicked: %v", r),
				}}
			}
		}()
		impl, err := s.registry.Resolve(name)
		if err != nil {
			outcomes <- taskOutcome{err: err}
			return
		}
		result, err := impl.Run(runCtx, request.Target(), options)
		outcomes <- taskOutcome{result: result, err: err}
	}()

	select {
	case out := <-outcomes:
		s.recordOutcome(ctx, state, task, out)
		return
	case <-taskCtx.Done():
	}

	if taskCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		// The task blew its own budget while the scan is still live. The
		// invocation is abandoned and its instance replaced rather than
		// returned to service mid-operation.
		inst.MarkFailed()
		span.SetStatus(codes.Error, "task timed out")
		s.completeTask(ctx, state, task, func() error {
			return task.TimeOut(&domain.TimeoutError{Enumerator: name, Timeout: s.cfg.TaskTimeout})
		}, "timed out")
		return
	}

	// Scan-level cancellation or deadline. Give the enumerator a grace
	// period to observe its context; an outcome arriving in time is still
	// recorded so partial successes survive a scan deadline.
	grace := time.NewTimer(s.cfg.GracePeriod)
	defer grace.Stop()
	select {
	case out := <-outcomes:
		s.recordOutcome(ctx, state, task, out)
	case <-grace.C:
		inst.MarkFailed()
		span.AddEvent("task_abandoned_after_grace_period")
		s.completeTask(ctx, state, task, func() error {
			return task.Cancel(&domain.CancellationError{ScanID: scanID, Enumerator: name})
		}, "abandoned after grace period")
	}
}

// recordOutcome applies an enumerator's outcome to its task. Successful
// results are merged into the scan aggregate before the task goes terminal
// so progress snapshots never show a SUCCEEDED task whose data is missing.
func (s *Scheduler) recordOutcome(ctx context.Context, state *scanState, task *domain.Task, out taskOutcome) {
	name := task.Enumerator()

	if out.err != nil {
		// An enumerator that returns its cancelled context's error was
		// interrupted, not broken. Record the task CANCELLED so it is not
		// counted against the enumerator as a failure.
		if ctx.Err() != nil && (errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded)) {
			s.completeTask(ctx, state, task, func() error {
				return task.Cancel(&domain.CancellationError{ScanID: state.scan.ID(), Enumerator: name})
			}, "cancelled")
			return
		}
		var enumErr *domain.EnumeratorError
		cause := out.err
		if !errors.As(out.err, &enumErr) {
			cause = &domain.EnumeratorError{Enumerator: name, Err: out.err}
		}
		s.completeTask(ctx, state, task, func() error { return task.Fail(cause) }, "enumerator failed")
		return
	}

	// Merges survive scan-context cancellation so a result arriving within
	// the grace period is never lost.
	mergeCtx := context.WithoutCancel(ctx)

	state.mu.Lock()
	if err := s.correlator.Merge(mergeCtx, state.scan.Result(), out.result); err != nil {
		s.mustTransition(ctx, task.Fail(fmt.Errorf("merging result: %w", err)))
	} else {
		s.mustTransition(ctx, task.Succeed(out.result))
	}
	s.emitProgressLocked(ctx, state, fmt.Sprintf("completed %s", name))
	state.mu.Unlock()
	s.metrics.ObserveTaskFinished(ctx, name, task.Status())
	s.publishTransition(ctx, state.scan.ID(), task)
}

// completeTask applies a terminal transition and emits the task event and a
// progress update.
func (s *Scheduler) completeTask(ctx context.Context, state *scanState, task *domain.Task, transition func() error, operation string) {
	state.mu.Lock()
	s.mustTransition(ctx, transition())
	s.emitProgressLocked(ctx, state, fmt.Sprintf("%s: %s", task.Enumerator(), operation))
	state.mu.Unlock()
	s.metrics.ObserveTaskFinished(ctx, task.Enumerator(), task.Status())
	s.publishTransition(ctx, state.scan.ID(), task)
}

// finalize computes the scan's terminal status, persists it, and emits the
// final progress update that closes subscriber streams.
func (s *Scheduler) finalize(ctx context.Context, state *scanState) {
	scanID := state.scan.ID()
	logger := s.logger.With("operation", "finalize", "scan_id", scanID)
	ctx, span := s.tracer.Start(ctx, "scheduler.finalize",
		trace.WithAttributes(attribute.String("scan_id", scanID.String())))
	defer span.End()

	state.mu.Lock()
	for _, task := range state.scan.Tasks() {
		if !task.IsTerminal() {
			// Defensive: every task goroutine records a terminal state
			// before returning, so this only fires on a scheduler bug.
			s.mustTransition(ctx, task.Cancel(&domain.CancellationError{ScanID: scanID, Enumerator: task.Enumerator()}))
		}
	}
	if err := state.scan.Finalize(); err != nil {
		state.mu.Unlock()
		logger.Error(ctx, "Failed to finalize scan", "error", err)
		span.RecordError(err)
		return
	}
	snapshot := state.scan.Snapshot()
	s.emitProgressLocked(ctx, state, "scan finished")
	state.mu.Unlock()

	span.SetAttributes(attribute.String("status", string(snapshot.Status())))
	if endedAt, ok := snapshot.EndTime(); ok {
		s.metrics.ObserveScanFinished(ctx, snapshot.Status(), endedAt.Sub(snapshot.CreatedAt()))
	}
	s.persist(ctx, snapshot)
	s.publishLifecycle(ctx, snapshot)
}

// persist saves a terminal scan, retrying with exponential backoff so a
// transiently unavailable store does not lose the scan record.
func (s *Scheduler) persist(ctx context.Context, scan *domain.Scan) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error { return s.store.Save(saveCtx, scan) }

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, saveCtx)); err != nil {
		s.logger.Error(ctx, "Failed to persist terminal scan", "scan_id", scan.ID(), "error", err)
	}
}

// emitProgressLocked publishes a progress update built from the scan's
// current state. Callers must hold state.mu; publishing under the lock keeps
// per-scan delivery order aligned with transition order.
func (s *Scheduler) emitProgressLocked(ctx context.Context, state *scanState, operation string) {
	state.seq++
	progress := domain.NewProgress(
		state.scan.ID(),
		state.scan.Status(),
		state.seq,
		state.scan.TerminalTaskCount(),
		len(state.scan.Tasks()),
		operation,
		state.scan.Result().Snapshot(),
	)
	s.progress.Publish(ctx, progress)
}

// publishLifecycle emits a scan lifecycle domain event, keyed by scan id so
// external consumers observe one scan's events in order.
func (s *Scheduler) publishLifecycle(ctx context.Context, scan *domain.Scan) {
	evt := domain.NewScanLifecycleEvent(scan)
	if err := s.publisher.PublishDomainEvent(ctx, evt, events.WithKey(scan.ID().String())); err != nil {
		s.logger.Warn(ctx, "Failed to publish scan lifecycle event",
			"scan_id", scan.ID(), "event_type", evt.Type, "error", err)
	}
}

// publishTransition emits a task transition domain event.
func (s *Scheduler) publishTransition(ctx context.Context, scanID uuid.UUID, task *domain.Task) {
	evt := domain.NewTaskTransitionEvent(scanID, task)
	if err := s.publisher.PublishDomainEvent(ctx, evt, events.WithKey(scanID.String())); err != nil {
		s.logger.Warn(ctx, "Failed to publish task transition event",
			"scan_id", scanID, "enumerator", task.Enumerator(), "error", err)
	}
}

// mustTransition logs an invalid state transition instead of dropping it
// silently. Transitions are validated by construction, so an error here
// indicates a scheduler bug.
func (s *Scheduler) mustTransition(ctx context.Context, err error) {
	if err != nil {
		s.logger.Error(ctx, "Invalid state transition", "error", err)
	}
}
