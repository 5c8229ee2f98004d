package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sitescout/sitescout/pkg/common/logger"
)

// ErrAcquireTimeout is returned when no slot frees within the acquire bound.
var ErrAcquireTimeout = errors.New("browser pool acquire timed out")

// ErrPoolClosed is returned for operations against a closed pool.
var ErrPoolClosed = errors.New("browser pool closed")

// Launcher starts a new browser instance. The pool calls it lazily when a
// slot is granted and no healthy idle instance exists, and again when a
// failed instance is recycled.
type Launcher func(ctx context.Context) (*Instance, error)

// ChromeLauncher returns a Launcher that starts real headless Chrome
// processes with the given configuration.
func ChromeLauncher(cfg InstanceConfig) Launcher {
	return func(ctx context.Context) (*Instance, error) {
		return Launch(ctx, cfg)
	}
}

// NoopLauncher returns a Launcher whose instances are not backed by a
// browser process. It serves deployments that only run non-browser
// enumerators, and tests.
func NoopLauncher() Launcher {
	return func(ctx context.Context) (*Instance, error) {
		browserCtx, cancel := context.WithCancel(context.Background())
		return &Instance{
			cfg:        DefaultInstanceConfig(),
			browserCtx: browserCtx,
			cancel:     cancel,
			launchedAt: time.Now(),
		}, nil
	}
}

// PoolConfig controls pool sizing and acquire behavior.
type PoolConfig struct {
	// Capacity is the maximum number of concurrently held instances.
	Capacity int

	// AcquireTimeout bounds how long Acquire waits for a free slot before
	// returning ErrAcquireTimeout. Zero means wait until ctx is done.
	AcquireTimeout time.Duration

	// LaunchesPerSecond paces instance launches so a recycle storm cannot
	// fork-bomb the host. Zero disables pacing.
	LaunchesPerSecond float64

	// HealthProbeTimeout bounds the liveness probe run on idle instances
	// before they are handed out again.
	HealthProbeTimeout time.Duration
}

// DefaultPoolConfig returns the pool settings used when the composing
// process supplies none.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Capacity:           4,
		AcquireTimeout:     30 * time.Second,
		LaunchesPerSecond:  1,
		HealthProbeTimeout: 2 * time.Second,
	}
}

// Pool rations browser instances across concurrent scans with counting
// semaphore semantics. Waiters are granted slots in arrival order; a slot
// represents exclusive use of one instance until Release. Failed instances
// are replaced, never returned to service.
type Pool struct {
	cfg      PoolConfig
	sem      *semaphore.Weighted
	launcher Launcher
	limiter  *rate.Limiter
	metrics  PoolMetrics
	log      *logger.Logger

	mu     sync.Mutex
	idle   []*Instance
	held   int
	closed bool
}

// NewPool creates a pool of at most cfg.Capacity instances. Instances are
// launched lazily on first use of each slot.
func NewPool(cfg PoolConfig, launcher Launcher, metrics PoolMetrics, log *logger.Logger) (*Pool, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("pool capacity must be positive, got %d", cfg.Capacity)
	}
	if launcher == nil {
		return nil, errors.New("pool requires a launcher")
	}
	if metrics == nil {
		return nil, errors.New("pool requires metrics")
	}

	var limiter *rate.Limiter
	if cfg.LaunchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.LaunchesPerSecond), cfg.Capacity)
	}

	return &Pool{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Capacity)),
		launcher: launcher,
		limiter:  limiter,
		metrics:  metrics,
		log:      log.With("component", "browser_pool"),
	}, nil
}

// Capacity returns the configured slot count.
func (p *Pool) Capacity() int { return p.cfg.Capacity }

// AcquireTimeout returns the configured acquire wait bound.
func (p *Pool) AcquireTimeout() time.Duration { return p.cfg.AcquireTimeout }

// Available returns how many slots are currently free. It exists for
// capacity probes; by the time a caller acts on it the value may be stale.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Capacity - p.held
}

// Acquire blocks until a slot frees or the acquire bound elapses, then
// returns a healthy instance. Waiters are served FIFO. On timeout it returns
// ErrAcquireTimeout; it never consumes a slot on failure.
func (p *Pool) Acquire(ctx context.Context) (*Instance, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	acquireCtx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		// Distinguish the acquire bound elapsing from the caller's own
		// context ending.
		if acquireCtx.Err() != nil && ctx.Err() == nil {
			p.metrics.IncAcquireTimeout(ctx)
			return nil, fmt.Errorf("%w after %s", ErrAcquireTimeout, p.cfg.AcquireTimeout)
		}
		return nil, err
	}

	inst, err := p.checkout(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}

	p.mu.Lock()
	p.held++
	p.mu.Unlock()
	p.metrics.IncSlotAcquired(ctx)
	return inst, nil
}

// checkout hands out a healthy idle instance or launches a replacement.
func (p *Pool) checkout(ctx context.Context) (*Instance, error) {
	for {
		p.mu.Lock()
		var inst *Instance
		if n := len(p.idle); n > 0 {
			inst = p.idle[n-1]
			p.idle = p.idle[:n-1]
		}
		p.mu.Unlock()

		if inst == nil {
			return p.launch(ctx)
		}
		if inst.Healthy(p.cfg.HealthProbeTimeout) {
			return inst, nil
		}

		// Stale instance found while idle: replace rather than hand out.
		p.log.Warn(ctx, "recycling unhealthy idle browser instance",
			"launched_at", inst.LaunchedAt())
		p.metrics.IncInstanceRecycled(ctx)
		inst.Close()
	}
}

// launch starts a new instance, paced and retried with exponential backoff
// so one flaky launch does not immediately fail the acquire.
func (p *Pool) launch(ctx context.Context) (*Instance, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var inst *Instance
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxElapsedTime = 15 * time.Second

	// Instances outlive the acquiring task, so their lifetime must not be
	// tied to its context.
	launchCtx := context.WithoutCancel(ctx)

	operation := func() error {
		var err error
		inst, err = p.launcher(launchCtx)
		if err != nil {
			p.log.Warn(ctx, "browser launch attempt failed", "error", err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	p.metrics.IncInstanceLaunched(ctx)
	return inst, nil
}

// Release returns an instance's slot to the pool. Instances flagged as
// failed are closed and replaced lazily at the next acquire instead of
// re-entering service. Release must be called exactly once per successful
// Acquire, on every exit path.
func (p *Pool) Release(inst *Instance) {
	p.mu.Lock()
	p.held--
	recycle := inst == nil || inst.Failed() || p.closed
	if !recycle {
		p.idle = append(p.idle, inst)
	}
	p.mu.Unlock()

	ctx := context.Background()
	if recycle && inst != nil {
		p.metrics.IncInstanceRecycled(ctx)
		inst.Close()
	}
	p.metrics.IncSlotReleased(ctx)
	p.sem.Release(1)
}

// Close shuts down all idle instances and rejects further acquires.
// Instances still held by tasks are closed by their Release.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, inst := range idle {
		inst.Close()
	}
}
