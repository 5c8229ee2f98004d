package scanning

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/sitescout/sitescout/internal/domain/scanning"
	"github.com/sitescout/sitescout/pkg/common/logger"
)

// subscriber is one progress stream attached to a scan. Updates pass through
// a bounded channel; when the consumer falls behind, the oldest buffered
// update is dropped to make room so the producer never blocks.
type subscriber struct {
	ch        chan domain.Progress
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// ProgressPublisher broadcasts scan progress updates to subscribers. Each
// subscriber has an independent bounded buffer so a slow consumer cannot
// stall the scheduler, and updates for one scan are delivered to each
// subscriber in transition order.
type ProgressPublisher struct {
	mu         sync.Mutex
	subs       map[uuid.UUID]map[*subscriber]struct{}
	finals     map[uuid.UUID]domain.Progress
	bufferSize int

	logger *logger.Logger
	tracer trace.Tracer
}

// NewProgressPublisher creates a publisher whose subscriber channels buffer
// up to bufferSize updates.
func NewProgressPublisher(bufferSize int, logger *logger.Logger, tracer trace.Tracer) *ProgressPublisher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ProgressPublisher{
		subs:       make(map[uuid.UUID]map[*subscriber]struct{}),
		finals:     make(map[uuid.UUID]domain.Progress),
		bufferSize: bufferSize,
		logger:     logger.With("component", "progress_publisher"),
		tracer:     tracer,
	}
}

// Subscribe returns a stream of progress updates for the scan, starting from
// the next published update. The stream ends with one final update and a
// channel close when the scan reaches a terminal state. Each call gets its
// own independent sequence; subscribing to an already-terminal scan yields
// the final update immediately. The subscription lasts until ctx is
// cancelled or the stream ends.
func (p *ProgressPublisher) Subscribe(ctx context.Context, scanID uuid.UUID) (<-chan domain.Progress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()

	if final, ok := p.finals[scanID]; ok {
		p.mu.Unlock()
		ch := make(chan domain.Progress, 1)
		ch <- final
		close(ch)
		return ch, nil
	}

	sub := &subscriber{ch: make(chan domain.Progress, p.bufferSize)}
	if p.subs[scanID] == nil {
		p.subs[scanID] = make(map[*subscriber]struct{})
	}
	p.subs[scanID][sub] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		if set, ok := p.subs[scanID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(p.subs, scanID)
			}
		}
		p.mu.Unlock()
		sub.close()
	}()

	return sub.ch, nil
}

// Publish delivers a progress update to every subscriber of its scan. A
// final update additionally closes all subscriber streams and is retained so
// late subscribers still observe the terminal state.
func (p *ProgressPublisher) Publish(ctx context.Context, progress domain.Progress) {
	_, span := p.tracer.Start(ctx, "progress_publisher.publish",
		trace.WithAttributes(
			attribute.String("scan_id", progress.ScanID().String()),
			attribute.String("status", string(progress.Status())),
			attribute.Int64("sequence_num", progress.SequenceNum()),
		))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	scanID := progress.ScanID()
	for sub := range p.subs[scanID] {
		p.deliver(sub, progress)
	}

	if progress.IsFinal() {
		p.finals[scanID] = progress
		for sub := range p.subs[scanID] {
			sub.close()
		}
		delete(p.subs, scanID)
		span.AddEvent("final_update_delivered")
	}
}

// deliver enqueues one update, dropping the oldest buffered update when the
// subscriber's buffer is full. Called with p.mu held, which preserves
// per-scan delivery order across concurrent publishers.
func (p *ProgressPublisher) deliver(sub *subscriber, progress domain.Progress) {
	for {
		select {
		case sub.ch <- progress:
			return
		default:
		}
		select {
		case <-sub.ch: // drop oldest
		default:
		}
	}
}

// Forget discards the retained final update for a scan. Called when a scan
// is deleted so the publisher does not accumulate state for removed scans.
func (p *ProgressPublisher) Forget(scanID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.finals, scanID)
}
