// Package pipeline runs scraped items through an ordered list of stages:
// guards that drop bad items, normalisers that rewrite them and sinks that
// persist them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-wuxia/metrics"
	"github.com/aluiziolira/go-scrape-wuxia/models"
)

// Run is the context shared by all stages for one crawl run.
type Run struct {
	ID        string
	StartedAt time.Time
	Logger    *slog.Logger
}

// Stage processes one item. It returns the item to hand to the next stage,
// a *DropError to discard it, or any other error on failure.
type Stage interface {
	Name() string
	ProcessItem(ctx context.Context, run *Run, item *models.Item) (*models.Item, error)
}

// Opener is implemented by stages that acquire resources when a run starts.
type Opener interface {
	Open(ctx context.Context, run *Run) error
}

// Closer is implemented by stages that release resources when a run ends.
// Close must be safe to call on a stage that was never opened.
type Closer interface {
	Close(ctx context.Context, run *Run) error
}

// PersistPolicy decides what happens to an item after a sink fails to
// store it.
type PersistPolicy string

const (
	// PersistForward logs the failure and hands the item to the next stage.
	PersistForward PersistPolicy = "forward"
	// PersistDrop discards the item with ReasonPersistenceFailure.
	PersistDrop PersistPolicy = "drop"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the base logger; the run logger is derived from it.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records pipeline activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithPersistPolicy sets how sink failures affect the item.
func WithPersistPolicy(policy PersistPolicy) Option {
	return func(p *Pipeline) {
		if policy != "" {
			p.policy = policy
		}
	}
}

// Pipeline drives items through its stages in order, one at a time.
type Pipeline struct {
	stages  []Stage
	logger  *slog.Logger
	metrics *metrics.Metrics
	policy  PersistPolicy

	mu     sync.Mutex // serialises items and guards run/closed
	run    *Run
	closed bool

	stats stats

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline over stages, which run in the given order.
func NewPipeline(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:   stages,
		logger:   slog.Default(),
		policy:   PersistForward,
		stats:    newStats(),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open starts a run and opens every stage that implements Opener. If a
// stage fails to open, all stages are closed and the pipeline is unusable.
func (p *Pipeline) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if p.run != nil {
		return nil
	}

	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	run.Logger = p.logger.With(slog.String("run_id", run.ID))

	for _, stage := range p.stages {
		opener, ok := stage.(Opener)
		if !ok {
			continue
		}
		if err := opener.Open(ctx, run); err != nil {
			p.closed = true
			p.signalShutdown()
			if closeErr := p.closeStages(ctx, run); closeErr != nil {
				run.Logger.Error("close after failed open", slog.Any("error", closeErr))
			}
			return fmt.Errorf("open stage %s: %w", stage.Name(), err)
		}
	}

	p.run = run
	run.Logger.Info("pipeline opened", slog.Int("stages", len(p.stages)))
	return nil
}

// Process runs one item through every stage. It returns nil when the item
// reached the end of the pipeline, a *DropError when a stage discarded it,
// and the joined *PersistError values when sinks failed under
// PersistForward.
func (p *Pipeline) Process(ctx context.Context, item *models.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if p.run == nil {
		return ErrPipelineNotOpen
	}

	kind := kindLabel(item)
	p.stats.received++
	p.metrics.IncReceived(kind)

	var persistErrs []error
	current := item
	for _, stage := range p.stages {
		next, err := stage.ProcessItem(ctx, p.run, current)
		if err != nil {
			var persist *PersistError
			if errors.As(err, &persist) {
				p.recordPersistFailure(persist, current)
				if p.policy == PersistDrop {
					drop := newDrop(ReasonPersistenceFailure, current, err)
					p.recordDrop(drop, current)
					return drop
				}
				persistErrs = append(persistErrs, err)
				continue
			}

			var drop *DropError
			if errors.As(err, &drop) {
				p.recordDrop(drop, current)
				return err
			}

			p.stats.failed++
			p.run.Logger.Error("stage failed",
				slog.String("stage", stage.Name()),
				slog.String("item", current.String()),
				slog.Any("error", err),
			)
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		if next == nil {
			p.stats.failed++
			return fmt.Errorf("stage %s returned no item", stage.Name())
		}
		current = next
	}

	p.stats.processed++
	return errors.Join(persistErrs...)
}

// Close ends the run and closes every stage that implements Closer. It is
// safe to call more than once.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.signalShutdown()

	run := p.run
	if run == nil {
		run = &Run{StartedAt: time.Now(), Logger: p.logger}
	}
	err := p.closeStages(ctx, run)

	snapshot := p.stats.snapshot()
	run.Logger.Info("pipeline closed",
		slog.Int64("received", snapshot.Received),
		slog.Int64("processed", snapshot.Processed),
		slog.Int64("dropped", snapshot.TotalDropped()),
		slog.Duration("elapsed", time.Since(run.StartedAt)),
	)
	return err
}

// Run returns the active run, or nil before Open.
func (p *Pipeline) Run() *Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run
}

// Stats returns a snapshot of the internal counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshot()
}

// StartStatsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartStatsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s := p.Stats()
				p.logger.Info("pipeline progress",
					slog.Int64("received", s.Received),
					slog.Int64("processed", s.Processed),
					slog.Int64("dropped", s.TotalDropped()),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) closeStages(ctx context.Context, run *Run) error {
	var errs []error
	for _, stage := range p.stages {
		closer, ok := stage.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(ctx, run); err != nil {
			errs = append(errs, fmt.Errorf("close stage %s: %w", stage.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) recordDrop(drop *DropError, item *models.Item) {
	p.stats.dropped[drop.Reason]++
	p.metrics.IncDropped(kindLabel(item), string(drop.Reason))
	p.run.Logger.Error("item dropped",
		slog.String("reason", string(drop.Reason)),
		slog.String("item", item.String()),
		slog.Any("error", drop.Err),
	)
}

func (p *Pipeline) recordPersistFailure(persist *PersistError, item *models.Item) {
	p.stats.persistFailures[persist.Sink]++
	p.run.Logger.Error("failed to persist item",
		slog.String("sink", persist.Sink),
		slog.String("item", item.String()),
		slog.Any("error", persist.Err),
	)
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

func kindLabel(item *models.Item) string {
	if item == nil {
		return models.KindUnknown.String()
	}
	return item.Kind.String()
}

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	Received        int64
	Processed       int64
	Failed          int64
	Dropped         map[DropReason]int64
	PersistFailures map[string]int64
}

// TotalDropped sums drops over all reasons.
func (s Stats) TotalDropped() int64 {
	var total int64
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

type stats struct {
	received        int64
	processed       int64
	failed          int64
	dropped         map[DropReason]int64
	persistFailures map[string]int64
}

func newStats() stats {
	return stats{
		dropped:         make(map[DropReason]int64),
		persistFailures: make(map[string]int64),
	}
}

func (s *stats) snapshot() Stats {
	dropped := make(map[DropReason]int64, len(s.dropped))
	for k, v := range s.dropped {
		dropped[k] = v
	}
	failures := make(map[string]int64, len(s.persistFailures))
	for k, v := range s.persistFailures {
		failures[k] = v
	}
	return Stats{
		Received:        s.received,
		Processed:       s.processed,
		Failed:          s.failed,
		Dropped:         dropped,
		PersistFailures: failures,
	}
}
