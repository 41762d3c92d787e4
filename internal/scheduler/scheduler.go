// Package scheduler runs a harvest: it skips targets that already have an
// artifact, walks the rest on a bounded worker pool, persists each outcome
// as it arrives, and writes the failure report once at the end.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/clock/system"
	"github.com/JakeFAU/review-harvester/internal/dispatcher"
	"github.com/JakeFAU/review-harvester/internal/harvest"
	runid "github.com/JakeFAU/review-harvester/internal/id/uuid"
	"github.com/JakeFAU/review-harvester/internal/progress"
	"github.com/JakeFAU/review-harvester/internal/queue/memory"
	"github.com/JakeFAU/review-harvester/internal/worker"
)

// DefaultConcurrency is the worker pool size used when none is configured.
const DefaultConcurrency = 61

// TargetStore is the persistence the scheduler needs.
type TargetStore interface {
	IsComplete(target harvest.Target) bool
	Persist(ctx context.Context, outcome harvest.Outcome) error
	FlushFailureReport(ctx context.Context) error
}

// RunIDSource mints run identifiers.
type RunIDSource interface {
	NewRunID() (uuid.UUID, error)
}

// Config controls pool sizing.
type Config struct {
	// Concurrency is the number of walks allowed in flight.
	Concurrency int
	// QueueDepth bounds the pending queue; 0 means Concurrency.
	QueueDepth int
}

// Stats summarizes a run.
type Stats struct {
	RunID         uuid.UUID
	Total         int
	Skipped       int
	Pending       int
	Done          int
	Empty         int
	Failed        int
	PersistErrors int
}

// Completed returns how many pending targets reached an outcome.
func (s Stats) Completed() int {
	return s.Done + s.Empty + s.Failed
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock.
func WithClock(clock harvest.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithRunIDs overrides how run IDs are minted.
func WithRunIDs(ids RunIDSource) Option {
	return func(s *Scheduler) { s.ids = ids }
}

// Scheduler coordinates one harvest run at a time.
type Scheduler struct {
	cfg     Config
	store   TargetStore
	walker  harvest.PageWalker
	emitter progress.Emitter
	clock   harvest.Clock
	ids     RunIDSource
	logger  *zap.Logger
}

// New constructs a Scheduler. emitter and logger may be nil.
func New(
	cfg Config,
	store TargetStore,
	walker harvest.PageWalker,
	emitter progress.Emitter,
	logger *zap.Logger,
	opts ...Option,
) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("target store is required")
	}
	if walker == nil {
		return nil, fmt.Errorf("page walker is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Concurrency
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cfg:     cfg,
		store:   store,
		walker:  walker,
		emitter: emitter,
		clock:   system.New(),
		ids:     runid.NewGenerator(),
		logger:  logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run harvests every target that is not yet complete. Canceling ctx stops
// new targets from starting; walks already in flight finish and are
// persisted, and the failure report is still written. The returned error is
// non-nil only when the run was interrupted or the report failed.
func (s *Scheduler) Run(ctx context.Context, targets []harvest.Target) (Stats, error) {
	runID, err := s.ids.NewRunID()
	if err != nil {
		return Stats{}, fmt.Errorf("new run id: %w", err)
	}
	stats := Stats{RunID: runID, Total: len(targets)}
	logger := s.logger.With(zap.Stringer("run_id", runID))

	pending := make([]harvest.Target, 0, len(targets))
	for _, t := range targets {
		if s.store.IsComplete(t) {
			stats.Skipped++
			continue
		}
		pending = append(pending, t)
	}
	stats.Pending = len(pending)
	logger.Info("run starting",
		zap.Int("total", stats.Total),
		zap.Int("skipped", stats.Skipped),
		zap.Int("pending", stats.Pending),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	// Persistence and the report outlive cancellation of ctx.
	detached := context.WithoutCancel(ctx)
	start := s.clock.Now()
	s.emit(runID, progress.Event{TS: start, Stage: progress.StageRunStart})

	if len(pending) > 0 {
		s.drain(ctx, detached, runID, pending, &stats, logger)
	}

	var runErr error
	if err := s.store.FlushFailureReport(detached); err != nil {
		runErr = fmt.Errorf("flush failure report: %w", err)
	}
	end := s.clock.Now()
	s.emit(runID, progress.Event{TS: end, Stage: progress.StageRunDone, Dur: end.Sub(start)})

	logger.Info("run finished",
		zap.Int("done", stats.Done),
		zap.Int("empty", stats.Empty),
		zap.Int("failed", stats.Failed),
		zap.Int("persist_errors", stats.PersistErrors),
		zap.Int("not_started", stats.Pending-stats.Completed()),
		zap.Duration("elapsed", end.Sub(start)),
	)
	if err := ctx.Err(); err != nil {
		runErr = errors.Join(fmt.Errorf("run interrupted: %w", err), runErr)
	}
	return stats, runErr
}

func (s *Scheduler) drain(
	ctx, detached context.Context,
	runID uuid.UUID,
	pending []harvest.Target,
	stats *Stats,
	logger *zap.Logger,
) {
	q := memory.NewQueue(s.cfg.QueueDepth)
	go func() {
		defer q.Close()
		for _, t := range pending {
			if err := q.Enqueue(ctx, t); err != nil {
				return
			}
		}
	}()

	size := min(s.cfg.Concurrency, len(pending))
	workers := make([]*worker.Worker, size)
	for i := range workers {
		workers[i] = worker.New(i, s.walker, s.clock, s.emitter, runID, logger)
	}

	completions := dispatcher.New(q, workers).Start(ctx, detached)
	for outcome := range completions {
		s.complete(detached, runID, outcome, stats, logger)
	}
}

// complete runs on the scheduler goroutine only.
func (s *Scheduler) complete(ctx context.Context, runID uuid.UUID, outcome harvest.Outcome, stats *Stats, logger *zap.Logger) {
	target := outcome.Target
	status := outcome.Status()
	fields := []zap.Field{
		zap.String("city", target.City),
		zap.String("hotel", target.Name),
		zap.String("url", target.SeedURL),
		zap.Int("records", len(outcome.Records)),
		zap.Int("pages", len(outcome.Pages)),
	}

	note := ""
	if outcome.Err != nil {
		note = outcome.Err.Error()
	}
	if err := s.store.Persist(ctx, outcome); err != nil {
		stats.PersistErrors++
		status = harvest.OutcomeFailed
		note = err.Error()
		logger.Error("persist failed", append(fields, zap.Error(err))...)
	}

	switch status {
	case harvest.OutcomeDone:
		stats.Done++
	case harvest.OutcomeEmpty:
		stats.Empty++
		logger.Warn("no reviews found", fields...)
	case harvest.OutcomeFailed:
		stats.Failed++
		if outcome.Err != nil {
			logger.Warn("target failed", append(fields, zap.Error(outcome.Err))...)
		}
	}

	logger.Info(ProgressLine(target, stats.Completed(), stats.Pending), append(fields, zap.String("status", string(status)))...)
	s.emit(runID, progress.Event{
		TS:      s.clock.Now(),
		Stage:   endStage(status),
		City:    target.City,
		Hotel:   target.Name,
		URL:     target.SeedURL,
		Records: int64(len(outcome.Records)),
		Pages:   int64(len(outcome.Pages)),
		Dur:     outcome.Duration,
		Note:    note,
	})
}

// ProgressLine renders the per-target console line.
func ProgressLine(target harvest.Target, completed, pending int) string {
	pct := 0.0
	if pending > 0 {
		pct = float64(completed) / float64(pending) * 100
	}
	return fmt.Sprintf("Scraped! %s in %s. -> %.2f%% (%d/%d)", target.Name, target.City, pct, completed, pending)
}

func endStage(status harvest.OutcomeStatus) progress.Stage {
	switch status {
	case harvest.OutcomeDone:
		return progress.StageTargetDone
	case harvest.OutcomeEmpty:
		return progress.StageTargetEmpty
	default:
		return progress.StageTargetFailed
	}
}

func (s *Scheduler) emit(runID uuid.UUID, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(runID)
	s.emitter.Emit(evt)
}
