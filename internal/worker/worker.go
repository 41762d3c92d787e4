// Package worker runs page walks for targets pulled off the pending queue.
package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/harvest"
	"github.com/JakeFAU/review-harvester/internal/progress"
	"github.com/JakeFAU/review-harvester/internal/queue/memory"
)

// Source hands out pending targets.
type Source interface {
	Dequeue(ctx context.Context) (harvest.Target, error)
}

// Worker consumes targets and reports one Outcome per target.
type Worker struct {
	id      int
	walker  harvest.PageWalker
	clock   harvest.Clock
	emitter progress.Emitter
	runID   uuid.UUID
	logger  *zap.Logger
}

// New constructs a Worker. emitter may be nil.
func New(
	id int,
	walker harvest.PageWalker,
	clock harvest.Clock,
	emitter progress.Emitter,
	runID uuid.UUID,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		walker:  walker,
		clock:   clock,
		emitter: emitter,
		runID:   runID,
		logger:  logger.With(zap.Int("worker", id)),
	}
}

// Run dequeues until the source is drained or ctx is canceled. Walks run on
// walkCtx, so canceling ctx never interrupts a walk already in progress.
func (w *Worker) Run(ctx, walkCtx context.Context, src Source, out chan<- harvest.Outcome) {
	for {
		target, err := src.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) && ctx.Err() == nil {
				w.logger.Error("dequeue failed", zap.Error(err))
			}
			return
		}
		out <- w.process(walkCtx, target)
	}
}

func (w *Worker) process(ctx context.Context, target harvest.Target) harvest.Outcome {
	w.logger.Debug("walk started", zap.String("city", target.City), zap.String("hotel", target.Name))
	start := w.clock.Now()
	w.emit(progress.Event{
		TS:    start,
		Stage: progress.StageTargetStart,
		City:  target.City,
		Hotel: target.Name,
		URL:   target.SeedURL,
	})

	result := w.walker.Walk(ctx, target.SeedURL)
	end := w.clock.Now()

	for _, page := range result.Pages {
		w.emit(progress.Event{
			TS:          end,
			Stage:       progress.StagePageDone,
			City:        target.City,
			Hotel:       target.Name,
			URL:         page.URL,
			Bytes:       int64(page.Bytes),
			Records:     int64(page.Records),
			StatusClass: progress.ClassifyStatus(page.StatusCode),
			Dur:         page.Duration,
		})
	}
	return harvest.NewOutcome(target, result, end.Sub(start))
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(w.runID)
	w.emitter.Emit(evt)
}
