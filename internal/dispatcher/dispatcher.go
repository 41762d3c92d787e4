// Package dispatcher fans pending targets out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"sync"

	"github.com/JakeFAU/review-harvester/internal/harvest"
	"github.com/JakeFAU/review-harvester/internal/worker"
)

// Dispatcher owns the worker pool. At most len(workers) walks run at once.
type Dispatcher struct {
	source  worker.Source
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(source worker.Source, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{source: source, workers: workers}
}

// Start launches every worker and returns the completion channel. Outcomes
// arrive in the order walks finish. The channel is closed once all workers
// have exited.
func (d *Dispatcher) Start(ctx, walkCtx context.Context) <-chan harvest.Outcome {
	out := make(chan harvest.Outcome, len(d.workers))
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx, walkCtx, d.source, out)
		}(w)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
