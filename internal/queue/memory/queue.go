// Package memory provides the bounded in-process queue that feeds pending
// targets to the worker pool.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO of targets with context-aware operations. A single
// producer enqueues and then calls Close; any number of consumers dequeue.
type Queue struct {
	ch      chan harvest.Target
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{ch: make(chan harvest.Target, capacity)}
}

// Enqueue pushes a target, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, target harvest.Target) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- target:
		return nil
	}
}

// Dequeue pops the next target. A canceled ctx wins over queued work.
func (q *Queue) Dequeue(ctx context.Context) (harvest.Target, error) {
	if err := ctx.Err(); err != nil {
		return harvest.Target{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return harvest.Target{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case target, ok := <-q.ch:
		if !ok {
			return harvest.Target{}, ErrClosed
		}
		return target, nil
	}
}

// Len returns the number of queued targets.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops intake; queued targets can still be dequeued. It must not be
// called concurrently with Enqueue.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
