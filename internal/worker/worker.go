package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type ProcessFunc[T any] func(ctx context.Context, job T) error

// WorkerPool runs a fixed number of workers over a buffered job queue.
type WorkerPool[T any] struct {
	name       string
	numWorkers int
	jobs       chan T
	processor  ProcessFunc[T]
	wg         sync.WaitGroup
	failed     atomic.Int64
	logger     *slog.Logger
}

func NewWorkerPool[T any](name string, numWorkers int, bufferSize int, processor ProcessFunc[T], logger *slog.Logger) *WorkerPool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool[T]{
		name:       name,
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		processor:  processor,
		logger:     logger,
	}
}

func (wp *WorkerPool[T]) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool[T]) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			if err := wp.processor(ctx, job); err != nil {
				wp.failed.Add(1)
				wp.logger.Debug("job failed", "pool", wp.name, "worker", id, "error", err)
			}
		}
	}
}

// Submit blocks while the queue is full. It returns false if ctx ends first.
func (wp *WorkerPool[T]) Submit(ctx context.Context, job T) bool {
	select {
	case wp.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

func (wp *WorkerPool[T]) Failed() int64 {
	return wp.failed.Load()
}

// Stop closes the queue and waits for workers to drain it or for their context to end.
func (wp *WorkerPool[T]) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
}
