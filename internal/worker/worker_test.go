package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job string) error {
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool[string]("test", 2, 10, processor, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for _, l := range []string{"Tlalpan", "Coyoacán", "Iztacalco", "Tláhuac", "Xochimilco"} {
		pool.Submit(ctx, l)
	}

	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool[int]("test", 4, 100, processor, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	done := make(chan struct{})
	var submitted atomic.Int64
	for i := 0; i < 100; i++ {
		go func(n int) {
			pool.Submit(ctx, n)
			if submitted.Add(1) == 100 {
				close(done)
			}
		}(i)
	}
	<-done

	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_CountsFailures(t *testing.T) {
	processor := func(ctx context.Context, job int) error {
		if job%2 == 0 {
			return errors.New("upstream unavailable")
		}
		return nil
	}

	pool := NewWorkerPool[int]("test", 2, 10, processor, discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 6; i++ {
		pool.Submit(ctx, i)
	}
	pool.Stop()

	if pool.Failed() != 3 {
		t.Errorf("expected 3 failed jobs, got %d", pool.Failed())
	}
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		time.Sleep(10 * time.Millisecond)
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool[int]("test", 2, 50, processor, discard())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		pool.Submit(ctx, i)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	t.Logf("processed %d jobs before shutdown", processed.Load())
}

func TestWorkerPool_SubmitAfterCancel(t *testing.T) {
	pool := NewWorkerPool[int]("test", 1, 0, func(ctx context.Context, job int) error { return nil }, discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered queue with no workers started: only ctx can unblock Submit.
	if pool.Submit(ctx, 1) {
		t.Error("expected Submit to report cancellation")
	}
	pool.Stop()
}
