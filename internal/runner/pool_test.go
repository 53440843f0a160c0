package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/signalnine/hpobench/internal/runner"
)

func TestPool(t *testing.T) {
	var count atomic.Int32
	jobs := make([]runner.Job, 10)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			count.Add(1)
			return nil
		}
	}
	errs := runner.RunPool(context.Background(), 3, jobs)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if count.Load() != 10 {
		t.Errorf("expected 10 jobs, got %d", count.Load())
	}
}

func TestPoolWithErrors(t *testing.T) {
	jobs := []runner.Job{
		func(context.Context) error { return nil },
		func(context.Context) error { return fmt.Errorf("first") },
		func(context.Context) error { return nil },
		func(context.Context) error { return fmt.Errorf("second") },
	}
	errs := runner.RunPool(context.Background(), 4, jobs)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[0].Error() != "first" || errs[1].Error() != "second" {
		t.Errorf("errors out of job order: %v", errs)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	jobs := make([]runner.Job, 12)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			running.Add(-1)
			return nil
		}
	}
	runner.RunPool(context.Background(), 0, jobs)
	if peak.Load() != 1 {
		t.Errorf("maxWorkers < 1 should run serially, peak was %d", peak.Load())
	}
}

func TestPoolCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	jobs := make([]runner.Job, 5)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			ran.Add(1)
			return nil
		}
	}
	errs := runner.RunPool(ctx, 1, jobs)
	// select picks randomly between a free slot and a done ctx, so a few
	// jobs may still start.
	if int(ran.Load())+len(errs) != 5 {
		t.Errorf("ran %d jobs and got %d errors, want 5 total", ran.Load(), len(errs))
	}
	for _, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error %v", err)
		}
	}
}
