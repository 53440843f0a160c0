package runner

import (
	"context"
	"sync"
)

type Job func(ctx context.Context) error

// RunPool executes jobs with at most maxWorkers concurrently and returns the
// errors of failed jobs in job order. Jobs still queued when ctx is done are
// not started and report ctx.Err().
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var wg sync.WaitGroup
	results := make([]error, len(jobs))
	sem := make(chan struct{}, maxWorkers)

	for i, job := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(i int, j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = j(ctx)
		}(i, job)
	}
	wg.Wait()

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
