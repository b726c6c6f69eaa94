// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WorkerPool bounds how many jobs run at the same time.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// Size returns the number of concurrent workers.
func (wp *WorkerPool) Size() int {
	return wp.workerCount
}

// RunEach executes every job, never cancelling the others when one fails.
// The returned slice is index-aligned with jobs: results[i] is the error of
// jobs[i], or nil on success. Jobs that had not started when ctx was done
// report ctx.Err().
func (wp *WorkerPool) RunEach(ctx context.Context, jobs ...func(ctx context.Context) error) []error {
	if len(jobs) == 0 {
		return nil
	}

	results := make([]error, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(wp.workerCount)

	for i, job := range jobs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				results[i] = ctx.Err()
				return nil
			default:
			}

			// each goroutine owns its own slot
			results[i] = job(ctx)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

// Failed counts the non-nil entries of a RunEach result.
func Failed(results []error) int {
	n := 0
	for _, err := range results {
		if err != nil {
			n++
		}
	}
	return n
}
