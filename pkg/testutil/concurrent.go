// Package testutil holds helpers shared by store and service tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"deepname/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations, bucketed
// by the store sentinels a race is expected to produce.
type ConcurrentResult struct {
	Successes   int32
	Errors      int32
	Conflicts   int32
	AlreadyUsed int32
	Superseded  int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.AlreadyUsed + r.Superseded
}

// RunConcurrent executes fn in parallel goroutines and buckets the results.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, errs, conflicts, used, superseded atomic.Int32

	for i := range goroutines {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				used.Add(1)
			case errors.Is(err, sentinel.ErrSuperseded):
				superseded.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}
	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		Errors:      errs.Load(),
		Conflicts:   conflicts.Load(),
		AlreadyUsed: used.Load(),
		Superseded:  superseded.Load(),
	}
}

// RunConcurrentCtx is RunConcurrent with a shared context.
func RunConcurrentCtx(ctx context.Context, goroutines int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(goroutines, func(idx int) error {
		return fn(ctx, idx)
	})
}
