// Package pool provides a bounded worker pool for fan-out work inside a
// single source's run. It parallelizes fetching only; callers persist the
// collected results serially.
package pool

import (
	"context"
	"sync"
)

// Result pairs one input with its output or error.
type Result[T, R any] struct {
	Input T
	Value R
	Err   error
}

// Map runs fn over every item with at most workers goroutines and returns
// the results in input order. A cancelled context short-circuits remaining
// items with ctx.Err().
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) []Result[T, R] {
	if workers <= 0 {
		workers = 1
	}

	results := make([]Result[T, R], len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i] = Result[T, R]{Input: items[i], Err: err}
					continue
				}
				value, err := fn(ctx, items[i])
				results[i] = Result[T, R]{Input: items[i], Value: value, Err: err}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
