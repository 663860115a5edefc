// Package parallel runs a function over a slice of items on a bounded
// worker pool.
//
// Results are reported per item and returned in input order, so callers
// can correlate outputs (and errors) with the inputs that produced them.
// A failing item never aborts the batch.
package parallel

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// DefaultWorkers bounds the pool when the caller passes workers <= 0.
const DefaultWorkers = 100

// Result pairs an input item with its output or error.
type Result[T, R any] struct {
	In  T
	Out R
	Err error
}

// Map applies fn to every item using at most workers goroutines and
// returns one Result per item, in input order.
//
// Per-item errors and panics are captured in the corresponding Result;
// Map itself always returns a full slice. If ctx is cancelled, items not
// yet started fail with the context error.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, T) (R, error)) []Result[T, R] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]Result[T, R], len(items))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = Result[T, R]{In: item, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = apply(ctx, item, fn)
		}()
	}
	wg.Wait()
	return results
}

// apply invokes fn for one item, converting a panic into an error so a
// misbehaving worker cannot take down the whole batch.
func apply[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (res Result[T, R]) {
	res.In = item
	defer func() {
		if r := recover(); r != nil {
			slog.Error("parallel: panic in worker", "panic", r, "stack", string(debug.Stack()))
			res.Err = fmt.Errorf("parallel: panic: %v", r)
		}
	}()
	res.Out, res.Err = fn(ctx, item)
	return res
}
