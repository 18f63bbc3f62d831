package core

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool runs data-parallel loops over time slices with a bounded number of
// goroutines. Every call returns only after all of its tasks finished, so
// consecutive calls form phases separated by a full barrier.
type Pool struct {
	workers int
}

// NewPool returns a pool of the given size; workers <= 0 selects GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers is the concurrency bound.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Slices calls fn(slice) for slice in [0, n). Calls may run concurrently and
// in any order; fn must only write state owned by its slice.
func (p *Pool) Slices(ctx context.Context, n int, fn func(slice int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Workers() == 1 {
		for s := 0; s < n; s++ {
			if err := fn(s); err != nil {
				return err
			}
		}
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for s := 0; s < n; s++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(s)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
