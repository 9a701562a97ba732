package nodemanager

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// fanOut runs n indexed tasks. A task returns an error only when the whole run has to be
// aborted; per-node failures are reported through the task's own results.
type fanOut interface {
	// Concurrent reports whether tasks may run at the same time.
	Concurrent() bool
	// Run executes task for every index in [0,n) with at most limit tasks at once (0 for no limit).
	Run(ctx context.Context, n int, limit int, task func(ctx context.Context, i int) error) error
}

func newFanOut(singleThreaded bool) fanOut {
	if singleThreaded {
		return sequentialFanOut{}
	}
	return parallelFanOut{}
}

type parallelFanOut struct{}

func (parallelFanOut) Concurrent() bool { return true }

func (parallelFanOut) Run(ctx context.Context, n int, limit int, task func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return runTask(gctx, i, task)
		})
	}
	return g.Wait()
}

type sequentialFanOut struct{}

func (sequentialFanOut) Concurrent() bool { return false }

func (sequentialFanOut) Run(ctx context.Context, n int, _ int, task func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runTask(ctx, i, task); err != nil {
			return err
		}
	}
	return nil
}

// runTask turns a panicking task into ErrTaskFailed.
func runTask(ctx context.Context, i int, task func(ctx context.Context, i int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskFailed, r)
		}
	}()
	return task(ctx, i)
}
