package nodemanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFanOut(t *testing.T) {
	for _, singleThreaded := range []bool{false, true} {
		f := newFanOut(singleThreaded)
		require.Equal(t, !singleThreaded, f.Concurrent())

		results := make([]int, 10)
		err := f.Run(context.Background(), len(results), 3, func(_ context.Context, i int) error {
			results[i] = i * i
			return nil
		})
		require.NoError(t, err)
		for i, r := range results {
			require.Equal(t, i*i, r)
		}
	}
}

func TestFanOutLimit(t *testing.T) {
	var running, peak atomic.Int32
	block := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- newFanOut(false).Run(context.Background(), 6, 2, func(_ context.Context, _ int) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-block
			running.Add(-1)
			return nil
		})
	}()
	close(block)
	require.NoError(t, <-done)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanOutErrors(t *testing.T) {
	boom := errors.New("boom")
	for _, singleThreaded := range []bool{false, true} {
		f := newFanOut(singleThreaded)

		err := f.Run(context.Background(), 3, 0, func(_ context.Context, i int) error {
			if i == 1 {
				return boom
			}
			return nil
		})
		require.ErrorIs(t, err, boom)

		err = f.Run(context.Background(), 3, 0, func(_ context.Context, i int) error {
			panic("task blew up")
		})
		require.ErrorIs(t, err, ErrTaskFailed)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var calls atomic.Int32
		err = f.Run(ctx, 3, 0, func(ctx context.Context, _ int) error {
			calls.Add(1)
			return ctx.Err()
		})
		require.ErrorIs(t, err, context.Canceled)
	}
}
