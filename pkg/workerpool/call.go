package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
)

const (
	callPending int32 = iota
	callRunning
	callAbandoned
)

// Call runs fn on a pool worker and suspends the caller until it returns.
// Other goroutines keep running while the caller waits.
//
// If ctx ends while fn is still queued, Call returns ctx's error at once and
// fn never runs. If ctx ends while fn is running, fn sees the cancellation
// through its own context and Call waits for it to return, so no step is
// abandoned mid-execution.
func Call[T any](ctx context.Context, p Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	var (
		zero  T
		state atomic.Int32
		out   = make(chan result, 1)
	)

	err := p.Submit(ctx, TaskFunc(func(ctx context.Context) (err error) {
		if !state.CompareAndSwap(callPending, callRunning) {
			return context.Canceled
		}

		var value T
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
			}
			out <- result{value: value, err: err}
		}()

		value, err = fn(ctx)
		return err
	}))
	if err != nil {
		return zero, err
	}

	select {
	case r := <-out:
		return r.value, r.err
	case <-ctx.Done():
		if state.CompareAndSwap(callPending, callAbandoned) {
			return zero, ctx.Err()
		}
		r := <-out
		return r.value, r.err
	}
}
