// Package context holds small helpers for cooperative cancellation on top of
// the standard context package.
package context

import (
	"context"
	"errors"
	"time"
)

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// Sleep suspends the caller for d or until ctx is done, whichever comes
// first. It returns ctx.Err() when interrupted so callers can propagate the
// cancellation instead of swallowing it.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupted reports whether err is a context cancellation or deadline error
// and ctx itself is done, i.e. the failure came from ctx rather than from the
// operation.
func Interrupted(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
