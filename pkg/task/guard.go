package task

import (
	"context"
	"time"

	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
)

// WithTimeout races h against a timer of d. The task is started if it has not
// been already. If the timer fires first the task is cancelled with ErrTimeout
// and WithTimeout waits until the task has observed the cancellation and
// settled before returning a TimedOut outcome. If ctx ends first the task is
// cancelled the same way and its Canceled outcome is returned. A task that
// finishes first has its own outcome returned unchanged.
func WithTimeout[T any](ctx context.Context, h *Handle[T], d time.Duration) Outcome[T] {
	h.Start()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.Done():
	case <-timer.C:
		h.cancelWith(gferrors.ErrTimeout)
		<-h.Done()
	case <-ctx.Done():
		h.cancelWith(context.Cause(ctx))
		<-h.Done()
	}

	o, _ := h.Outcome()
	return o
}

// RunWithTimeout spawns fn in s and guards it with d.
func RunWithTimeout[T any](ctx context.Context, s *Scope, name string, d time.Duration, fn Func[T]) Outcome[T] {
	h := New(s, name, fn)
	o := WithTimeout(ctx, h, d)
	if s != nil {
		s.Discard(h)
	}
	return o
}
