package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
)

// Handle is a cancellable, awaitable unit of work producing a T. It reaches
// exactly one terminal state.
type Handle[T any] struct {
	id    string
	name  string
	fn    Func[T]
	scope *Scope

	ctx    context.Context
	cancel context.CancelCauseFunc

	state    atomic.Int32
	once     sync.Once
	done     chan struct{}
	outcome  Outcome[T]
	startAt  time.Time
	duration time.Duration
}

// New creates a task in the Created state owned by s. The task does not run
// until Start is called, and Scope.Wait does not return while it is owned and
// unstarted in a live scope. A nil scope creates a detached task.
func New[T any](s *Scope, name string, fn Func[T]) *Handle[T] {
	if fn == nil {
		panic("task: nil Func")
	}

	parent := context.Background()
	if s != nil {
		parent = s.ctx
	}
	ctx, cancel := context.WithCancelCause(parent)

	h := &Handle[T]{
		id:     uuid.NewString(),
		name:   name,
		fn:     fn,
		scope:  s,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if s != nil {
		s.add(h)
	}
	return h
}

// Spawn creates a task owned by s and starts it immediately.
func Spawn[T any](s *Scope, name string, fn Func[T]) *Handle[T] {
	h := New(s, name, fn)
	h.Start()
	return h
}

// Start begins executing the task on its own goroutine. Calling Start more
// than once, or on a task cancelled before it started, has no effect.
func (h *Handle[T]) Start() {
	if !h.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return
	}
	h.startAt = time.Now()
	if h.scope != nil {
		h.scope.started(h)
	}
	go h.run()
}

func (h *Handle[T]) run() {
	var (
		value T
		err   error
	)

	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = fmt.Errorf("task %s panicked: %v\nStack trace:\n%s", h.name, r, debug.Stack())
		}
		h.settle(value, err)
	}()

	value, err = h.fn(h.ctx)
}

// settle records the terminal outcome exactly once.
func (h *Handle[T]) settle(value T, err error) {
	h.once.Do(func() {
		var state State
		switch {
		case err == nil:
			state = StateCompleted
			h.outcome = Outcome[T]{Value: value, Kind: Succeeded}
		case h.ctx.Err() != nil && isCancellation(err):
			kind, cause := classify(context.Cause(h.ctx))
			state = StateCancelled
			h.outcome = Outcome[T]{Err: cause, Kind: kind}
		default:
			state = StateFailed
			h.outcome = Outcome[T]{Value: value, Err: err, Kind: Failed}
		}

		if !h.startAt.IsZero() {
			h.duration = time.Since(h.startAt)
		}
		h.state.Store(int32(state))
		h.cancel(nil)

		if h.scope != nil {
			h.scope.settled(h, h.outcome.Kind, h.outcome.Err, h.duration)
		}
		close(h.done)
	})
}

// Cancel requests cooperative cancellation. The task observes it at its next
// suspension point. A task that has not started settles as Cancelled at once.
func (h *Handle[T]) Cancel() {
	h.cancelWith(gferrors.ErrCanceled)
}

func (h *Handle[T]) cancelWith(cause error) {
	h.cancel(cause)
	if h.state.CompareAndSwap(int32(StateCreated), int32(StateCancelled)) {
		var zero T
		h.settle(zero, cause)
	}
}

// Await suspends until the task is terminal and returns its value or error.
// If ctx is done first Await returns ctx's error and the task keeps running.
// A successful Await releases the task from its scope.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		if h.scope != nil {
			h.scope.Discard(h)
		}
		return h.outcome.Value, h.outcome.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Outcome returns the terminal outcome without blocking. The boolean is false
// while the task is still pending.
func (h *Handle[T]) Outcome() (Outcome[T], bool) {
	select {
	case <-h.done:
		return h.outcome, true
	default:
		return Outcome[T]{}, false
	}
}

// Done is closed once the task is terminal.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// State returns the current lifecycle state.
func (h *Handle[T]) State() State {
	return State(h.state.Load())
}

// Kind returns the outcome kind once the task is terminal.
func (h *Handle[T]) Kind() Kind {
	o, _ := h.Outcome()
	return o.Kind
}

// Err returns the terminal error, or nil if pending or successful.
func (h *Handle[T]) Err() error {
	o, _ := h.Outcome()
	return o.Err
}

// ID returns the task identifier.
func (h *Handle[T]) ID() string {
	return h.id
}

// Name returns the task name.
func (h *Handle[T]) Name() string {
	return h.name
}

// Duration returns how long the task ran. It is zero until the task is
// terminal and for tasks cancelled before they started.
func (h *Handle[T]) Duration() time.Duration {
	select {
	case <-h.done:
		return h.duration
	default:
		return 0
	}
}
