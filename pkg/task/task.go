package task

import (
	"context"
	"errors"
	"fmt"

	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
)

// State is the lifecycle position of a task. Transitions are monotone:
// Created -> Running -> one of the terminal states.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Kind classifies how a task ended.
type Kind int

const (
	Succeeded Kind = iota
	Failed
	TimedOut
	Canceled
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the terminal result of a task: a value, a failure, a timeout or
// a cancellation. Err is nil only when Kind is Succeeded.
type Outcome[T any] struct {
	Value T
	Err   error
	Kind  Kind
}

// OK reports whether the task succeeded.
func (o Outcome[T]) OK() bool {
	return o.Kind == Succeeded
}

// Unwrap returns the value and error in the conventional Go shape.
func (o Outcome[T]) Unwrap() (T, error) {
	return o.Value, o.Err
}

// Func is the body of a task. It must return promptly once ctx is done,
// passing ctx's error (or one wrapping it) up the stack.
type Func[T any] func(ctx context.Context) (T, error)

// Task is the type-erased view of a Handle used by scopes and coordinators.
type Task interface {
	// ID returns the unique task identifier.
	ID() string

	// Name returns the human readable name given at creation.
	Name() string

	// State returns the current lifecycle state.
	State() State

	// Kind returns the outcome kind. Only meaningful once Done is closed.
	Kind() Kind

	// Err returns the terminal error, or nil while running or on success.
	Err() error

	// Done is closed when the task reaches a terminal state.
	Done() <-chan struct{}

	// Cancel requests cooperative cancellation.
	Cancel()
}

// isCancellation reports whether err is one of the errors a task returns
// when it honors a cancellation request.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gferrors.ErrCanceled) ||
		errors.Is(err, gferrors.ErrTimeout)
}

// classify maps a cancellation cause to an outcome kind and a normalized
// error that matches ErrTimeout or ErrCanceled.
func classify(cause error) (Kind, error) {
	switch {
	case errors.Is(cause, gferrors.ErrTimeout):
		return TimedOut, cause
	case errors.Is(cause, context.DeadlineExceeded):
		return TimedOut, fmt.Errorf("%w: %w", gferrors.ErrTimeout, cause)
	case errors.Is(cause, gferrors.ErrCanceled):
		return Canceled, cause
	case cause == nil:
		return Canceled, gferrors.ErrCanceled
	default:
		return Canceled, fmt.Errorf("%w: %w", gferrors.ErrCanceled, cause)
	}
}
