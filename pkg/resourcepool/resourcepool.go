package resourcepool

import (
	"container/list"
	"context"
	"sync"

	"github.com/vnykmshr/flowcore/pkg/common/validation"
)

// Pool is a bounded admission gate. At most Capacity protected sections are
// active at any instant; acquirers that find no permit suspend and are
// granted permits strictly in arrival order.
type Pool interface {
	// Acquire suspends until a permit is granted or ctx is done.
	// The returned Permit must be released exactly once; extra calls
	// to Release are ignored.
	Acquire(ctx context.Context) (*Permit, error)

	// TryAcquire grants a permit only if one is free and nobody is queued
	// ahead of the caller. It never blocks.
	TryAcquire() (*Permit, bool)

	// Do runs fn while holding a permit. The permit is released on every
	// exit path, including errors, panics and cancellation.
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// Capacity returns the fixed number of permits.
	Capacity() int

	// Available returns the number of permits not currently held.
	Available() int

	// InUse returns the number of permits currently held.
	InUse() int

	// Waiting returns the number of suspended acquirers.
	Waiting() int
}

// Config holds configuration options for creating a Pool.
type Config struct {
	// Capacity is the number of permits. Must be positive and never changes.
	Capacity int
}

// Permit is a unit of admission granted by a Pool.
type Permit struct {
	once    sync.Once
	release func()
}

// Release returns the permit to its pool. Only the first call has effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.release)
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

// resourcePool implements Pool with a mutex-guarded counter and a FIFO
// wait-list. A released permit is handed directly to the oldest waiter, so
// newcomers can never overtake queued acquirers.
type resourcePool struct {
	mu        sync.Mutex
	capacity  int
	available int
	waiters   *list.List
}

// New creates a pool with the given number of permits.
func New(capacity int) (Pool, error) {
	return NewWithConfig(Config{Capacity: capacity})
}

// NewWithConfig creates a pool with validation that returns an error instead of panicking.
func NewWithConfig(config Config) (Pool, error) {
	if err := validation.ValidatePositive("resourcepool", "capacity", config.Capacity); err != nil {
		return nil, err
	}

	return &resourcePool{
		capacity:  config.Capacity,
		available: config.Capacity,
		waiters:   list.New(),
	}, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew(capacity int) Pool {
	p, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return p
}

// With runs fn while holding a permit from p and returns its value.
func With[T any](ctx context.Context, p Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
