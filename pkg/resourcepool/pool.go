package resourcepool

import (
	"context"
)

// Acquire suspends until a permit is granted or ctx is done.
func (rp *resourcePool) Acquire(ctx context.Context) (*Permit, error) {
	// Check if context is already canceled
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rp.mu.Lock()

	// Fast path: a permit is free and nobody is queued ahead of us
	if rp.available > 0 && rp.waiters.Len() == 0 {
		rp.available--
		rp.mu.Unlock()
		return rp.newPermit(), nil
	}

	// Slow path: join the back of the queue
	w := &waiter{ready: make(chan struct{})}
	elem := rp.waiters.PushBack(w)
	rp.mu.Unlock()

	select {
	case <-w.ready:
		return rp.newPermit(), nil
	case <-ctx.Done():
		rp.mu.Lock()
		defer rp.mu.Unlock()

		if w.granted {
			// The permit was handed over while ctx fired; pass it on.
			rp.releaseLocked()
		} else {
			rp.waiters.Remove(elem)
		}
		return nil, ctx.Err()
	}
}

// TryAcquire grants a permit without blocking.
func (rp *resourcePool) TryAcquire() (*Permit, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.available > 0 && rp.waiters.Len() == 0 {
		rp.available--
		return rp.newPermit(), true
	}
	return nil, false
}

// Do runs fn while holding a permit.
func (rp *resourcePool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return do(ctx, rp, fn)
}

// Capacity returns the fixed number of permits.
func (rp *resourcePool) Capacity() int {
	return rp.capacity
}

// Available returns the number of permits not currently held.
func (rp *resourcePool) Available() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.available
}

// InUse returns the number of permits currently held.
func (rp *resourcePool) InUse() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.capacity - rp.available
}

// Waiting returns the number of suspended acquirers.
func (rp *resourcePool) Waiting() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.waiters.Len()
}

func (rp *resourcePool) newPermit() *Permit {
	return &Permit{release: rp.release}
}

func (rp *resourcePool) release() {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.releaseLocked()
}

// releaseLocked hands the permit to the longest-waiting acquirer, or returns
// it to the free count. Must be called with rp.mu held.
func (rp *resourcePool) releaseLocked() {
	if front := rp.waiters.Front(); front != nil {
		w := rp.waiters.Remove(front).(*waiter)
		w.granted = true
		close(w.ready)
		return
	}

	if rp.available >= rp.capacity {
		panic("resourcepool: released more permits than acquired")
	}
	rp.available++
}

func do(ctx context.Context, p Pool, fn func(ctx context.Context) error) error {
	permit, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer permit.Release()

	return fn(ctx)
}
