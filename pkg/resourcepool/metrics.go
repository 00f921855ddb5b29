package resourcepool

import (
	"context"
	"time"

	"github.com/vnykmshr/flowcore/pkg/metrics"
)

// MetricsPool wraps a Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry *metrics.Registry
}

// NewWithMetrics creates a pool whose permits, waiters and wait times are
// reported under the given name. A nil registry uses metrics.DefaultRegistry.
func NewWithMetrics(capacity int, name string, registry *metrics.Registry) (Pool, error) {
	base, err := New(capacity)
	if err != nil {
		return nil, err
	}
	return Instrument(base, name, registry), nil
}

// Instrument decorates an existing pool with metrics.
func Instrument(p Pool, name string, registry *metrics.Registry) *MetricsPool {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}

	mp := &MetricsPool{
		pool:     p,
		name:     name,
		registry: registry,
	}
	mp.registry.PoolCapacity.WithLabelValues(name).Set(float64(p.Capacity()))
	mp.updateMetrics()

	return mp
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool) updateMetrics() {
	mp.registry.PoolInUse.WithLabelValues(mp.name).Set(float64(mp.pool.InUse()))
	mp.registry.PoolWaiting.WithLabelValues(mp.name).Set(float64(mp.pool.Waiting()))
}

// Acquire suspends until a permit is granted, recording the wait.
func (mp *MetricsPool) Acquire(ctx context.Context) (*Permit, error) {
	start := time.Now()
	inner, err := mp.pool.Acquire(ctx)

	mp.registry.PoolWaitDuration.WithLabelValues(mp.name).Observe(time.Since(start).Seconds())
	mp.updateMetrics()

	if err != nil {
		return nil, err
	}
	return mp.wrap(inner), nil
}

// TryAcquire grants a permit without blocking.
func (mp *MetricsPool) TryAcquire() (*Permit, bool) {
	inner, ok := mp.pool.TryAcquire()
	mp.updateMetrics()
	if !ok {
		return nil, false
	}
	return mp.wrap(inner), true
}

// Do runs fn while holding a permit.
func (mp *MetricsPool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return do(ctx, mp, fn)
}

// Capacity returns the fixed number of permits.
func (mp *MetricsPool) Capacity() int {
	return mp.pool.Capacity()
}

// Available returns the number of permits not currently held.
func (mp *MetricsPool) Available() int {
	return mp.pool.Available()
}

// InUse returns the number of permits currently held.
func (mp *MetricsPool) InUse() int {
	return mp.pool.InUse()
}

// Waiting returns the number of suspended acquirers.
func (mp *MetricsPool) Waiting() int {
	return mp.pool.Waiting()
}

func (mp *MetricsPool) wrap(inner *Permit) *Permit {
	return &Permit{release: func() {
		inner.Release()
		mp.updateMetrics()
	}}
}
