package workerpool

import (
	"context"
	"time"

	"github.com/vnykmshr/flowcore/pkg/metrics"
)

// MetricsPool wraps a worker Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry *metrics.Registry
}

// NewWithMetrics creates a worker pool whose activity is recorded in
// registry under name. A nil registry uses metrics.DefaultRegistry.
func NewWithMetrics(config Config, name string, registry *metrics.Registry) (Pool, error) {
	if config.Name == "" {
		config.Name = name
	}
	basePool, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}
	return Instrument(basePool, name, registry), nil
}

// Instrument wraps an existing pool with metrics collection.
func Instrument(p Pool, name string, registry *metrics.Registry) *MetricsPool {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	mp := &MetricsPool{
		pool:     p,
		name:     name,
		registry: registry,
	}
	mp.updateMetrics()
	return mp
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool) updateMetrics() {
	mp.registry.WorkerPoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Submit queues a task and records its execution.
func (mp *MetricsPool) Submit(ctx context.Context, task Task) error {
	wrapped := &metricsTask{
		original: task,
		pool:     mp,
	}

	err := mp.pool.Submit(ctx, wrapped)
	mp.updateMetrics()
	return err
}

// metricsTask wraps a Task to collect execution metrics.
type metricsTask struct {
	original Task
	pool     *MetricsPool
}

// Execute runs the original task and records metrics.
func (mt *metricsTask) Execute(ctx context.Context) (err error) {
	start := time.Now()
	mt.pool.updateMetrics()

	defer func() {
		r := recover()

		status := "success"
		switch {
		case r != nil:
			status = "panic"
		case err != nil:
			status = "error"
		}

		reg := mt.pool.registry
		reg.WorkerPoolDuration.WithLabelValues(mt.pool.name).Observe(time.Since(start).Seconds())
		reg.WorkerPoolCompleted.WithLabelValues(mt.pool.name, status).Inc()
		mt.pool.updateMetrics()

		// The worker owns panic recovery
		if r != nil {
			panic(r)
		}
	}()

	return mt.original.Execute(ctx)
}

// Shutdown initiates graceful shutdown of the pool.
func (mp *MetricsPool) Shutdown() <-chan struct{} {
	return mp.pool.Shutdown()
}

// ShutdownWithTimeout shuts down the pool with a timeout.
func (mp *MetricsPool) ShutdownWithTimeout(timeout time.Duration) <-chan struct{} {
	return mp.pool.ShutdownWithTimeout(timeout)
}

// Close shuts the pool down and waits for it to finish.
func (mp *MetricsPool) Close() error {
	err := mp.pool.Close()
	mp.updateMetrics()
	return err
}

// Size returns the current number of workers.
func (mp *MetricsPool) Size() int {
	return mp.pool.Size()
}

// QueueSize returns the current number of queued tasks.
func (mp *MetricsPool) QueueSize() int {
	return mp.pool.QueueSize()
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (mp *MetricsPool) ActiveWorkers() int {
	return mp.pool.ActiveWorkers()
}

// TotalSubmitted returns the total number of tasks submitted.
func (mp *MetricsPool) TotalSubmitted() int64 {
	return mp.pool.TotalSubmitted()
}

// TotalCompleted returns the total number of tasks completed.
func (mp *MetricsPool) TotalCompleted() int64 {
	return mp.pool.TotalCompleted()
}
