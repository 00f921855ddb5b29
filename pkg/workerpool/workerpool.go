package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/vnykmshr/flowcore/internal/logger"
	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
)

// ErrPoolShutdown is returned by Submit once Shutdown has been called.
var ErrPoolShutdown = fmt.Errorf("worker pool: %w", gferrors.ErrShutdown)

// Submit queues a task for execution.
func (p *workerPool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Check if context is already canceled before attempting to queue
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cannot submit task: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.isShutdown {
		return ErrPoolShutdown
	}

	select {
	case p.taskQueue <- job{task: task, ctx: ctx}:
		p.totalSubmitted.Add(1)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: %w", ctx.Err())
	}
}

// Shutdown initiates a graceful shutdown of the pool.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		// Waits for submitters already queuing to finish
		p.mu.Lock()
		p.isShutdown = true
		p.mu.Unlock()

		close(p.shutdownCh)
		p.logger.Debug("worker pool draining", slog.Int("queued", len(p.taskQueue)))

		go func() {
			p.workerWg.Wait()
			p.cancelBase(nil)
			p.logger.Debug("worker pool stopped", slog.Int64("completed", p.totalCompleted.Load()))
			close(p.done)
		}()
	})

	return p.done
}

// ShutdownWithTimeout shuts down the pool, cancelling remaining tasks after timeout.
func (p *workerPool) ShutdownWithTimeout(timeout time.Duration) <-chan struct{} {
	done := p.Shutdown()

	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			p.logger.Warn("worker pool shutdown deadline exceeded, cancelling tasks",
				logger.Duration(timeout))
			p.cancelBase(gferrors.ErrTimeout)
		}
	}()

	return done
}

// Close shuts the pool down and waits for all workers to exit.
func (p *workerPool) Close() error {
	<-p.Shutdown()
	return nil
}

// Size returns the number of workers in the pool.
func (p *workerPool) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	return len(p.taskQueue)
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *workerPool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// TotalSubmitted returns the total number of tasks submitted to the pool.
func (p *workerPool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the total number of tasks completed by the pool.
func (p *workerPool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// run is the main loop for a worker.
func (w *worker) run() {
	defer w.pool.workerWg.Done()

	if w.pool.config.OnWorkerStart != nil {
		w.pool.config.OnWorkerStart(w.id)
	}
	defer func() {
		if w.pool.config.OnWorkerStop != nil {
			w.pool.config.OnWorkerStop(w.id)
		}
	}()

	for {
		select {
		case j := <-w.pool.taskQueue:
			w.executeTask(j)
		case <-w.pool.shutdownCh:
			// Drain whatever was queued before shutdown
			for {
				select {
				case j := <-w.pool.taskQueue:
					w.executeTask(j)
				default:
					return
				}
			}
		}
	}
}

// executeTask executes a single task with its submitter's context.
func (w *worker) executeTask(j job) {
	p := w.pool

	// The submitter gave up before the task was reached
	if err := j.ctx.Err(); err != nil {
		w.complete(Result{Task: j.task, Error: err, Skipped: true, WorkerID: w.id})
		return
	}

	p.activeWorkers.Add(1)
	defer p.activeWorkers.Add(-1)

	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(w.id, j.task)
	}

	start := time.Now()
	var err error

	// Handle panics during task execution
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
			p.logger.Error("task panicked", slog.Int("worker", w.id), slog.Any("panic", r))
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(j.task, r)
			}
		}

		p.totalCompleted.Add(1)
		w.complete(Result{
			Task:     j.task,
			Error:    err,
			Duration: time.Since(start),
			WorkerID: w.id,
		})
	}()

	ctx, cancel := context.WithCancelCause(j.ctx)
	defer cancel(nil)
	stop := context.AfterFunc(p.base, func() {
		cancel(context.Cause(p.base))
	})
	defer stop()

	// Apply TaskTimeout if configured
	if p.config.TaskTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancelTimeout()
	}

	err = j.task.Execute(ctx)
}

func (w *worker) complete(result Result) {
	if w.pool.config.OnTaskComplete != nil {
		w.pool.config.OnTaskComplete(w.id, result)
	}
}
