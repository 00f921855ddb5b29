/*
Package workerpool runs blocking work on a fixed set of goroutines so callers
that orchestrate many concurrent tasks can hand off non-cancellable steps
without tying up their own flow.

Tasks are queued FIFO and executed by WorkerCount workers. Submit suspends
while the queue is full. Each task runs with its submitter's context, so a
task whose submitter has already given up is skipped rather than started.

# Bridging

Call is the usual entry point. It submits a function and suspends until the
function returns its value:

	pool := workerpool.MustNew(2, 16)
	defer pool.Close()

	sum, err := workerpool.Call(ctx, pool, func(ctx context.Context) (int, error) {
		return checksum(payload), nil
	})

Panics inside the function are recovered and returned as errors.

# Shutdown

Shutdown stops accepting new tasks and returns a channel that closes once
every queued and in-flight task has finished. No task is abandoned
mid-execution. ShutdownWithTimeout additionally cancels the contexts of
remaining tasks once its deadline passes and still waits for them to return.

# Metrics

NewWithMetrics and Instrument wrap a pool so that pool size, active workers,
queue depth, completions by status and execution time are exported through
pkg/metrics.
*/
package workerpool
