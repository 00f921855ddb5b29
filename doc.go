/*
Package flowcore provides building blocks for cooperative task orchestration
in Go services: bounded admission, cancellable tasks with timeouts, bounded
channels, a worker pool bridge for blocking work, a producer/consumer
pipeline, a broadcast hub and a shutdown coordinator.

Admission and tasks:
  - resourcepool: FIFO permit pool with scoped Do/With
  - task: Handle, Scope, Gather and the WithTimeout guard
  - workerpool: fixed workers for blocking calls, bridged by Call

Data flow:
  - channel: bounded FIFO channel with end-of-stream markers and Ack/Join
  - pipeline: producers, N consumers, one marker per consumer

Services:
  - hub: websocket broadcast hub with an optional Redis backplane
  - scheduler: cron and interval root jobs
  - shutdown: signal-driven cancel, drain and LIFO release

Example usage:

	import (
		"github.com/vnykmshr/flowcore/pkg/resourcepool"
		"github.com/vnykmshr/flowcore/pkg/task"
	)

	pool := resourcepool.MustNew(2)
	o := task.RunWithTimeout(ctx, nil, "fetch", 2*time.Second, func(ctx context.Context) (string, error) {
		return resourcepool.With(ctx, pool, fetch)
	})
	if o.Kind == task.TimedOut {
		// the task observed cancellation and released its permit
	}
*/
package flowcore
