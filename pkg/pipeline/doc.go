/*
Package pipeline composes a bounded channel, a set of producer and consumer
tasks, an optional admission pool and an optional worker pool into a
producer/consumer dataflow that drains to completion.

	p, err := pipeline.New(pipeline.Config{Consumers: 2, Buffer: 5},
		func(ctx context.Context, item string) (string, error) {
			return strings.ToUpper(item), nil
		})
	run, err := p.Start(scope, pipeline.FromSlice(items))
	for res := range run.Results() {
		// one Result per item, failures included
	}
	summary, err := run.Wait(ctx)

# Shutdown protocol

Producers do not close the channel. When the last producer has pushed its
final item it pushes one end-of-stream marker per consumer. Each consumer
keeps pulling until it sees a marker, so payloads queued ahead of the markers
are always processed, and each consumer observes exactly one marker.

# Failures and cancellation

A processing error, panic or per-item timeout fails that item only: it is
reported through Results and the consumer moves on. Cancelling the scope
stops producers and consumers at their next suspension point; an item whose
processing was interrupted is neither reported nor acknowledged.

# Blocking work

Offload wraps a blocking function so that it runs on a workerpool.Pool while
the consumer waits, and Config.Admission bounds how many items are processed
at once across every pipeline sharing the same resourcepool.Pool.
*/
package pipeline
