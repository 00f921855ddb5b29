/*
Package channel provides a bounded FIFO queue with blocking, context-aware
put and get.

Put suspends while the channel is full and Get suspends while it is empty and
open. Both return ctx's error if ctx ends first, and in that case nothing is
queued or removed. Len never exceeds Cap.

	ch := channel.MustNew[string](5)
	_ = ch.Put(ctx, "Data item 1")
	v, err := ch.Get(ctx)

# Closing

Close stops further puts. Values already queued stay consumable; Get returns
ErrClosed only once the channel is closed and drained.

# End-of-stream markers

Closing is a whole-channel signal. When several consumers share a channel and
each must finish draining payloads queued ahead of its stop signal, producers
push one marker per consumer instead:

	items := channel.MustNew[channel.Item[string]](5)
	_ = items.Put(ctx, channel.Payload("Data item 1"))
	for i := 0; i < consumers; i++ {
		_ = items.Put(ctx, channel.EndOfStream[string]())
	}

A consumer stops pulling after the first marker it receives, so each consumer
sees exactly one.

# Acknowledgement

Every successful put counts as unfinished until a matching Ack. Join suspends
until the count reaches zero, letting a producer wait for its consumers to
finish processing rather than merely dequeuing.
*/
package channel
