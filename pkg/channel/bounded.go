package channel

import (
	"context"
	"sync"
)

// boundedChannel implements Channel with a ring buffer. Waiters park on
// notify channels that are closed and replaced whenever the condition they
// wait for may have changed.
type boundedChannel[T any] struct {
	config Config
	mu     sync.Mutex

	buffer []T
	head   int
	tail   int
	count  int
	closed bool

	notEmpty chan struct{}
	notFull  chan struct{}
	drained  chan struct{}

	unfinished int
	stats      Stats
}

// Put implements Channel.Put.
func (ch *boundedChannel[T]) Put(ctx context.Context, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blocked := false
	for {
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			return ErrClosed
		}
		if ch.count < len(ch.buffer) {
			ch.pushLocked(value)
			ch.mu.Unlock()
			return nil
		}

		first := !blocked
		if first {
			blocked = true
			ch.stats.BlockedPuts++
		}
		wait := ch.notFull
		ch.stats.WaitingProducers++
		ch.mu.Unlock()

		if first {
			ch.blocked("put")
		}

		select {
		case <-wait:
			ch.mu.Lock()
			ch.stats.WaitingProducers--
			ch.mu.Unlock()
		case <-ctx.Done():
			ch.mu.Lock()
			ch.stats.WaitingProducers--
			ch.mu.Unlock()
			return ctx.Err()
		}
	}
}

// TryPut implements Channel.TryPut.
func (ch *boundedChannel[T]) TryPut(value T) (bool, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return false, ErrClosed
	}
	if ch.count >= len(ch.buffer) {
		return false, nil
	}
	ch.pushLocked(value)
	return true, nil
}

// Get implements Channel.Get.
func (ch *boundedChannel[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	blocked := false
	for {
		ch.mu.Lock()
		if ch.count > 0 {
			value := ch.popLocked()
			ch.mu.Unlock()
			return value, nil
		}
		if ch.closed {
			ch.mu.Unlock()
			return zero, ErrClosed
		}

		first := !blocked
		if first {
			blocked = true
			ch.stats.BlockedGets++
		}
		wait := ch.notEmpty
		ch.stats.WaitingConsumers++
		ch.mu.Unlock()

		if first {
			ch.blocked("get")
		}

		select {
		case <-wait:
			ch.mu.Lock()
			ch.stats.WaitingConsumers--
			ch.mu.Unlock()
		case <-ctx.Done():
			ch.mu.Lock()
			ch.stats.WaitingConsumers--
			ch.mu.Unlock()
			return zero, ctx.Err()
		}
	}
}

// TryGet implements Channel.TryGet.
func (ch *boundedChannel[T]) TryGet() (T, bool, error) {
	var zero T

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.count == 0 {
		if ch.closed {
			return zero, false, ErrClosed
		}
		return zero, false, nil
	}
	return ch.popLocked(), true, nil
}

// Close implements Channel.Close.
func (ch *boundedChannel[T]) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil
	}
	ch.closed = true

	// Wake everyone: producers fail, consumers drain then fail.
	ch.wake(&ch.notFull)
	ch.wake(&ch.notEmpty)
	return nil
}

// IsClosed implements Channel.IsClosed.
func (ch *boundedChannel[T]) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// Len implements Channel.Len.
func (ch *boundedChannel[T]) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.count
}

// Cap implements Channel.Cap.
func (ch *boundedChannel[T]) Cap() int {
	return len(ch.buffer)
}

// Ack implements Channel.Ack.
func (ch *boundedChannel[T]) Ack() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.unfinished <= 0 {
		return ErrNegativeUnfinished
	}
	ch.unfinished--
	if ch.unfinished == 0 {
		ch.wake(&ch.drained)
	}
	return nil
}

// Join implements Channel.Join.
func (ch *boundedChannel[T]) Join(ctx context.Context) error {
	for {
		ch.mu.Lock()
		if ch.unfinished == 0 {
			ch.mu.Unlock()
			return nil
		}
		wait := ch.drained
		ch.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats implements Channel.Stats.
func (ch *boundedChannel[T]) Stats() Stats {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	stats := ch.stats
	stats.Len = ch.count
	stats.Unfinished = ch.unfinished
	return stats
}

// pushLocked appends a value to the ring buffer (must hold lock).
func (ch *boundedChannel[T]) pushLocked(value T) {
	ch.buffer[ch.tail] = value
	ch.tail = (ch.tail + 1) % len(ch.buffer)
	ch.count++
	ch.unfinished++
	ch.stats.Puts++

	if ch.stats.WaitingConsumers > 0 {
		ch.wake(&ch.notEmpty)
	}
	if m := ch.config.Metrics; m != nil {
		m.ChannelPuts.WithLabelValues(ch.config.Name).Inc()
		m.ChannelDepth.WithLabelValues(ch.config.Name).Set(float64(ch.count))
	}
}

// popLocked removes the oldest value from the ring buffer (must hold lock).
func (ch *boundedChannel[T]) popLocked() T {
	value := ch.buffer[ch.head]
	var zero T
	ch.buffer[ch.head] = zero // Clear reference
	ch.head = (ch.head + 1) % len(ch.buffer)
	ch.count--
	ch.stats.Gets++

	if ch.stats.WaitingProducers > 0 {
		ch.wake(&ch.notFull)
	}
	if m := ch.config.Metrics; m != nil {
		m.ChannelGets.WithLabelValues(ch.config.Name).Inc()
		m.ChannelDepth.WithLabelValues(ch.config.Name).Set(float64(ch.count))
	}
	return value
}

// wake releases every goroutine parked on *c (must hold lock).
func (ch *boundedChannel[T]) wake(c *chan struct{}) {
	close(*c)
	*c = make(chan struct{})
}

func (ch *boundedChannel[T]) blocked(op string) {
	if ch.config.OnBlock != nil {
		ch.config.OnBlock(op)
	}
	if m := ch.config.Metrics; m != nil {
		m.ChannelBlocked.WithLabelValues(ch.config.Name, op).Inc()
	}
}
