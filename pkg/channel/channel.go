package channel

import (
	"context"
	"errors"

	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
	"github.com/vnykmshr/flowcore/pkg/common/validation"
	"github.com/vnykmshr/flowcore/pkg/metrics"
)

// ErrClosed is returned by Put on a closed channel and by Get once a closed
// channel has been drained.
var ErrClosed = gferrors.ErrClosed

// ErrNegativeUnfinished is returned by Ack when there is nothing to
// acknowledge.
var ErrNegativeUnfinished = errors.New("ack called more times than items were put")

// Channel is a bounded FIFO queue with blocking, context-aware Put and Get.
type Channel[T any] interface {
	// Put appends value, suspending while the channel is full. It fails with
	// ErrClosed once the channel is closed and with ctx's error if ctx ends
	// first, in which case nothing was queued.
	Put(ctx context.Context, value T) error

	// TryPut appends value without blocking. It reports false if the channel
	// is full.
	TryPut(value T) (bool, error)

	// Get removes the oldest value, suspending while the channel is empty and
	// open. Queued values remain available after Close; Get returns
	// ErrClosed only when the channel is closed and empty.
	Get(ctx context.Context) (T, error)

	// TryGet removes the oldest value without blocking. It reports false if
	// the channel is empty.
	TryGet() (T, bool, error)

	// Close stops further puts. It is safe to call more than once.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool

	// Len returns the number of queued values.
	Len() int

	// Cap returns the fixed capacity.
	Cap() int

	// Ack marks one previously put value as fully processed.
	Ack() error

	// Join suspends until every value put has been acknowledged or ctx ends.
	Join(ctx context.Context) error

	// Stats returns a snapshot of channel counters.
	Stats() Stats
}

// Stats holds counters describing channel traffic.
type Stats struct {
	// Puts is the total number of successful puts.
	Puts int64

	// Gets is the total number of successful gets.
	Gets int64

	// BlockedPuts is the number of puts that had to wait for space.
	BlockedPuts int64

	// BlockedGets is the number of gets that had to wait for a value.
	BlockedGets int64

	// WaitingProducers is the number of puts currently suspended.
	WaitingProducers int

	// WaitingConsumers is the number of gets currently suspended.
	WaitingConsumers int

	// Len is the current number of queued values.
	Len int

	// Unfinished is the number of values put but not yet acknowledged.
	Unfinished int
}

// Config holds configuration for a Channel.
type Config struct {
	// Capacity is the maximum number of queued values. Must be positive.
	Capacity int

	// Name labels the channel in metrics.
	Name string

	// Metrics records depth, throughput and blocking when non-nil.
	Metrics *metrics.Registry

	// OnBlock is called each time a put or get has to wait.
	OnBlock func(op string)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Capacity: 100,
		Name:     "default",
	}
}

// New creates a Channel with the given capacity.
func New[T any](capacity int) (Channel[T], error) {
	config := DefaultConfig()
	config.Capacity = capacity
	return NewWithConfig[T](config)
}

// MustNew is like New but panics on an invalid capacity.
func MustNew[T any](capacity int) Channel[T] {
	ch, err := New[T](capacity)
	if err != nil {
		panic(err)
	}
	return ch
}

// NewWithConfig creates a Channel with the specified configuration.
func NewWithConfig[T any](config Config) (Channel[T], error) {
	if err := validation.ValidatePositive("channel", "Capacity", config.Capacity); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = DefaultConfig().Name
	}

	ch := &boundedChannel[T]{
		config:   config,
		buffer:   make([]T, config.Capacity),
		notEmpty: make(chan struct{}),
		notFull:  make(chan struct{}),
		drained:  make(chan struct{}),
	}
	if config.Metrics != nil {
		config.Metrics.ChannelDepth.WithLabelValues(config.Name).Set(0)
	}
	return ch, nil
}
