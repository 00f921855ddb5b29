package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/vnykmshr/flowcore/internal/logger"
	"github.com/vnykmshr/flowcore/pkg/common/validation"
	"github.com/vnykmshr/flowcore/pkg/metrics"
	"github.com/vnykmshr/flowcore/pkg/resourcepool"
	"github.com/vnykmshr/flowcore/pkg/workerpool"
)

// Processor transforms one item. An error fails that item only.
type Processor[T, R any] func(ctx context.Context, item T) (R, error)

// Result is the outcome of processing one item.
type Result[T, R any] struct {
	// Item is the input as produced
	Item T

	// Value is the processor output when Err is nil
	Value R

	// Err is the processing error, if any
	Err error

	// Consumer is the slot of the consumer that handled the item
	Consumer int

	// Duration is how long processing took
	Duration time.Duration
}

// Config holds pipeline configuration options.
type Config struct {
	// Name identifies the pipeline in logs and metrics.
	Name string

	// Consumers is the fixed number of consumer tasks. Must be positive.
	Consumers int

	// Buffer is the capacity of the channel between producers and
	// consumers. Must be positive.
	Buffer int

	// Admission, when set, bounds how many items are processed at once
	// across every pipeline sharing the pool.
	Admission resourcepool.Pool

	// ProcessingTimeout bounds each item's processing. Zero means no limit.
	ProcessingTimeout time.Duration

	// Logger receives per-item and lifecycle logs.
	Logger *slog.Logger

	// Metrics records produced, processed and failed items when non-nil.
	Metrics *metrics.Registry
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Name:      "pipeline",
		Consumers: 2,
		Buffer:    5,
	}
}

// Pipeline is a producer/consumer dataflow. Producers read Sources and push
// items into a bounded channel; consumers pull, process and report results.
type Pipeline[T, R any] struct {
	config Config
	proc   Processor[T, R]
	logger *slog.Logger
}

// New creates a pipeline that applies proc to every item.
func New[T, R any](config Config, proc Processor[T, R]) (*Pipeline[T, R], error) {
	if err := validation.ValidatePositive("pipeline", "Consumers", config.Consumers); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("pipeline", "Buffer", config.Buffer); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("pipeline", "ProcessingTimeout", config.ProcessingTimeout); err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, validation.ValidateNotNil("pipeline", "Processor", nil)
	}
	if config.Name == "" {
		config.Name = DefaultConfig().Name
	}

	log := config.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Pipeline[T, R]{
		config: config,
		proc:   proc,
		logger: log.With(logger.Component("pipeline"), slog.String("pipeline", config.Name)),
	}, nil
}

// Offload returns a Processor that runs fn on pool, keeping blocking work
// off the consumer goroutines.
func Offload[T, R any](pool workerpool.Pool, fn func(ctx context.Context, item T) (R, error)) Processor[T, R] {
	return func(ctx context.Context, item T) (R, error) {
		return workerpool.Call(ctx, pool, func(ctx context.Context) (R, error) {
			return fn(ctx, item)
		})
	}
}
