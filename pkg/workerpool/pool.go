package workerpool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/flowcore/internal/logger"
	"github.com/vnykmshr/flowcore/pkg/common/validation"
)

// Task represents a unit of blocking work executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result describes one finished (or skipped) task.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is any error that occurred during task execution
	Error error

	// Skipped is true when the submitter's context ended before a worker
	// picked the task up, so it never ran.
	Skipped bool

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Pool is a fixed set of workers draining a FIFO queue of blocking tasks.
type Pool interface {
	// Submit queues a task, suspending while the queue is full.
	// The context governs both queuing and execution: a task whose context
	// has ended by the time a worker reaches it is skipped.
	Submit(ctx context.Context, task Task) error

	// Shutdown stops accepting tasks, lets queued and in-flight tasks finish
	// and returns a channel that closes once every worker has exited.
	Shutdown() <-chan struct{}

	// ShutdownWithTimeout is like Shutdown, but cancels the contexts of
	// remaining tasks once timeout elapses. It still waits for them to return.
	ShutdownWithTimeout(timeout time.Duration) <-chan struct{}

	// Close shuts the pool down and waits for it to finish.
	Close() error

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks submitted to the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the number of tasks that can wait for a worker.
	// Zero hands each task directly to an idle worker.
	QueueSize int

	// TaskTimeout bounds individual task execution. Zero means no timeout.
	TaskTimeout time.Duration

	// Name identifies the pool in logs.
	Name string

	// Logger receives worker lifecycle and panic reports.
	Logger *slog.Logger

	// PanicHandler is called when a task panics. The panic is always
	// recovered and reported as the task's error.
	PanicHandler func(task Task, recovered interface{})

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, task Task)

	// OnTaskComplete is called after a task completes, fails or is skipped.
	OnTaskComplete func(workerID int, result Result)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		WorkerCount: 2,
		QueueSize:   64,
		Name:        "default",
	}
}

// job is a queued task together with the context of its submitter.
type job struct {
	task Task
	ctx  context.Context
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config
	logger *slog.Logger

	// Core pool state
	taskQueue    chan job
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// base is cancelled when a shutdown deadline expires
	base       context.Context
	cancelBase context.CancelCauseFunc

	// mu orders submissions against shutdown: no task is queued after
	// the workers have been told to drain.
	mu         sync.RWMutex
	isShutdown bool

	activeWorkers  atomic.Int32
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64

	workerWg sync.WaitGroup
}

// worker represents a single worker in the pool.
type worker struct {
	id   int
	pool *workerPool
}

// New creates a new worker pool with the specified number of workers and queue size.
func New(workerCount, queueSize int) (Pool, error) {
	config := DefaultConfig()
	config.WorkerCount = workerCount
	config.QueueSize = queueSize
	return NewWithConfig(config)
}

// MustNew is like New but panics on invalid arguments.
func MustNew(workerCount, queueSize int) Pool {
	pool, err := New(workerCount, queueSize)
	if err != nil {
		panic(err)
	}
	return pool
}

// NewWithConfig creates a new worker pool with the specified configuration.
func NewWithConfig(config Config) (Pool, error) {
	if err := validation.ValidatePositive("workerpool", "WorkerCount", config.WorkerCount); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("workerpool", "QueueSize", config.QueueSize); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("workerpool", "TaskTimeout", config.TaskTimeout); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = DefaultConfig().Name
	}

	log := config.Logger
	if log == nil {
		log = logger.Discard()
	}

	base, cancel := context.WithCancelCause(context.Background())
	pool := &workerPool{
		config:     config,
		logger:     log.With(logger.Component("workerpool"), slog.String("pool", config.Name)),
		taskQueue:  make(chan job, config.QueueSize),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
		base:       base,
		cancelBase: cancel,
	}

	for i := 0; i < config.WorkerCount; i++ {
		w := &worker{id: i, pool: pool}
		pool.workerWg.Add(1)
		go w.run()
	}

	return pool, nil
}
