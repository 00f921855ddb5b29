package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vnykmshr/flowcore/internal/logger"
	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
	"github.com/vnykmshr/flowcore/pkg/metrics"
	"github.com/vnykmshr/flowcore/pkg/task"
)

// State is the lifecycle position of a Coordinator. It only moves forward.
type State int32

const (
	Armed State = iota
	Triggered
	Draining
	Complete
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Triggered:
		return "triggered"
	case Draining:
		return "draining"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ReleaseFunc releases one shared resource. The context carries the drain
// deadline, if any.
type ReleaseFunc func(ctx context.Context) error

type resource struct {
	name    string
	release ReleaseFunc
}

// Coordinator owns the root tasks and shared resources of a process and
// tears them down exactly once: cancel every root task, wait for all of them
// to settle, then release resources in reverse registration order.
type Coordinator struct {
	name         string
	drainTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Registry

	scope *task.Scope
	state atomic.Int32

	mu        sync.Mutex
	resources []resource
	released  bool

	triggerOnce sync.Once
	triggered   chan struct{}
	reason      string

	done   chan struct{}
	report Report

	stopSignals func()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithName sets the coordinator name used in logs and metric labels.
func WithName(name string) Option {
	return func(c *Coordinator) {
		c.name = name
	}
}

// WithDrainTimeout bounds how long the coordinator waits for root tasks to
// settle, and then for resources to release. Zero waits forever.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.drainTimeout = d
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records lifecycle state and root task outcomes in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Coordinator) {
		c.metrics = reg
	}
}

// New creates an armed coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		name:      "main",
		logger:    logger.Discard(),
		triggered: make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("shutdown"), slog.String("coordinator", c.name))

	scopeOpts := []task.ScopeOption{task.WithName(c.name), task.WithLogger(c.logger)}
	if c.metrics != nil {
		scopeOpts = append(scopeOpts, task.WithMetrics(c.metrics))
	}
	c.scope = task.NewScope(context.Background(), scopeOpts...)
	c.setState(Armed)
	return c
}

// Scope returns the root scope. Tasks created in it are cancelled and
// drained on shutdown.
func (c *Coordinator) Scope() *task.Scope {
	return c.scope
}

// Context returns the root context. It is cancelled when shutdown triggers.
func (c *Coordinator) Context() context.Context {
	return c.scope.Context()
}

// Go starts a root task. A task started after the trigger begins cancelled.
func (c *Coordinator) Go(name string, fn func(ctx context.Context) error) task.Task {
	return c.scope.Go(name, fn)
}

// Register adds a resource closed during shutdown. Resources are released in
// the reverse order of registration.
func (c *Coordinator) Register(name string, r io.Closer) {
	c.RegisterFunc(name, func(context.Context) error {
		return r.Close()
	})
}

// RegisterFunc adds a release function run during shutdown. A resource
// registered after the release phase has started is released immediately.
func (c *Coordinator) RegisterFunc(name string, fn ReleaseFunc) {
	c.mu.Lock()
	if !c.released {
		c.resources = append(c.resources, resource{name: name, release: fn})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Warn("resource registered after release, releasing now", slog.String("resource", name))
	if err := fn(context.Background()); err != nil {
		c.logger.Warn("release failed", slog.String("resource", name), logger.Error(err))
	}
}

// Notify triggers shutdown when one of sigs arrives. With no signals it
// listens for SIGINT and SIGTERM. Repeated signals are ignored.
func (c *Coordinator) Notify(sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	stop := make(chan struct{})
	var once sync.Once
	c.mu.Lock()
	prev := c.stopSignals
	c.stopSignals = func() {
		if prev != nil {
			prev()
		}
		once.Do(func() {
			signal.Stop(ch)
			close(stop)
		})
	}
	c.mu.Unlock()

	go func() {
		for {
			select {
			case sig := <-ch:
				c.Signal(sig)
			case <-stop:
				return
			}
		}
	}()
}

// Signal triggers shutdown on behalf of an OS signal. It reports whether
// this call started the shutdown.
func (c *Coordinator) Signal(sig os.Signal) bool {
	if !c.Trigger("signal " + sig.String()) {
		c.logger.Debug("duplicate signal ignored", slog.String("signal", sig.String()))
		return false
	}
	return true
}

// Trigger starts the shutdown sequence in the background. Only the first
// call has any effect; it reports whether this call started the shutdown.
func (c *Coordinator) Trigger(reason string) bool {
	started := false
	c.triggerOnce.Do(func() {
		started = true
		c.reason = reason
		c.setState(Triggered)
		close(c.triggered)
		go c.sequence()
	})
	return started
}

// Triggered returns a channel closed once shutdown has been triggered.
func (c *Coordinator) Triggered() <-chan struct{} {
	return c.triggered
}

// Run blocks until ctx ends or shutdown is triggered, then drives the
// shutdown to completion and returns its report.
func (c *Coordinator) Run(ctx context.Context) Report {
	select {
	case <-ctx.Done():
		c.Trigger("context done: " + context.Cause(ctx).Error())
	case <-c.triggered:
	}
	<-c.done
	return c.report
}

// Wait blocks until shutdown is complete or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) (Report, error) {
	select {
	case <-c.done:
		return c.report, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Done returns a channel closed once shutdown is complete. Process exit is
// safe only after that.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) sequence() {
	start := time.Now()
	report := Report{Reason: c.reason}
	c.logger.Info("shutdown triggered", slog.String("reason", c.reason))

	c.scope.Cancel(fmt.Errorf("%w: %s", gferrors.ErrShutdown, c.reason))

	c.setState(Draining)
	report.Tasks, report.Abandoned = c.drain()
	for _, s := range report.Tasks {
		if c.metrics != nil {
			c.metrics.ShutdownTasks.WithLabelValues(c.name, s.Kind.String()).Inc()
		}
	}

	report.Released = c.release()
	report.Duration = time.Since(start)
	c.report = report

	c.mu.Lock()
	stop := c.stopSignals
	c.mu.Unlock()
	if stop != nil {
		stop()
	}

	c.setState(Complete)
	c.logger.Info("shutdown complete",
		slog.Int("tasks", len(report.Tasks)),
		slog.Int("abandoned", len(report.Abandoned)),
		slog.Int("resources", len(report.Released)),
		logger.Duration(report.Duration),
		logger.Error(report.Err()))
	close(c.done)
}

// drain waits for the root tasks to settle. Tasks still running when the
// drain timeout passes are reported by name.
func (c *Coordinator) drain() ([]task.Settled, []string) {
	ctx, cancel := c.deadline()
	defer cancel()

	settled, err := c.scope.Wait(ctx)
	if err == nil {
		return settled, nil
	}

	var abandoned []string
	for _, t := range c.scope.Tasks() {
		abandoned = append(abandoned, t.Name())
	}
	c.logger.Warn("drain timed out", slog.Any("abandoned", abandoned))
	return settled, abandoned
}

// release runs every release function in reverse registration order. A
// failing release does not stop the others.
func (c *Coordinator) release() []Release {
	c.mu.Lock()
	c.released = true
	resources := c.resources
	c.resources = nil
	c.mu.Unlock()

	ctx, cancel := c.deadline()
	defer cancel()

	out := make([]Release, 0, len(resources))
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		err := safeRelease(ctx, r.release)
		if err != nil {
			c.logger.Warn("release failed", slog.String("resource", r.name), logger.Error(err))
		} else {
			c.logger.Debug("released", slog.String("resource", r.name))
		}
		out = append(out, Release{Name: r.name, Err: err})
	}
	return out
}

func safeRelease(ctx context.Context, fn ReleaseFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("release panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (c *Coordinator) deadline() (context.Context, context.CancelFunc) {
	if c.drainTimeout > 0 {
		return context.WithTimeout(context.Background(), c.drainTimeout)
	}
	return context.WithCancel(context.Background())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.ShutdownState.WithLabelValues(c.name).Set(float64(s))
	}
}

// Release is the outcome of releasing one resource.
type Release struct {
	Name string
	Err  error
}

// Report describes a completed shutdown. Failures are collected here rather
// than returned.
type Report struct {
	Reason    string
	Tasks     []task.Settled
	Abandoned []string
	Released  []Release
	Duration  time.Duration
}

// Failed returns the root tasks that ended with a failure. Cancellations
// and timeouts are not failures.
func (r Report) Failed() []task.Settled {
	var out []task.Settled
	for _, s := range r.Tasks {
		if s.Kind == task.Failed {
			out = append(out, s)
		}
	}
	return out
}

// Err joins task failures and release errors, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, s := range r.Failed() {
		errs = append(errs, fmt.Errorf("task %s: %w", s.Name, s.Err))
	}
	for _, rel := range r.Released {
		if rel.Err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", rel.Name, rel.Err))
		}
	}
	if len(r.Abandoned) > 0 {
		errs = append(errs, fmt.Errorf("%w: %d tasks still running", gferrors.ErrTimeout, len(r.Abandoned)))
	}
	return errors.Join(errs...)
}
