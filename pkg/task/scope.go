package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vnykmshr/flowcore/internal/logger"
	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
	"github.com/vnykmshr/flowcore/pkg/metrics"
)

// Scope owns a set of tasks and their shared cancellation. Every task created
// in a scope inherits its context, so cancelling the scope cancels them all.
// A task is released from its scope when it is awaited, reported by Wait or
// discarded.
type Scope struct {
	name    string
	ctx     context.Context
	cancel  context.CancelCauseFunc
	logger  *slog.Logger
	metrics *metrics.Registry

	mu    sync.Mutex
	tasks []Task
}

// Settled is the report entry for a task collected by Scope.Wait.
type Settled struct {
	ID    string
	Name  string
	State State
	Kind  Kind
	Err   error
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithName sets the scope name used in logs and metric labels.
func WithName(name string) ScopeOption {
	return func(s *Scope) {
		s.name = name
	}
}

// WithLogger sets the scope logger. Task starts and outcomes are logged at
// debug level, failures at warn.
func WithLogger(l *slog.Logger) ScopeOption {
	return func(s *Scope) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records task counts, outcomes and durations in reg.
func WithMetrics(reg *metrics.Registry) ScopeOption {
	return func(s *Scope) {
		s.metrics = reg
	}
}

// NewScope creates a scope whose tasks inherit ctx.
func NewScope(ctx context.Context, opts ...ScopeOption) *Scope {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Scope{
		name:   "default",
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancelCause(ctx)
	s.logger = s.logger.With(logger.Component("scope"), slog.String("scope", s.name))
	return s
}

// Go spawns a task that only reports an error.
func (s *Scope) Go(name string, fn func(ctx context.Context) error) Task {
	return Spawn(s, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Context returns the context shared by the scope's tasks.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Name returns the scope name.
func (s *Scope) Name() string {
	return s.name
}

// Cancel cancels every task in the scope with cause. A nil cause means
// ErrCanceled. Cancel does not wait; use Wait for that.
func (s *Scope) Cancel(cause error) {
	if cause == nil {
		cause = gferrors.ErrCanceled
	}
	s.cancel(cause)
	for _, t := range s.Tasks() {
		t.Cancel()
	}
}

// Wait blocks until every task owned by the scope is terminal, including
// tasks spawned while waiting, and returns one entry per task. Failures are
// reported, never returned; the error is non-nil only if ctx ends the wait.
//
// A task created with New and never started stays pending until it is
// started, cancelled or discarded. Once the scope is cancelled, Wait settles
// such tasks as Cancelled itself.
func (s *Scope) Wait(ctx context.Context) ([]Settled, error) {
	var report []Settled
	for {
		pending := s.Tasks()
		if len(pending) == 0 {
			return report, nil
		}

		for _, t := range pending {
			if s.ctx.Err() != nil && t.State() == StateCreated {
				t.Cancel()
			}
			select {
			case <-t.Done():
			case <-ctx.Done():
				return report, ctx.Err()
			}
			report = append(report, Settled{
				ID:    t.ID(),
				Name:  t.Name(),
				State: t.State(),
				Kind:  t.Kind(),
				Err:   t.Err(),
			})
			s.Discard(t)
		}
	}
}

// Tasks returns a snapshot of the tasks owned by the scope.
func (s *Scope) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Len returns the number of tasks owned by the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Discard releases t from the scope without waiting for it. The task keeps
// running and is still cancelled with the scope.
func (s *Scope) Discard(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, owned := range s.tasks {
		if owned.ID() == t.ID() {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

func (s *Scope) add(t Task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
}

func (s *Scope) started(t Task) {
	s.logger.Debug("task started", slog.String("task", t.Name()), logger.ID("task_id", t.ID()))
	if s.metrics != nil {
		s.metrics.TasksStarted.WithLabelValues(s.name).Inc()
	}
}

func (s *Scope) settled(t Task, kind Kind, err error, d time.Duration) {
	attrs := []any{
		slog.String("task", t.Name()),
		logger.ID("task_id", t.ID()),
		slog.String("outcome", kind.String()),
		logger.Duration(d),
	}
	if kind == Failed {
		s.logger.Warn("task failed", append(attrs, logger.Error(err))...)
	} else {
		s.logger.Debug("task settled", attrs...)
	}

	if s.metrics != nil {
		s.metrics.TaskOutcomes.WithLabelValues(s.name, kind.String()).Inc()
		if d > 0 {
			s.metrics.TaskDuration.WithLabelValues(s.name).Observe(d.Seconds())
		}
	}
}
