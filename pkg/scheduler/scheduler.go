package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vnykmshr/flowcore/internal/logger"
	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
	"github.com/vnykmshr/flowcore/pkg/common/validation"
	"github.com/vnykmshr/flowcore/pkg/metrics"
	"github.com/vnykmshr/flowcore/pkg/task"
)

// Job is the work run on every firing of a schedule.
type Job func(ctx context.Context) error

// Entry describes a scheduled job.
type Entry struct {
	ID       string
	Spec     string        // cron expression, empty for interval and one-shot jobs
	Interval time.Duration // zero for cron and one-shot jobs
	Next     time.Time
	Prev     time.Time
	Runs     int64
	Created  time.Time
}

// Config holds scheduler configuration.
type Config struct {
	// Scope owns the scheduler loop and every job run. Cancelling it stops
	// the scheduler. A nil scope gets a fresh background scope.
	Scope *task.Scope

	Location     *time.Location // for cron expressions, default time.Local
	TickInterval time.Duration  // how often due jobs are checked, default 50ms
	MaxJobs      int            // default 10000
	Logger       *slog.Logger
	Metrics      *metrics.Registry
}

type job struct {
	id       string
	fn       Job
	spec     string
	schedule cron.Schedule
	interval time.Duration
	next     time.Time
	prev     time.Time
	runs     int64
	running  bool
	created  time.Time
}

// Scheduler fires jobs at fixed times, fixed intervals or on cron
// expressions. Each firing runs as a task in the scheduler's scope, so
// cancelling the scope cancels running jobs too. A job whose previous run
// is still going is skipped rather than overlapped.
type Scheduler struct {
	scope        *task.Scope
	location     *time.Location
	tickInterval time.Duration
	maxJobs      int
	parser       cron.Parser
	logger       *slog.Logger
	metrics      *metrics.Registry

	mu       sync.Mutex
	jobs     map[string]*job
	loop     task.Task
	inFlight sync.WaitGroup
	stopped  chan struct{}
}

// New creates a scheduler. It does not fire anything until Start.
func New(cfg Config) (*Scheduler, error) {
	if err := validation.ValidateNonNegativeDuration("scheduler", "TickInterval", cfg.TickInterval); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("scheduler", "MaxJobs", cfg.MaxJobs); err != nil {
		return nil, err
	}

	s := &Scheduler{
		scope:        cfg.Scope,
		location:     cfg.Location,
		tickInterval: cfg.TickInterval,
		maxJobs:      cfg.MaxJobs,
		parser:       cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		jobs:         make(map[string]*job),
	}
	if s.scope == nil {
		s.scope = task.NewScope(context.Background(), task.WithName("scheduler"))
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.tickInterval == 0 {
		s.tickInterval = 50 * time.Millisecond
	}
	if s.maxJobs == 0 {
		s.maxJobs = 10000
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	s.logger = s.logger.With(logger.Component("scheduler"))
	return s, nil
}

// Schedule runs fn once at runAt.
func (s *Scheduler) Schedule(id string, runAt time.Time, fn Job) error {
	if runAt.IsZero() {
		return fmt.Errorf("job %q: run time cannot be zero", id)
	}
	return s.add(&job{id: id, fn: fn, next: runAt})
}

// ScheduleAfter runs fn once after delay.
func (s *Scheduler) ScheduleAfter(id string, delay time.Duration, fn Job) error {
	return s.Schedule(id, time.Now().Add(delay), fn)
}

// ScheduleRepeating runs fn every interval, first after one interval.
func (s *Scheduler) ScheduleRepeating(id string, interval time.Duration, fn Job) error {
	if err := validation.ValidatePositiveDuration("scheduler", "interval", interval); err != nil {
		return err
	}
	return s.add(&job{id: id, fn: fn, interval: interval, next: time.Now().Add(interval)})
}

// ScheduleCron runs fn on a cron expression. Five fields, an optional
// leading seconds field and descriptors such as "@every 30s" or "@hourly"
// are accepted.
func (s *Scheduler) ScheduleCron(id, spec string, fn Job) error {
	if spec == "" {
		return fmt.Errorf("job %q: cron expression cannot be empty", id)
	}
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("job %q: invalid cron expression %q: %w", id, spec, err)
	}
	return s.add(&job{
		id:       id,
		fn:       fn,
		spec:     spec,
		schedule: schedule,
		next:     schedule.Next(time.Now().In(s.location)),
	})
}

func (s *Scheduler) add(j *job) error {
	if j.id == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if len(j.id) > 255 {
		return fmt.Errorf("job ID too long (max 255 characters)")
	}
	if j.fn == nil {
		return fmt.Errorf("job %q: func cannot be nil", j.id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.id]; exists {
		return fmt.Errorf("job with ID %q already exists, cancel it first", j.id)
	}
	if len(s.jobs) >= s.maxJobs {
		return fmt.Errorf("cannot schedule job: maximum number of jobs (%d) reached", s.maxJobs)
	}

	j.created = time.Now()
	s.jobs[j.id] = j
	s.logger.Debug("job scheduled", slog.String("job", j.id), slog.Time("next", j.next))
	return nil
}

// Cancel removes a job. A run already in progress is not interrupted.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		delete(s.jobs, id)
		return true
	}
	return false
}

// List returns the scheduled jobs ordered by next run time.
func (s *Scheduler) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		entries = append(entries, Entry{
			ID:       j.id,
			Spec:     j.spec,
			Interval: j.interval,
			Next:     j.next,
			Prev:     j.prev,
			Runs:     j.runs,
			Created:  j.created,
		})
	}

	sort.Slice(entries, func(i, k int) bool {
		return entries[i].Next.Before(entries[k].Next)
	})
	return entries
}

// Start launches the scheduler loop as a task in the scope.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop != nil {
		return fmt.Errorf("scheduler already started")
	}
	if err := s.scope.Context().Err(); err != nil {
		return fmt.Errorf("scheduler scope is done: %w", gferrors.ErrClosed)
	}

	s.stopped = make(chan struct{})
	s.loop = s.scope.Go("scheduler", s.run)
	return nil
}

// Stop ends the loop and returns a channel closed once in-flight runs have
// settled. Running jobs are not cancelled; cancel the scope for that.
func (s *Scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	loop, stopped := s.loop, s.stopped
	s.mu.Unlock()

	if loop == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	loop.Cancel()
	s.scope.Discard(loop)
	return stopped
}

func (s *Scheduler) run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer func() {
		ticker.Stop()
		s.inFlight.Wait()
		close(s.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.fire(now)
		}
	}
}

// fire starts every due job and moves its next run time forward.
func (s *Scheduler) fire(now time.Time) {
	s.mu.Lock()
	var due []*job
	for id, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}
		switch {
		case j.interval > 0:
			j.next = now.Add(j.interval)
		case j.schedule != nil:
			j.next = j.schedule.Next(now.In(s.location))
		default:
			delete(s.jobs, id)
		}

		if j.running {
			s.logger.Debug("job still running, skipped", slog.String("job", j.id))
			s.record(j.id, "skipped")
			continue
		}
		j.running = true
		j.prev = now
		j.runs++
		due = append(due, j)
	}
	s.mu.Unlock()

	for _, j := range due {
		s.launch(j)
	}
}

func (s *Scheduler) launch(j *job) {
	s.inFlight.Add(1)
	t := s.scope.Go(j.id, j.fn)

	go func() {
		defer s.inFlight.Done()
		<-t.Done()
		s.scope.Discard(t)

		s.mu.Lock()
		j.running = false
		s.mu.Unlock()

		if t.Kind() == task.Failed {
			s.logger.Warn("job failed", slog.String("job", j.id), logger.Error(t.Err()))
		}
		s.record(j.id, t.Kind().String())
	}()
}

func (s *Scheduler) record(id, outcome string) {
	if s.metrics != nil {
		s.metrics.ScheduledRuns.WithLabelValues(id, outcome).Inc()
	}
}
