package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
	"github.com/vnykmshr/flowcore/pkg/metrics"
	"github.com/vnykmshr/flowcore/pkg/task"
)

func newScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 5 * time.Millisecond
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { <-s.Stop() })
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{TickInterval: -time.Second})
	assert.ErrorIs(t, err, gferrors.ErrInvalidConfiguration)

	_, err = New(Config{MaxJobs: -1})
	assert.ErrorIs(t, err, gferrors.ErrInvalidConfiguration)
}

func TestScheduleValidation(t *testing.T) {
	s := newScheduler(t, Config{MaxJobs: 1})
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.ScheduleRepeating("", time.Second, noop))
	assert.Error(t, s.ScheduleRepeating("x", time.Second, nil))
	assert.ErrorIs(t, s.ScheduleRepeating("x", 0, noop), gferrors.ErrInvalidConfiguration)
	assert.Error(t, s.Schedule("x", time.Time{}, noop))
	assert.Error(t, s.ScheduleCron("x", "", noop))
	assert.Error(t, s.ScheduleCron("x", "not a cron", noop))

	require.NoError(t, s.ScheduleRepeating("x", time.Second, noop))
	assert.Error(t, s.ScheduleRepeating("x", time.Second, noop), "duplicate id")
	assert.Error(t, s.ScheduleRepeating("y", time.Second, noop), "max jobs")
}

func TestRepeatingJobRuns(t *testing.T) {
	s := newScheduler(t, Config{})
	var runs atomic.Int32
	require.NoError(t, s.ScheduleRepeating("tick", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Error(t, s.Start(), "second start")
}

func TestOneShotJobRunsOnce(t *testing.T) {
	s := newScheduler(t, Config{})
	var runs atomic.Int32
	require.NoError(t, s.ScheduleAfter("once", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.Empty(t, s.List())
}

func TestCronJobRuns(t *testing.T) {
	s := newScheduler(t, Config{})
	var runs atomic.Int32
	require.NoError(t, s.ScheduleCron("cron", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	entries := s.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "@every 1s", entries[0].Spec)
	assert.WithinDuration(t, time.Now().Add(time.Second), entries[0].Next, 100*time.Millisecond)

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestCancelRemovesJob(t *testing.T) {
	s := newScheduler(t, Config{})
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.ScheduleRepeating("a", time.Hour, noop))
	require.NoError(t, s.ScheduleRepeating("b", time.Minute, noop))

	entries := s.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID, "ordered by next run")

	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))
	assert.Len(t, s.List(), 1)
}

func TestOverlappingRunSkipped(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s := newScheduler(t, Config{Metrics: reg})

	var (
		running atomic.Int32
		peak    atomic.Int32
	)
	release := make(chan struct{})
	require.NoError(t, s.ScheduleRepeating("slow", 5*time.Millisecond, func(ctx context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(reg.ScheduledRuns.WithLabelValues("slow", "skipped")) >= 2
	}, time.Second, time.Millisecond)
	close(release)

	assert.Equal(t, int32(1), peak.Load())
}

func TestScopeCancelStopsJobs(t *testing.T) {
	scope := task.NewScope(context.Background())
	s := newScheduler(t, Config{Scope: scope})

	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	require.NoError(t, s.ScheduleRepeating("long", 5*time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}))
	require.NoError(t, s.Start())
	<-started

	scope.Cancel(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := scope.Wait(ctx)
	require.NoError(t, err)

	assert.True(t, sawCancel.Load())
	assert.Error(t, s.Start(), "scope is done")
}

func TestFailedRunsRecorded(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s := newScheduler(t, Config{Metrics: reg})

	require.NoError(t, s.ScheduleRepeating("flaky", 5*time.Millisecond, func(context.Context) error {
		return errors.New("nope")
	}))
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(reg.ScheduledRuns.WithLabelValues("flaky", task.Failed.String())) >= 2
	}, time.Second, time.Millisecond)
}

func TestStopWaitsForInFlight(t *testing.T) {
	s, err := New(Config{TickInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, s.ScheduleAfter("job", 0, func(context.Context) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}))
	require.NoError(t, s.Start())
	<-started

	<-s.Stop()
	assert.True(t, finished.Load())
}

func TestStopBeforeStart(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)

	select {
	case <-s.Stop():
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on an idle scheduler")
	}
}
