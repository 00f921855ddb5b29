// Package integration exercises several packages together the way the
// example binaries combine them.
package integration

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/flowcore/pkg/pipeline"
	"github.com/vnykmshr/flowcore/pkg/resourcepool"
	"github.com/vnykmshr/flowcore/pkg/shutdown"
	"github.com/vnykmshr/flowcore/pkg/task"
	"github.com/vnykmshr/flowcore/pkg/workerpool"
)

func newWorkers(t *testing.T, c *shutdown.Coordinator, n int) workerpool.Pool {
	t.Helper()
	pool, err := workerpool.New(n, n*2)
	require.NoError(t, err)
	c.Register("workers", pool)
	return pool
}

// TestPipelineRunsToCompletion covers the producer, two consumers, offloaded
// processing and admission control together.
func TestPipelineRunsToCompletion(t *testing.T) {
	c := shutdown.New()
	workers := newWorkers(t, c, 2)
	admission := resourcepool.MustNew(1)

	var (
		active atomic.Int32
		peak   atomic.Int32
	)
	cfg := pipeline.DefaultConfig()
	cfg.Admission = admission
	p, err := pipeline.New(cfg, pipeline.Offload(workers, func(ctx context.Context, s string) (string, error) {
		n := active.Add(1)
		defer active.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(2 * time.Millisecond)
		return strings.ToUpper(s), nil
	}))
	require.NoError(t, err)

	r, err := p.Start(c.Scope(), pipeline.Interval(10, time.Millisecond, func(i int) string {
		return string(rune('a' + i))
	}))
	require.NoError(t, err)

	var got []string
	for res := range r.Results() {
		require.NoError(t, res.Err)
		got = append(got, res.Value)
	}
	summary, err := r.Wait(context.Background())
	require.NoError(t, err)

	assert.Len(t, got, 10)
	assert.ElementsMatch(t, strings.Split("ABCDEFGHIJ", ""), got)
	assert.Equal(t, []int{1, 1}, summary.Markers)
	assert.Equal(t, int32(1), peak.Load(), "admission pool of one serializes processing")

	c.Trigger("done")
	report, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.Equal(t, 1, admission.Available())
}

// TestShutdownInterruptsPipeline triggers shutdown while items are still
// flowing and checks that everything settles without failures.
func TestShutdownInterruptsPipeline(t *testing.T) {
	c := shutdown.New(shutdown.WithDrainTimeout(5 * time.Second))
	workers := newWorkers(t, c, 2)
	admission := resourcepool.MustNew(2)

	cfg := pipeline.DefaultConfig()
	cfg.Admission = admission
	p, err := pipeline.New(cfg, pipeline.Offload(workers, func(ctx context.Context, n int) (int, error) {
		time.Sleep(5 * time.Millisecond)
		return n * n, nil
	}))
	require.NoError(t, err)

	r, err := p.Start(c.Scope(), pipeline.Interval(1000, 2*time.Millisecond, func(i int) int { return i }))
	require.NoError(t, err)

	var processed atomic.Int32
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range r.Results() {
			processed.Add(1)
		}
	}()

	require.Eventually(t, func() bool { return processed.Load() >= 3 }, 2*time.Second, time.Millisecond)
	require.True(t, c.Trigger("test"))

	report, err := c.Wait(context.Background())
	require.NoError(t, err)
	<-drained

	assert.Empty(t, report.Failed())
	assert.Empty(t, report.Abandoned)
	for _, s := range report.Tasks {
		assert.True(t, s.State.Terminal(), s.Name)
	}
	assert.Equal(t, 2, admission.Available())
	assert.Less(t, int(processed.Load()), 1000)
}

// TestGuardedTaskInsideRootScope checks a timed-out task inside a root
// scope gives its permit back before the guard reports.
func TestGuardedTaskInsideRootScope(t *testing.T) {
	c := shutdown.New()
	pool := resourcepool.MustNew(1)

	var cleaned atomic.Bool
	o := task.RunWithTimeout(c.Context(), c.Scope(), "slow", 20*time.Millisecond, func(ctx context.Context) (int, error) {
		return resourcepool.With(ctx, pool, func(ctx context.Context) (int, error) {
			defer cleaned.Store(true)
			if err := task.Sleep(ctx, time.Second); err != nil {
				return 0, err
			}
			return 1, nil
		})
	})

	assert.Equal(t, task.TimedOut, o.Kind)
	assert.True(t, cleaned.Load())
	assert.Equal(t, 1, pool.Available())
	assert.Equal(t, 0, c.Scope().Len())

	c.Trigger("test")
	report, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Tasks)
}
