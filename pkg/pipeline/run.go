package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/flowcore/internal/logger"
	flowctx "github.com/vnykmshr/flowcore/pkg/common/context"
	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
	"github.com/vnykmshr/flowcore/pkg/channel"
	"github.com/vnykmshr/flowcore/pkg/task"
)

// Summary describes a finished run.
type Summary struct {
	Produced  int64
	Processed int64
	Failed    int64

	// Markers holds the number of end-of-stream markers each consumer
	// observed, indexed by consumer slot.
	Markers []int
}

// Run is one execution of a pipeline over a set of sources.
type Run[T, R any] struct {
	p       *Pipeline[T, R]
	scope   *task.Scope
	ch      channel.Channel[channel.Item[T]]
	results chan Result[T, R]

	producers []task.Task
	consumers []task.Task

	remaining atomic.Int32
	produced  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	mu      sync.Mutex
	markers []int
}

// Start launches one producer task per source and Config.Consumers consumer
// tasks in scope, and returns immediately. A nil scope gets a fresh one.
//
// When the last producer finishes it pushes one end-of-stream marker per
// consumer, so every consumer drains the items queued ahead of its marker and
// then exits. Results must be drained by the caller.
func (p *Pipeline[T, R]) Start(scope *task.Scope, sources ...Source[T]) (*Run[T, R], error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("pipeline %s: at least one source is required", p.config.Name)
	}
	if scope == nil {
		scope = task.NewScope(context.Background(), task.WithName(p.config.Name), task.WithLogger(p.logger))
	}

	ch, err := channel.NewWithConfig[channel.Item[T]](channel.Config{
		Capacity: p.config.Buffer,
		Name:     p.config.Name,
		Metrics:  p.config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	r := &Run[T, R]{
		p:       p,
		scope:   scope,
		ch:      ch,
		results: make(chan Result[T, R], p.config.Buffer),
		markers: make([]int, p.config.Consumers),
	}
	r.remaining.Store(int32(len(sources)))

	p.logger.Info("pipeline starting",
		slog.Int("producers", len(sources)),
		slog.Int("consumers", p.config.Consumers),
		slog.Int("buffer", p.config.Buffer))

	for i := 0; i < p.config.Consumers; i++ {
		slot := i
		r.consumers = append(r.consumers, scope.Go(fmt.Sprintf("%s-consumer-%d", p.config.Name, slot),
			func(ctx context.Context) error {
				return r.consume(ctx, slot)
			}))
	}
	for i, src := range sources {
		src := src
		r.producers = append(r.producers, scope.Go(fmt.Sprintf("%s-producer-%d", p.config.Name, i),
			func(ctx context.Context) error {
				return r.produce(ctx, src)
			}))
	}

	go r.closeResults()
	return r, nil
}

// Results returns the per-item results. It is closed once every consumer
// has exited.
func (r *Run[T, R]) Results() <-chan Result[T, R] {
	return r.results
}

// Tasks returns the producer and consumer tasks of the run.
func (r *Run[T, R]) Tasks() []task.Task {
	out := make([]task.Task, 0, len(r.producers)+len(r.consumers))
	out = append(out, r.producers...)
	return append(out, r.consumers...)
}

// Markers returns how many end-of-stream markers each consumer observed.
func (r *Run[T, R]) Markers() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.markers))
	copy(out, r.markers)
	return out
}

// Wait suspends until every producer and consumer has finished and returns
// the run summary. The error joins the failures and cancellations of the
// run's tasks; per-item processing failures are reported through Results
// only. Callers must keep draining Results while waiting.
func (r *Run[T, R]) Wait(ctx context.Context) (Summary, error) {
	var errs []error
	for _, t := range r.Tasks() {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return r.summary(), ctx.Err()
		}
		r.scope.Discard(t)
		if err := t.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}

	summary := r.summary()
	r.p.logger.Info("pipeline finished",
		slog.Int64("produced", summary.Produced),
		slog.Int64("processed", summary.Processed),
		slog.Int64("failed", summary.Failed))
	return summary, errors.Join(errs...)
}

func (r *Run[T, R]) summary() Summary {
	return Summary{
		Produced:  r.produced.Load(),
		Processed: r.processed.Load(),
		Failed:    r.failed.Load(),
		Markers:   r.Markers(),
	}
}

func (r *Run[T, R]) closeResults() {
	for _, t := range r.consumers {
		<-t.Done()
	}
	close(r.results)
}

// produce pushes every item of src, then hands off to finishProducer.
func (r *Run[T, R]) produce(ctx context.Context, src Source[T]) (err error) {
	if c, ok := src.(io.Closer); ok {
		defer func() {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close source: %w", cerr)
			}
		}()
	}
	defer func() {
		if merr := r.finishProducer(ctx); merr != nil && err == nil {
			err = merr
		}
	}()

	for {
		item, ok, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := r.ch.Put(ctx, channel.Payload(item)); err != nil {
			return err
		}
		r.produced.Add(1)
		r.count("produced")
		r.p.logger.Debug("item produced", slog.Any("item", item))
	}
}

// finishProducer pushes one marker per consumer once the last producer is done.
// A producer cancelled on its own hands the markers off on the scope context;
// once the scope itself is cancelled the consumers are cancelled with it.
func (r *Run[T, R]) finishProducer(ctx context.Context) error {
	if r.remaining.Add(-1) != 0 {
		return nil
	}
	if ctx.Err() != nil {
		ctx = r.scope.Context()
		if ctx.Err() != nil {
			return nil
		}
	}
	for i := 0; i < r.p.config.Consumers; i++ {
		if err := r.ch.Put(ctx, channel.EndOfStream[T]()); err != nil {
			return fmt.Errorf("push end-of-stream marker: %w", err)
		}
	}
	return nil
}

// consume pulls until it sees its marker. A cancelled get or a cancelled
// processing step returns the cancellation without acknowledging the item.
func (r *Run[T, R]) consume(ctx context.Context, slot int) error {
	for {
		item, err := r.ch.Get(ctx)
		if err != nil {
			return err
		}

		if item.IsEndOfStream() {
			r.mu.Lock()
			r.markers[slot]++
			r.mu.Unlock()
			r.p.logger.Debug("consumer finished", slog.Int("consumer", slot))
			return r.ch.Ack()
		}

		res := r.process(ctx, slot, item.Value())
		if flowctx.Interrupted(ctx, res.Err) {
			return res.Err
		}

		if res.Err != nil {
			r.failed.Add(1)
			r.count("failed")
			r.p.logger.Warn("item failed", slog.Int("consumer", slot), logger.Error(res.Err))
		} else {
			r.processed.Add(1)
			r.count("processed")
		}

		select {
		case r.results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := r.ch.Ack(); err != nil {
			return err
		}
	}
}

// process runs the processor under admission and timeout, isolating panics.
func (r *Run[T, R]) process(ctx context.Context, slot int, item T) (res Result[T, R]) {
	res = Result[T, R]{Item: item, Consumer: slot}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			res.Err = fmt.Errorf("processor panicked: %v\nStack trace:\n%s", rec, debug.Stack())
		}
		res.Duration = time.Since(start)
	}()

	run := func(ctx context.Context) error {
		if r.p.config.ProcessingTimeout <= 0 {
			v, err := r.p.proc(ctx, item)
			res.Value = v
			return err
		}

		tctx, cancel := context.WithTimeout(ctx, r.p.config.ProcessingTimeout)
		defer cancel()
		v, err := r.p.proc(tctx, item)
		res.Value = v
		if err != nil && ctx.Err() == nil && flowctx.IsTimedOut(tctx) {
			return fmt.Errorf("%w: %w", gferrors.ErrTimeout, err)
		}
		return err
	}

	if r.p.config.Admission != nil {
		res.Err = r.p.config.Admission.Do(ctx, run)
	} else {
		res.Err = run(ctx)
	}
	return res
}

func (r *Run[T, R]) count(status string) {
	if m := r.p.config.Metrics; m != nil {
		m.PipelineItems.WithLabelValues(r.p.config.Name, status).Inc()
	}
}
