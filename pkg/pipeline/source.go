package pipeline

import (
	"context"
	"time"

	"github.com/vnykmshr/flowcore/pkg/task"
)

// Source yields the items a producer pushes into the pipeline. Next returns
// false once the source is exhausted. A Source that also implements
// io.Closer is closed by its producer on every exit path.
type Source[T any] interface {
	Next(ctx context.Context) (T, bool, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[T any] func(ctx context.Context) (T, bool, error)

// Next implements Source.
func (f SourceFunc[T]) Next(ctx context.Context) (T, bool, error) {
	return f(ctx)
}

type sliceSource[T any] struct {
	items []T
	pos   int
}

// FromSlice returns a Source over items.
func FromSlice[T any](items []T) Source[T] {
	return &sliceSource[T]{items: items}
}

func (s *sliceSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if s.pos >= len(s.items) {
		return zero, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// FromChannel returns a Source that reads ch until it is closed.
func FromChannel[T any](ch <-chan T) Source[T] {
	return SourceFunc[T](func(ctx context.Context) (T, bool, error) {
		var zero T
		select {
		case v, ok := <-ch:
			return v, ok, nil
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	})
}

type intervalSource[T any] struct {
	n     int
	every time.Duration
	gen   func(i int) T
	i     int
}

// Interval returns a Source that generates n items with gen, pausing for
// every between consecutive items.
func Interval[T any](n int, every time.Duration, gen func(i int) T) Source[T] {
	return &intervalSource[T]{n: n, every: every, gen: gen}
}

func (s *intervalSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if s.i >= s.n {
		return zero, false, nil
	}
	if s.i > 0 {
		if err := task.Sleep(ctx, s.every); err != nil {
			return zero, false, err
		}
	}
	item := s.gen(s.i)
	s.i++
	return item, true, nil
}
