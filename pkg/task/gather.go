package task

import (
	"context"
	"time"

	flowctx "github.com/vnykmshr/flowcore/pkg/common/context"
)

// Gather waits for every handle and returns their outcomes in argument
// order. A failing task does not stop the others from being collected.
// If ctx ends first the outcomes gathered so far are returned with ctx's
// error; pending slots hold zero outcomes.
func Gather[T any](ctx context.Context, handles ...*Handle[T]) ([]Outcome[T], error) {
	out := make([]Outcome[T], len(handles))
	for i, h := range handles {
		h.Start()
		select {
		case <-h.Done():
		case <-ctx.Done():
			return out, ctx.Err()
		}
		out[i], _ = h.Outcome()
		if h.scope != nil {
			h.scope.Discard(h)
		}
	}
	return out, nil
}

// Sleep is a suspension point: it waits for d or until ctx is done and
// returns ctx's error when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	return flowctx.Sleep(ctx, d)
}
