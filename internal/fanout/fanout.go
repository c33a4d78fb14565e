// Package fanout runs one function over many items with a ceiling on
// concurrency and per-item failure isolation.
package fanout

import (
	"context"
	"runtime/debug"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultLimit is used when Options.Limit is not positive.
const DefaultLimit = 8

// Options configures a Map call.
type Options struct {
	// Limit caps the number of fn calls in flight.
	Limit int
	// Name labels log lines, typically the stage name.
	Name string
}

// Failure records one item whose call failed.
type Failure[In any] struct {
	Index int
	Item  In
	Err   error
}

// Result is what Map returns. Succeeded holds outputs in input order with
// failed and skipped items removed.
type Result[In, Out any] struct {
	Succeeded []Out
	Failed    []Failure[In]
	// Skipped counts items never started, or abandoned, because ctx was done.
	Skipped int
}

type slotState uint8

const (
	slotSkipped slotState = iota
	slotOK
	slotFailed
)

type slot[Out any] struct {
	state slotState
	out   Out
	err   error
}

// Map calls fn once per item with at most opts.Limit calls in flight and
// waits for every started call to settle. A failing or panicking call only
// affects its own item. Once ctx is done no further calls are started.
// Map itself never fails; callers inspect ctx to tell a drained run from a
// cancelled one.
func Map[In, Out any](ctx context.Context, items []In, opts Options, fn func(ctx context.Context, item In) (Out, error)) Result[In, Out] {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	slots := make([]slot[Out], len(items))

	var g errgroup.Group
	g.SetLimit(limit)

	for i := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// The slot may have waited for capacity while ctx was cancelled.
			if ctx.Err() != nil {
				return nil
			}
			out, err := call(ctx, items[i], fn)
			switch {
			case err == nil:
				slots[i] = slot[Out]{state: slotOK, out: out}
			case ctx.Err() != nil:
				// Abandoned by cancellation, not an item failure.
			default:
				slots[i] = slot[Out]{state: slotFailed, err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result[In, Out]{Succeeded: make([]Out, 0, len(items))}
	for i, s := range slots {
		switch s.state {
		case slotOK:
			res.Succeeded = append(res.Succeeded, s.out)
		case slotFailed:
			res.Failed = append(res.Failed, Failure[In]{Index: i, Item: items[i], Err: s.err})
			zap.L().Warn("fanout: item failed",
				zap.String("stage", opts.Name),
				zap.Int("index", i),
				zap.Error(s.err),
			)
		default:
			res.Skipped++
		}
	}

	if res.Skipped > 0 || len(res.Failed) > 0 {
		zap.L().Info("fanout: finished with losses",
			zap.String("stage", opts.Name),
			zap.Int("items", len(items)),
			zap.Int("succeeded", len(res.Succeeded)),
			zap.Int("failed", len(res.Failed)),
			zap.Int("skipped", res.Skipped),
		)
	}
	return res
}

func call[In, Out any](ctx context.Context, item In, fn func(context.Context, In) (Out, error)) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("fanout: item panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = eris.Errorf("fanout: panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
