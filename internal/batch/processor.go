// Package batch runs a unit of work over many items in bounded chunks.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of items scheduled together.
const DefaultChunkSize = 10

// ErrPanic wraps a panic recovered from a unit of work.
var ErrPanic = errors.New("unit of work panicked")

// Progress is reported after every finished item.
type Progress struct {
	Done  int
	Total int
	Index int
	Err   error
}

// Options tune Process.
type Options struct {
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int
	// Concurrency caps in-flight units within a chunk. Defaults to ChunkSize.
	Concurrency int
	// OnProgress is called once per item, never concurrently.
	OnProgress func(Progress)
}

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Concurrency <= 0 || o.Concurrency > o.ChunkSize {
		o.Concurrency = o.ChunkSize
	}
	return o
}

// Result pairs an item's output with its error. Skipped is set for items
// never started because ctx was done.
type Result[R any] struct {
	Value   R
	Err     error
	Skipped bool
}

// Process applies unit to every item and returns results in item order.
// A failing or panicking unit only affects its own result. Once ctx is
// done no further chunk is started; items of unstarted chunks are marked
// Skipped with ctx's error, and the returned error is ctx.Err().
func Process[T, R any](ctx context.Context, items []T, unit func(context.Context, T) (R, error), opts Options) ([]Result[R], error) {
	opts = opts.normalized()
	results := make([]Result[R], len(items))

	var (
		mu   sync.Mutex
		done int
	)
	report := func(i int, err error) {
		if opts.OnProgress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		opts.OnProgress(Progress{Done: done, Total: len(items), Index: i, Err: err})
	}

	for start := 0; start < len(items); start += opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				results[i] = Result[R]{Err: err, Skipped: true}
			}
			return results, err
		}

		end := min(start+opts.ChunkSize, len(items))
		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i := start; i < end; i++ {
			g.Go(func() error {
				v, err := safeRun(ctx, items[i], unit)
				results[i] = Result[R]{Value: v, Err: err}
				report(i, err)
				return nil
			})
		}
		_ = g.Wait()
	}
	return results, nil
}

func safeRun[T, R any](ctx context.Context, item T, unit func(context.Context, T) (R, error)) (v R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return unit(ctx, item)
}
