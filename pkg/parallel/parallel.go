// Package parallel provides the chunked scheduling engine shared by object
// expansion and pack traversal: it sizes a bounded worker pool from input
// hints, runs a per-worker state constructor, executes a worker closure per
// chunk, and merges per-chunk results through a streaming reducer in chunk
// completion order.
package parallel

import (
	"context"
	"iter"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Reducer merges per-chunk results into one aggregate output. Feed is called
// in chunk completion order, never concurrently. Merging must be associative
// and commutative so that worker count and completion order cannot change
// the final output.
type Reducer[In, Out any] interface {
	// Feed merges one chunk result. Returning an error aborts the run.
	Feed(item In) error
	// Finalize returns the aggregate after the last Feed.
	Finalize() (Out, error)
}

// InParallel distributes chunks over threads workers. Each worker builds its
// own state via newState (invoked on the worker goroutine, keyed by worker
// index) and processes whole chunks through work; results stream into the
// reducer on the calling goroutine. The first error from a worker, the input,
// or the reducer aborts the run and is returned; chunk results already fed
// stay merged but the aggregate is not returned on error.
func InParallel[Chunk, State, Result, Out any](
	chunks iter.Seq[Chunk],
	threads int,
	newState func(worker int) State,
	work func(chunk Chunk, state State) (Result, error),
	reducer Reducer[Result, Out],
) (Out, error) {
	var zero Out

	if threads < 1 {
		threads = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	in := make(chan Chunk)

	group.Go(func() error {
		defer close(in)

		for chunk := range chunks {
			select {
			case in <- chunk:
			case <-ctx.Done():
				return nil
			}
		}

		return nil
	})

	results := make(chan Result)

	var workers sync.WaitGroup

	for i := range threads {
		workers.Add(1)

		group.Go(func() error {
			defer workers.Done()

			state := newState(i)

			for chunk := range in {
				result, err := work(chunk, state)
				if err != nil {
					return err
				}

				select {
				case results <- result:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			return nil
		})
	}

	go func() {
		workers.Wait()
		close(results)
	}()

	var feedErr error

	for result := range results {
		if feedErr != nil {
			continue
		}

		if err := reducer.Feed(result); err != nil {
			feedErr = err

			cancel()
		}
	}

	if err := group.Wait(); err != nil && feedErr == nil {
		return zero, err
	}

	if feedErr != nil {
		return zero, feedErr
	}

	return reducer.Finalize()
}

// InParallelIf runs InParallel when condition reports the input is large
// enough to benefit, and an equivalent single-worker path on the calling
// goroutine otherwise. Output is identical either way.
func InParallelIf[Chunk, State, Result, Out any](
	condition func() bool,
	chunks iter.Seq[Chunk],
	threads int,
	newState func(worker int) State,
	work func(chunk Chunk, state State) (Result, error),
	reducer Reducer[Result, Out],
) (Out, error) {
	if condition() {
		return InParallel(chunks, threads, newState, work, reducer)
	}

	return serial(chunks, newState, work, reducer)
}

// serial is the single-worker fallback: same state constructor, same worker
// closure, same reducer, no goroutines.
func serial[Chunk, State, Result, Out any](
	chunks iter.Seq[Chunk],
	newState func(worker int) State,
	work func(chunk Chunk, state State) (Result, error),
	reducer Reducer[Result, Out],
) (Out, error) {
	var zero Out

	state := newState(0)

	for chunk := range chunks {
		result, err := work(chunk, state)
		if err != nil {
			return zero, err
		}

		if err := reducer.Feed(result); err != nil {
			return zero, err
		}
	}

	return reducer.Finalize()
}
