// Package fanout runs a function over a slice of inputs on a bounded pool of
// goroutines and collects the results in input order.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one task. Index is the position of the input
// that produced it.
type Result[Out any] struct {
	Index int
	Value Out
	Err   error
}

// Map calls fn for every input with at most limit calls in flight and blocks
// until all of them return. A failing task never cancels its siblings; its
// error is reported in its own Result. Results are in input order.
func Map[In, Out any](ctx context.Context, limit int, inputs []In, fn func(context.Context, In) (Out, error)) []Result[Out] {
	results := make([]Result[Out], len(inputs))
	if len(inputs) == 0 {
		return results
	}
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, in := range inputs {
		g.Go(func() error {
			v, err := fn(ctx, in)
			results[i] = Result[Out]{Index: i, Value: v, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Collect splits results into the successful values, in input order, and
// the failures.
func Collect[Out any](results []Result[Out]) ([]Out, []Result[Out]) {
	values := make([]Out, 0, len(results))
	var failed []Result[Out]
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
			continue
		}
		values = append(values, r.Value)
	}
	return values, failed
}
