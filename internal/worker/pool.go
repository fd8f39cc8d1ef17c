// Package worker provides a bounded worker pool and line-oriented input reading.
package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Pool runs jobs on a fixed number of goroutines.
type Pool struct {
	size   int
	logger *slog.Logger
}

// Result pairs one input with the value or error its job produced.
type Result[T, R any] struct {
	Input T
	Value R
	Error error
}

// NewPool returns a pool of size workers. A size below 1 is treated as 1.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{size: size, logger: logger}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

type job[T any] struct {
	index int
	input T
}

// Map runs fn over inputs on the pool and returns one Result per input in input order.
// Inputs not yet started when ctx is done get ctx.Err() as their error.
func Map[T, R any](ctx context.Context, p *Pool, inputs []T, fn func(context.Context, T) (R, error)) []Result[T, R] {
	results := make([]Result[T, R], len(inputs))
	for i, in := range inputs {
		results[i].Input = in
	}
	if len(inputs) == 0 {
		return results
	}

	jobs := make(chan job[T])
	var wg sync.WaitGroup
	workers := min(p.size, len(inputs))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				val, err := fn(ctx, j.input)
				results[j.index].Value = val
				results[j.index].Error = err
			}
		}()
	}

	next := 0
feed:
	for ; next < len(inputs); next++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- job[T]{index: next, input: inputs[next]}:
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(inputs); i++ {
		results[i].Error = ctx.Err()
	}
	if next < len(inputs) {
		p.logger.Debug("worker pool stopped early", "completed", next, "total", len(inputs))
	}
	return results
}
