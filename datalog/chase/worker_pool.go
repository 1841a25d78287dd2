package chase

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// WorkerPool runs independent operations on a fixed number of goroutines.
// The breadth-first chase uses it to search the rules of a round in
// parallel; the searches only read the round's facts.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool
// workerCount: number of worker goroutines (0 = use NumCPU)
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// ExecuteParallel executes operation on all inputs using the pool.
// Results are returned in the same order as inputs. Inputs not yet started
// when ctx is cancelled are skipped and ctx.Err() is returned.
//
// Returns: results in input order, or the error of the lowest failing index
func ExecuteParallel[I, O any](
	ctx context.Context,
	p *WorkerPool,
	inputs []I,
	operation func(context.Context, I) (O, error),
) ([]O, error) {
	if len(inputs) == 0 {
		return []O{}, nil
	}

	results := make([]O, len(inputs))
	errs := make([]error, len(inputs))

	jobs := make(chan int, len(inputs))

	workers := p.workerCount
	if workers > len(inputs) {
		workers = len(inputs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					errs[idx] = err
					continue
				}
				results[idx], errs[idx] = operation(ctx, inputs[idx])
			}
		}()
	}

	for i := range inputs {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, &indexedError{index: i, err: err}
		}
	}
	return results, nil
}

// indexedError records which input failed
type indexedError struct {
	index int
	err   error
}

func (e *indexedError) Error() string {
	return fmt.Sprintf("parallel execution failed at index %d: %v", e.index, e.err)
}

func (e *indexedError) Unwrap() error { return e.err }

// WorkerCount returns the number of worker goroutines
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}
