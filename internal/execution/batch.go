package execution

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

const defaultBatchConcurrency = 10

// BatchResult aggregates the outcome of a batch operation. A single
// order's failure never aborts the rest of the batch.
type BatchResult struct {
	Total      int
	Successful int
	Failed     int
	Errors     []error
	Results    []Result
	Elapsed    time.Duration
}

// BatchExecutor fans requests out over the engine with a bounded number
// of in-flight exchange calls.
type BatchExecutor struct {
	engine      *Engine
	concurrency int
}

// NewBatchExecutor creates a batch executor over the given engine.
func NewBatchExecutor(engine *Engine, concurrency int) *BatchExecutor {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &BatchExecutor{engine: engine, concurrency: concurrency}
}

// ExecuteAll places every request concurrently and aggregates results
// in request order.
func (b *BatchExecutor) ExecuteAll(ctx context.Context, reqs []Request) BatchResult {
	start := time.Now()
	results := make([]Result, len(reqs))

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{Err: panicError(r)}
					logs.Errorf("batch order %d panicked: %v", i, r)
				}
			}()
			results[i] = b.engine.Execute(ctx, req)
		}(i, req)
	}
	wg.Wait()

	return b.aggregate(results, time.Since(start))
}

// CancelAll cancels the given orders concurrently.
func (b *BatchExecutor) CancelAll(ctx context.Context, orderIDs []string, reason string) BatchResult {
	start := time.Now()
	results := make([]Result, len(orderIDs))

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup
	for i, id := range orderIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := b.engine.Cancel(ctx, id, reason); err != nil {
				results[i] = Result{OrderID: id, Err: err}
				return
			}
			results[i] = Result{OrderID: id, Success: true}
		}(i, id)
	}
	wg.Wait()

	return b.aggregate(results, time.Since(start))
}

func (b *BatchExecutor) aggregate(results []Result, elapsed time.Duration) BatchResult {
	out := BatchResult{
		Total:   len(results),
		Results: results,
		Elapsed: elapsed,
	}
	for _, r := range results {
		if r.Success {
			out.Successful++
			continue
		}
		out.Failed++
		if r.Err != nil {
			out.Errors = append(out.Errors, r.Err)
		}
	}
	logs.Infof("batch done: %d total, %d ok, %d failed in %s", out.Total, out.Successful, out.Failed, elapsed)
	return out
}

type recoveredPanic struct {
	value any
}

func (p recoveredPanic) Error() string {
	return "panic during batch execution"
}

func panicError(v any) error {
	return recoveredPanic{value: v}
}
