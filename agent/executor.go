package agent

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxParallelTools caps how many parallel-safe calls run at once.
const DefaultMaxParallelTools = 5

// RunToolFunc executes one classified call and returns its result.
type RunToolFunc func(ctx context.Context, call IndexedCall) ToolResult

// Executor runs a classified tool-call batch: the parallel-safe group in
// capped concurrent batches, then the sequential group one at a time. The
// result slice is pre-sized to the batch and written by original index, so
// output ordering is index-stable regardless of completion order.
type Executor struct {
	maxParallel int64
}

// NewExecutor creates an executor with the given parallelism cap.
func NewExecutor(maxParallel int) *Executor {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelTools
	}
	return &Executor{maxParallel: int64(maxParallel)}
}

// Execute runs the partition and returns one result per original call.
// halt is consulted before each sequential call; once it reports true no
// further sequential calls launch, but in-flight parallel calls finish
// (aborting them mid-execution risks partial tool side effects). Skipped
// calls receive a synthetic failure result.
func (e *Executor) Execute(ctx context.Context, total int, p Partition, run RunToolFunc, halt func() bool) []ToolResult {
	results := make([]ToolResult, total)
	if halt == nil {
		halt = func() bool { return false }
	}

	// Parallel-safe group: capped concurrency, full barrier before the
	// sequential group starts.
	if len(p.Parallel) > 0 {
		sem := semaphore.NewWeighted(e.maxParallel)
		var wg sync.WaitGroup
		for _, ic := range p.Parallel {
			wg.Add(1)
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Done()
				results[ic.Index] = ToolResult{
					ToolCallID: ic.Call.ID,
					Success:    false,
					Error:      "cancelled before execution: " + err.Error(),
				}
				continue
			}
			go func(ic IndexedCall) {
				defer wg.Done()
				defer sem.Release(1)
				results[ic.Index] = run(ctx, ic)
			}(ic)
		}
		wg.Wait()
	}

	// Sequential group, strictly one at a time.
	for _, ic := range p.Sequential {
		if halt() || ctx.Err() != nil {
			results[ic.Index] = ToolResult{
				ToolCallID: ic.Call.ID,
				Success:    false,
				Error:      "not executed: run halted",
			}
			continue
		}
		results[ic.Index] = run(ctx, ic)
	}

	return results
}
