package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testRegistry() *ToolRegistry {
	r := NewToolRegistry()
	for _, def := range []ToolDefinition{
		{Name: "read_file", ParallelSafe: true, Category: CategoryReadOnly},
		{Name: "grep", ParallelSafe: true, Category: CategoryReadOnly},
		{Name: "write_file", Category: CategoryWrite},
		{Name: "shell", Category: CategoryOther},
	} {
		r.Register(RegisteredTool{Definition: def, Run: func(_ context.Context, _ json.RawMessage, _ ExecContext) ExecOutcome {
			return ExecOutcome{Success: true}
		}})
	}
	return r
}

func TestClassifyPartitionsByMetadata(t *testing.T) {
	r := testRegistry()
	c := NewClassifier(r.Lookup)

	calls := []ToolCall{
		{ID: "1", Name: "read_file"},
		{ID: "2", Name: "write_file"},
		{ID: "3", Name: "grep"},
		{ID: "4", Name: "no_such_tool"},
	}
	p := c.Classify(calls)

	if len(p.Parallel) != 2 || p.Parallel[0].Index != 0 || p.Parallel[1].Index != 2 {
		t.Errorf("parallel partition wrong: %+v", p.Parallel)
	}
	if len(p.Sequential) != 2 || p.Sequential[0].Index != 1 || p.Sequential[1].Index != 3 {
		t.Errorf("sequential partition wrong (unknown tools must be sequential): %+v", p.Sequential)
	}
}

func TestExecuteOrderStability(t *testing.T) {
	r := testRegistry()
	c := NewClassifier(r.Lookup)
	e := NewExecutor(3)

	const n = 20
	calls := make([]ToolCall, n)
	names := []string{"read_file", "grep", "write_file", "shell"}
	for i := range calls {
		calls[i] = ToolCall{ID: fmt.Sprintf("call-%d", i), Name: names[i%len(names)]}
	}

	run := func(ctx context.Context, ic IndexedCall) ToolResult {
		// Arbitrary per-call latency so completion order is scrambled.
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		return ToolResult{ToolCallID: ic.Call.ID, Success: true}
	}

	results := e.Execute(context.Background(), n, c.Classify(calls), run, nil)

	if len(results) != n {
		t.Fatalf("expected %d results, got %d", n, len(results))
	}
	for i, res := range results {
		if res.ToolCallID != calls[i].ID {
			t.Errorf("result[%d].ToolCallID = %q, want %q", i, res.ToolCallID, calls[i].ID)
		}
	}
}

func TestExecuteRespectsParallelCap(t *testing.T) {
	r := testRegistry()
	c := NewClassifier(r.Lookup)
	e := NewExecutor(2)

	calls := make([]ToolCall, 8)
	for i := range calls {
		calls[i] = ToolCall{ID: fmt.Sprintf("c%d", i), Name: "read_file"}
	}

	var inFlight, peak int64
	var mu sync.Mutex
	run := func(ctx context.Context, ic IndexedCall) ToolResult {
		cur := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return ToolResult{ToolCallID: ic.Call.ID, Success: true}
	}

	e.Execute(context.Background(), len(calls), c.Classify(calls), run, nil)

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("parallel cap exceeded: peak concurrency %d", peak)
	}
}

func TestExecuteSequentialAfterParallelBarrier(t *testing.T) {
	r := testRegistry()
	c := NewClassifier(r.Lookup)
	e := NewExecutor(4)

	calls := []ToolCall{
		{ID: "p1", Name: "read_file"},
		{ID: "s1", Name: "write_file"},
		{ID: "p2", Name: "grep"},
	}

	var parallelDone int64
	run := func(ctx context.Context, ic IndexedCall) ToolResult {
		if ic.Call.Name == "write_file" {
			if atomic.LoadInt64(&parallelDone) != 2 {
				t.Error("sequential call started before all parallel calls finished")
			}
		} else {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&parallelDone, 1)
		}
		return ToolResult{ToolCallID: ic.Call.ID, Success: true}
	}

	e.Execute(context.Background(), len(calls), c.Classify(calls), run, nil)
}

func TestExecuteHaltSkipsRemainingSequential(t *testing.T) {
	r := testRegistry()
	c := NewClassifier(r.Lookup)
	e := NewExecutor(2)

	calls := []ToolCall{
		{ID: "s1", Name: "shell"},
		{ID: "s2", Name: "shell"},
		{ID: "s3", Name: "shell"},
	}

	executed := 0
	run := func(ctx context.Context, ic IndexedCall) ToolResult {
		executed++
		return ToolResult{ToolCallID: ic.Call.ID, Success: false, Error: "boom"}
	}
	halt := func() bool { return executed >= 1 }

	results := e.Execute(context.Background(), len(calls), c.Classify(calls), run, halt)

	if executed != 1 {
		t.Errorf("expected exactly 1 execution before halt, got %d", executed)
	}
	for _, idx := range []int{1, 2} {
		if results[idx].Success || results[idx].Error == "" {
			t.Errorf("result[%d] should be a synthetic failure: %+v", idx, results[idx])
		}
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	r := testRegistry()
	c := NewClassifier(r.Lookup)
	e := NewExecutor(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := []ToolCall{{ID: "s1", Name: "shell"}}
	run := func(ctx context.Context, ic IndexedCall) ToolResult {
		t.Error("sequential call must not launch after cancellation")
		return ToolResult{}
	}

	results := e.Execute(ctx, 1, c.Classify(calls), run, nil)
	if results[0].Success {
		t.Error("cancelled call should be a synthetic failure")
	}
}
