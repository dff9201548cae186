package agent

import "testing"

func stallDetector(streak int) *StallDetector {
	r := testRegistry()
	return NewStallDetector(r.Lookup, streak)
}

func TestProgressStateDerivation(t *testing.T) {
	d := stallDetector(3)

	tests := []struct {
		name  string
		calls []ToolCall
		want  ProgressState
	}{
		{"read only", []ToolCall{{Name: "read_file"}, {Name: "grep"}}, StateExploring},
		{"write wins", []ToolCall{{Name: "read_file"}, {Name: "write_file"}}, StateModifying},
		{"no calls", nil, StateExploring},
		{"unknown tools ignored", []ToolCall{{Name: "mystery"}}, StateExploring},
	}
	for _, tt := range tests {
		if got := d.ProgressStateOf(tt.calls); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestExploringStreakFiresAndResets(t *testing.T) {
	d := stallDetector(3)
	counters := &StallCounters{}
	reads := []ToolCall{{Name: "read_file"}}

	for i := 0; i < 2; i++ {
		if _, fired := d.Observe(counters, reads); fired {
			t.Fatalf("fired after %d exploring iterations, threshold is 3", i+1)
		}
	}
	msg, fired := d.Observe(counters, reads)
	if !fired || msg == "" {
		t.Fatal("expected corrective message on third consecutive exploring iteration")
	}
	if counters.ExploringStreak != 0 {
		t.Error("streak should reset after firing")
	}

	// A modifying iteration resets the streak.
	d.Observe(counters, reads)
	d.Observe(counters, []ToolCall{{Name: "write_file"}})
	if counters.ExploringStreak != 0 {
		t.Error("non-exploring iteration should reset the streak")
	}
}

func TestReadOnlyNudgeCap(t *testing.T) {
	d := stallDetector(3)
	counters := &StallCounters{}
	const max = 2

	// Exactly max nudges fire, then the stop is tolerated.
	for i := 0; i < max; i++ {
		if _, fired := d.ReadOnlyStallNudge(counters, max, true, false); !fired {
			t.Fatalf("nudge %d should fire", i+1)
		}
	}
	if _, fired := d.ReadOnlyStallNudge(counters, max, true, false); fired {
		t.Error("nudge fired beyond the cap")
	}
	if counters.ReadOnlyNudges != max {
		t.Errorf("counter = %d, want %d", counters.ReadOnlyNudges, max)
	}
}

func TestReadOnlyNudgeRequiresToolUse(t *testing.T) {
	d := stallDetector(3)
	counters := &StallCounters{}

	if _, fired := d.ReadOnlyStallNudge(counters, 3, false, false); fired {
		t.Error("no tools used: a pure-text answer should be allowed to stop")
	}
	if _, fired := d.ReadOnlyStallNudge(counters, 3, true, true); fired {
		t.Error("agent modified files: no read-only nudge warranted")
	}
}

func TestTodoNudge(t *testing.T) {
	d := stallDetector(3)
	counters := &StallCounters{}

	msg, fired := d.TodoNudge(counters, 2, []string{"fix the parser", "add tests"})
	if !fired {
		t.Fatal("pending todos should veto the stop")
	}
	if msg == "" || counters.TodoNudges != 1 {
		t.Errorf("msg=%q counters=%+v", msg, counters)
	}

	if _, fired := d.TodoNudge(counters, 2, nil); fired {
		t.Error("no pending todos: nothing to nudge about")
	}
}

func TestTargetFileNudge(t *testing.T) {
	d := stallDetector(3)
	counters := &StallCounters{}

	if _, fired := d.TargetFileNudge(counters, 1, []string{"main.go"}); !fired {
		t.Fatal("untouched target file should veto the stop")
	}
	if _, fired := d.TargetFileNudge(counters, 1, []string{"main.go"}); fired {
		t.Error("file nudge fired beyond the cap")
	}
}
