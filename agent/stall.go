package agent

import (
	"fmt"
	"strings"
)

// ProgressState classifies what the agent did in its latest iteration,
// derived from which category of tool it used.
type ProgressState string

const (
	StateExploring ProgressState = "exploring" // read-only tools
	StateModifying ProgressState = "modifying" // write tools
	StateVerifying ProgressState = "verifying" // verify commands
)

// DefaultMaxExploringStreak triggers a corrective message after this many
// consecutive exploring iterations.
const DefaultMaxExploringStreak = 3

// StallCounters is the per-session nudge state. Counters other than
// ExploringStreak increase monotonically for the lifetime of one run and
// are never reset mid-run, which bounds total nudging (the loop stops
// nudging once each counter hits its cap).
type StallCounters struct {
	ReadOnlyNudges  int
	TodoNudges      int
	FileNudges      int
	ExploringStreak int
}

// StallDetector is a pure evaluator over recent history that decides
// whether the agent is stalling and synthesizes corrective messages. It is
// one layer of progress supervision independent of model self-reporting;
// the stop-gate nudges in the loop are the others.
type StallDetector struct {
	lookup             func(name string) (ToolDefinition, bool)
	maxExploringStreak int
}

// NewStallDetector creates a detector backed by the registry lookup.
func NewStallDetector(lookup func(name string) (ToolDefinition, bool), maxExploringStreak int) *StallDetector {
	if maxExploringStreak <= 0 {
		maxExploringStreak = DefaultMaxExploringStreak
	}
	return &StallDetector{lookup: lookup, maxExploringStreak: maxExploringStreak}
}

// ProgressStateOf derives the progress state for one iteration's calls.
// Any write tool counts as modifying; failing that, any verify tool counts
// as verifying; a purely read-only iteration is exploring.
func (d *StallDetector) ProgressStateOf(calls []ToolCall) ProgressState {
	state := StateExploring
	for _, call := range calls {
		def, ok := d.lookup(call.Name)
		if !ok {
			continue
		}
		switch def.Category {
		case CategoryWrite:
			return StateModifying
		case CategoryVerify:
			state = StateVerifying
		}
	}
	return state
}

// Observe folds one iteration into the counters and returns a corrective
// message when the exploring streak crosses the threshold. The streak
// resets after firing, and any non-exploring iteration resets it to zero.
func (d *StallDetector) Observe(counters *StallCounters, calls []ToolCall) (string, bool) {
	if d.ProgressStateOf(calls) != StateExploring {
		counters.ExploringStreak = 0
		return "", false
	}
	counters.ExploringStreak++
	if counters.ExploringStreak < d.maxExploringStreak {
		return "", false
	}
	counters.ExploringStreak = 0
	return fmt.Sprintf("You have spent %d consecutive iterations only reading and searching. "+
		"Stop exploring and start making the changes the task requires.", d.maxExploringStreak), true
}

// ReadOnlyStallNudge fires when the agent tries to stop having used tools
// but never modified anything. Bounded by max; after the cap the stall is
// tolerated and the stop allowed.
func (d *StallDetector) ReadOnlyStallNudge(counters *StallCounters, max int, usedAnyTool, modifiedAnything bool) (string, bool) {
	if !usedAnyTool || modifiedAnything || counters.ReadOnlyNudges >= max {
		return "", false
	}
	counters.ReadOnlyNudges++
	return "You have only used read-only tools so far. If the task requires changes, " +
		"make them before finishing; if it is genuinely read-only, state your findings explicitly.", true
}

// TodoNudge fires when the agent tries to stop with unresolved work items.
func (d *StallDetector) TodoNudge(counters *StallCounters, max int, pending []string) (string, bool) {
	if len(pending) == 0 || counters.TodoNudges >= max {
		return "", false
	}
	counters.TodoNudges++
	return fmt.Sprintf("These work items are still unresolved:\n- %s\nComplete them or explain why they no longer apply.",
		strings.Join(pending, "\n- ")), true
}

// TargetFileNudge fires when the agent tries to stop without touching
// files the task named.
func (d *StallDetector) TargetFileNudge(counters *StallCounters, max int, untouched []string) (string, bool) {
	if len(untouched) == 0 || counters.FileNudges >= max {
		return "", false
	}
	counters.FileNudges++
	return fmt.Sprintf("The task mentions these files, but none of them were modified:\n- %s\nVerify whether they need changes.",
		strings.Join(untouched, "\n- ")), true
}
