package compact

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func msg(role, content string) Source {
	return Source{Role: role, Content: content}
}

// repeat builds a message of roughly n tokens under the chars/4 heuristic.
func repeat(n int) string {
	return strings.Repeat("word", n)
}

func testConfig(budget int) Config {
	cfg := DefaultConfig(budget)
	cfg.PreserveRecent = 2
	return cfg
}

func TestNoActionBelowWarnThreshold(t *testing.T) {
	c := New(HeuristicCounter{}, testConfig(1000))

	res, err := c.Compact(context.Background(), []Source{
		msg("user", repeat(50)),
		msg("assistant", repeat(50)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyNone {
		t.Errorf("expected no action at low usage, got %s", res.Strategy)
	}
	if c.Stats().Compactions != 0 {
		t.Error("no-op must not count as a compaction event")
	}
}

func TestTruncateKeepsRecentMessages(t *testing.T) {
	c := New(HeuristicCounter{}, testConfig(1000))

	msgs := []Source{
		msg("user", repeat(300)),
		msg("assistant", repeat(300)),
		msg("user", repeat(100)),
		msg("assistant", repeat(100)),
	}
	res, err := c.Compact(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyTruncate {
		t.Fatalf("expected truncate, got %s", res.Strategy)
	}
	if res.Keep != 2 {
		t.Errorf("expected 2 recent messages preserved, got %d", res.Keep)
	}
	if res.ReplacedMessages != 2 {
		t.Errorf("expected 2 messages replaced, got %d", res.ReplacedMessages)
	}
	if !strings.Contains(res.Block, "2 earlier messages") {
		t.Errorf("block missing provenance: %q", res.Block)
	}
	if res.SavedTokens <= 0 {
		t.Error("truncation should save tokens")
	}
}

func TestExtractPreservesCodeBlocks(t *testing.T) {
	c := New(HeuristicCounter{}, testConfig(1000))

	code := "```go\nfunc main() {}\n```"
	msgs := []Source{
		msg("assistant", "here is the fix\n"+code+"\n"+repeat(300)),
		msg("user", repeat(300)),
		msg("user", repeat(50)),
		msg("assistant", repeat(50)),
	}
	res, err := c.Compact(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyExtract {
		t.Fatalf("expected extract, got %s", res.Strategy)
	}
	if !strings.Contains(res.Block, "func main() {}") {
		t.Errorf("code block not preserved: %q", res.Block)
	}
}

type fixedSummarizer struct {
	out string
	err error
}

func (f fixedSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	return f.out, f.err
}

func TestSummarizeAboveSummaryThreshold(t *testing.T) {
	c := New(HeuristicCounter{}, testConfig(1000),
		WithSummarizer(fixedSummarizer{out: "short summary of the work"}))

	msgs := []Source{
		msg("user", repeat(500)),
		msg("assistant", repeat(400)),
		msg("user", repeat(20)),
		msg("assistant", repeat(20)),
	}
	res, err := c.Compact(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategySummarize {
		t.Fatalf("expected summarize, got %s", res.Strategy)
	}
	if !strings.Contains(res.Block, "short summary of the work") {
		t.Errorf("summary missing from block: %q", res.Block)
	}
	if c.Stats().LastStrategy != StrategySummarize {
		t.Error("stats not updated")
	}
}

func TestOversizedSummaryFallsBackToTruncation(t *testing.T) {
	// The double returns a "summary" larger than the segment it replaces.
	c := New(HeuristicCounter{}, testConfig(1000),
		WithSummarizer(fixedSummarizer{out: repeat(5000)}))

	msgs := []Source{
		msg("user", repeat(500)),
		msg("assistant", repeat(400)),
		msg("user", repeat(20)),
		msg("assistant", repeat(20)),
	}
	res, err := c.Compact(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyTruncate {
		t.Fatalf("oversized summary must fall back to truncation, got %s", res.Strategy)
	}
	if res.CompactedTokens >= res.OriginalTokens {
		t.Errorf("compaction grew the segment: %d >= %d", res.CompactedTokens, res.OriginalTokens)
	}
}

func TestSummarizerErrorFallsBackToTruncation(t *testing.T) {
	c := New(HeuristicCounter{}, testConfig(1000),
		WithSummarizer(fixedSummarizer{err: context.DeadlineExceeded}))

	msgs := []Source{
		msg("user", repeat(900)),
		msg("user", repeat(20)),
		msg("assistant", repeat(20)),
	}
	res, err := c.Compact(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyTruncate {
		t.Fatalf("summarizer failure must fall back to truncation, got %s", res.Strategy)
	}
}

func TestPreCompactHookContentSurvives(t *testing.T) {
	hook := func(older []Source) string {
		return "open files: main.go, loop.go"
	}
	c := New(HeuristicCounter{}, testConfig(1000), WithPreCompactHook(hook))

	msgs := []Source{
		msg("user", repeat(800)),
		msg("user", repeat(20)),
		msg("assistant", repeat(20)),
	}
	res, err := c.Compact(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Block, "open files: main.go, loop.go") {
		t.Errorf("preserved context missing: %q", res.Block)
	}
}

func TestCumulativeStats(t *testing.T) {
	c := New(HeuristicCounter{}, testConfig(1000))

	msgs := []Source{
		msg("user", repeat(800)),
		msg("user", repeat(20)),
		msg("assistant", repeat(20)),
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Compact(context.Background(), msgs); err != nil {
			t.Fatal(err)
		}
	}
	st := c.Stats()
	if st.Compactions != 3 {
		t.Errorf("expected 3 compaction events, got %d", st.Compactions)
	}
	if st.SavedTokens <= 0 {
		t.Error("cumulative saved tokens should grow")
	}
}

func TestClipKeepsRuneBoundary(t *testing.T) {
	// "héllo" is 6 bytes; a byte cut at 2 would split the é.
	got := clip("héllo", 2)
	if !utf8.ValidString(got) {
		t.Errorf("clip produced invalid UTF-8: %q", got)
	}
	if got != "h..." {
		t.Errorf("clip = %q, want %q", got, "h...")
	}
	if got := clip("héllo", 100); got != "héllo" {
		t.Errorf("short input should pass through, got %q", got)
	}
}

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}
	if got := c.Count("abcdefgh"); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := c.Count("a"); got != 1 {
		t.Errorf("short non-empty text should count as 1, got %d", got)
	}
	if got := c.Count(""); got != 0 {
		t.Errorf("empty text should count as 0, got %d", got)
	}
}
