package compact

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Strategy identifies how a compaction was performed.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyTruncate  Strategy = "truncate"
	StrategyExtract   Strategy = "extract"
	StrategySummarize Strategy = "summarize"
)

// Source is the compactor's flattened view of one transcript message.
type Source struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds compaction thresholds relative to the token budget.
type Config struct {
	Budget         int     // context window size in tokens
	WarnRatio      float64 // below this, no action
	CriticalRatio  float64 // above this, compact aggressively
	SummaryRatio   float64 // above this, use AI summarization
	PreserveRecent int     // most recent messages always kept verbatim
}

// DefaultConfig returns the default thresholds for the given budget.
func DefaultConfig(budget int) Config {
	return Config{
		Budget:         budget,
		WarnRatio:      0.70,
		CriticalRatio:  0.85,
		SummaryRatio:   0.92,
		PreserveRecent: 10,
	}
}

// Summarizer produces a structured summary of an older transcript segment.
// ServiceSummarizer is the inference-backed implementation.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// PreCompactHook extracts content that must survive compaction verbatim
// (e.g. open file paths). Its output is prepended to the replacement block.
type PreCompactHook func(older []Source) string

// State holds cumulative per-session compaction statistics.
type State struct {
	SavedTokens  int      `json:"saved_tokens"`
	Compactions  int      `json:"compactions"`
	LastStrategy Strategy `json:"last_strategy"`
}

// Result describes one compaction decision.
type Result struct {
	Strategy Strategy

	// Keep is the length of the transcript suffix preserved verbatim.
	// The caller replaces everything before it with Block.
	Keep int

	// Block is the replacement text for the older segment, including its
	// provenance header. Empty when Strategy is StrategyNone.
	Block string

	ReplacedMessages int
	OriginalTokens   int
	CompactedTokens  int
	SavedTokens      int
}

// Compactor applies the compaction policy to a transcript.
type Compactor struct {
	counter    TokenCounter
	summarizer Summarizer
	preCompact PreCompactHook
	cfg        Config

	mu    sync.Mutex
	state State
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithSummarizer enables the AI-summary strategy.
func WithSummarizer(s Summarizer) Option {
	return func(c *Compactor) { c.summarizer = s }
}

// WithPreCompactHook sets the hook run before every compaction.
func WithPreCompactHook(h PreCompactHook) Option {
	return func(c *Compactor) { c.preCompact = h }
}

// New creates a Compactor with the given counter and config.
func New(counter TokenCounter, cfg Config, opts ...Option) *Compactor {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	if cfg.PreserveRecent <= 0 {
		cfg.PreserveRecent = 10
	}
	c := &Compactor{counter: counter, cfg: cfg, state: State{LastStrategy: StrategyNone}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns cumulative compaction statistics for the session.
func (c *Compactor) Stats() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CountMessages returns the total token count of the transcript.
func (c *Compactor) CountMessages(msgs []Source) int {
	total := 0
	for _, m := range msgs {
		total += c.counter.Count(m.Content)
	}
	return total
}

// UsageRatio returns current usage relative to the budget.
func (c *Compactor) UsageRatio(msgs []Source) float64 {
	if c.cfg.Budget <= 0 {
		return 0
	}
	return float64(c.CountMessages(msgs)) / float64(c.cfg.Budget)
}

// Compact inspects the transcript and, when a threshold is crossed, returns
// a Result describing the older-segment replacement. A nil error with
// Strategy == StrategyNone means no action was needed.
func (c *Compactor) Compact(ctx context.Context, msgs []Source) (*Result, error) {
	ratio := c.UsageRatio(msgs)
	if ratio < c.cfg.WarnRatio {
		return &Result{Strategy: StrategyNone, Keep: len(msgs)}, nil
	}

	keep := c.cfg.PreserveRecent
	if ratio >= c.cfg.CriticalRatio && keep > 4 {
		keep = keep / 2 // keep less when we are close to the wall
	}
	if len(msgs) <= keep {
		return &Result{Strategy: StrategyNone, Keep: len(msgs)}, nil
	}

	older := msgs[:len(msgs)-keep]
	olderTokens := c.CountMessages(older)

	preserved := ""
	if c.preCompact != nil {
		preserved = strings.TrimSpace(c.preCompact(older))
	}

	var strategy Strategy
	var body string
	if ratio >= c.cfg.SummaryRatio && c.summarizer != nil {
		strategy = StrategySummarize
		summary, err := c.summarizer.Summarize(ctx, flatten(older))
		if err != nil || c.counter.Count(summary) >= olderTokens {
			// Floor invariant: a summary that fails or does not shrink the
			// segment falls back to truncation.
			strategy = StrategyTruncate
			body = c.truncateBody(older)
		} else {
			body = summary
		}
	} else if hasCodeBlocks(older) {
		strategy = StrategyExtract
		body = c.extractBody(older)
	} else {
		strategy = StrategyTruncate
		body = c.truncateBody(older)
	}

	block := fmt.Sprintf("[Conversation compacted: %d earlier messages (~%d tokens) replaced, strategy=%s]",
		len(older), olderTokens, strategy)
	if preserved != "" {
		block += "\n\nPreserved context:\n" + preserved
	}
	if body != "" {
		block += "\n\n" + body
	}

	blockTokens := c.counter.Count(block)
	saved := olderTokens - blockTokens
	if saved < 0 {
		saved = 0
	}

	c.mu.Lock()
	c.state.SavedTokens += saved
	c.state.Compactions++
	c.state.LastStrategy = strategy
	c.mu.Unlock()

	return &Result{
		Strategy:         strategy,
		Keep:             keep,
		Block:            block,
		ReplacedMessages: len(older),
		OriginalTokens:   olderTokens,
		CompactedTokens:  blockTokens,
		SavedTokens:      saved,
	}, nil
}

// truncateBody keeps a one-line digest of each dropped message.
func (c *Compactor) truncateBody(older []Source) string {
	var sb strings.Builder
	for _, m := range older {
		line := firstLine(m.Content)
		if line == "" {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", m.Role, clip(line, 120))
	}
	return strings.TrimRight(sb.String(), "\n")
}

var codeFenceRe = regexp.MustCompile("(?s)```.*?```")

// extractBody preserves fenced code blocks verbatim and reduces prose to
// one-line digests.
func (c *Compactor) extractBody(older []Source) string {
	var sb strings.Builder
	for _, m := range older {
		blocks := codeFenceRe.FindAllString(m.Content, -1)
		prose := codeFenceRe.ReplaceAllString(m.Content, "")
		if line := firstLine(prose); line != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", m.Role, clip(line, 120))
		}
		for _, b := range blocks {
			sb.WriteString(b)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func hasCodeBlocks(msgs []Source) bool {
	for _, m := range msgs {
		if strings.Contains(m.Content, "```") {
			return true
		}
	}
	return false
}

func flatten(msgs []Source) string {
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", m.Role, m.Content)
	}
	return sb.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// clip shortens s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// SummaryPrompt is the instruction given to the model when summarizing an
// older transcript segment.
const SummaryPrompt = `Summarize the following conversation segment for an autonomous coding agent
that will continue the task. Produce these sections:

1. Current state - what has been accomplished
2. Key decisions and their rationale
3. Code changes made (files and what changed)
4. Open problems
5. Lessons learned
6. Next steps

Be concise. Preserve exact file paths, identifiers, and commands.`
