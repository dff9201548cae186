// Package compact keeps a conversation transcript within a model's context
// budget.
//
// The Compactor inspects token usage against configured thresholds and
// selects a strategy: do nothing, truncate older messages, extract and
// preserve code blocks while dropping prose, or replace the older segment
// with a model-generated structured summary. A summary is only accepted if
// it actually shrinks the segment; otherwise the compactor falls back to
// truncation. Every compaction produces a replacement block that records how
// many messages and tokens it stands in for, so history is never silently
// dropped.
package compact
