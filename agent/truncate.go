package agent

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized tool output is cut.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Default character limits per tool.
var defaultToolCharLimits = map[string]int{
	"read_file":  50000,
	"shell":      30000,
	"grep":       20000,
	"glob":       20000,
	"edit_file":  10000,
	"write_file": 1000,
}

// Default truncation modes per tool.
var defaultTruncationModes = map[string]TruncationMode{
	"read_file": TruncateHeadTail,
	"shell":     TruncateHeadTail,
	"grep":      TruncateTail,
	"glob":      TruncateTail,
}

// Default line limits per tool (applied after character truncation).
var defaultToolLineLimits = map[string]int{
	"shell": 256,
	"grep":  200,
	"glob":  500,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[Output truncated: first %d characters removed. "+
			"The full output is available in the event stream.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[Output truncated: %d characters removed from the middle. "+
				"Re-run the tool with more targeted parameters if you need the rest.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the per-tool truncation pipeline: character
// truncation first (handles pathological cases), then line truncation.
func TruncateToolOutput(output, toolName string, charLimits, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = defaultToolCharLimits[toolName]
		if !ok {
			maxChars = 30000
		}
	}

	mode, ok := defaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)

	maxLines := 0
	if lineLimits != nil {
		maxLines = lineLimits[toolName]
	}
	if maxLines == 0 {
		maxLines = defaultToolLineLimits[toolName]
	}
	if maxLines > 0 {
		result = TruncateLines(result, maxLines)
	}

	return result
}
