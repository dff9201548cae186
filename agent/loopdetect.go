package agent

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// callSignature computes a deterministic signature for a tool call
// (name + hash of arguments).
func callSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentCallSignatures extracts signatures from the most recent tool calls
// in the transcript, in chronological order.
func recentCallSignatures(transcript []Message, count int) []string {
	var sigs []string
	for i := len(transcript) - 1; i >= 0 && len(sigs) < count; i-- {
		m := transcript[i]
		if m.Role != RoleAssistant {
			continue
		}
		for j := len(m.ToolCalls) - 1; j >= 0 && len(sigs) < count; j-- {
			tc := m.ToolCalls[j]
			sigs = append(sigs, callSignature(tc.Name, tc.Arguments))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectRepeatedCalls checks whether the last windowSize tool calls follow
// a repeating pattern of length 1, 2, or 3. This complements the stall
// detector: it catches verbatim repetition rather than lack of progress.
func DetectRepeatedCalls(transcript []Message, windowSize int) bool {
	sigs := recentCallSignatures(transcript, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
