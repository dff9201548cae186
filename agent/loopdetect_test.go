package agent

import (
	"encoding/json"
	"fmt"
	"testing"
)

func transcriptWithCalls(calls ...ToolCall) []Message {
	var msgs []Message
	for _, c := range calls {
		msgs = append(msgs, NewAssistantMessage("", []ToolCall{c}))
		msgs = append(msgs, NewToolResultsMessage([]ToolResult{{ToolCallID: c.ID, Success: true}}))
	}
	return msgs
}

func tc(name, args string) ToolCall {
	return ToolCall{ID: "c", Name: name, Arguments: json.RawMessage(args)}
}

func TestDetectRepeatedCallsIdentical(t *testing.T) {
	var calls []ToolCall
	for i := 0; i < 6; i++ {
		calls = append(calls, tc("read_file", `{"file_path":"a.go"}`))
	}
	if !DetectRepeatedCalls(transcriptWithCalls(calls...), 6) {
		t.Error("six identical calls not detected as a loop")
	}
}

func TestDetectRepeatedCallsAlternatingPair(t *testing.T) {
	var calls []ToolCall
	for i := 0; i < 3; i++ {
		calls = append(calls, tc("read_file", `{"file_path":"a.go"}`))
		calls = append(calls, tc("grep", `{"pattern":"x"}`))
	}
	if !DetectRepeatedCalls(transcriptWithCalls(calls...), 6) {
		t.Error("alternating pair pattern not detected")
	}
}

func TestDetectRepeatedCallsDistinctArguments(t *testing.T) {
	var calls []ToolCall
	for i := 0; i < 6; i++ {
		calls = append(calls, tc("read_file", fmt.Sprintf(`{"file_path":"file%d.go"}`, i)))
	}
	if DetectRepeatedCalls(transcriptWithCalls(calls...), 6) {
		t.Error("distinct arguments flagged as a loop")
	}
}

func TestDetectRepeatedCallsShortWindow(t *testing.T) {
	calls := []ToolCall{
		tc("read_file", `{"file_path":"a.go"}`),
		tc("read_file", `{"file_path":"a.go"}`),
	}
	// Fewer calls than the window: not enough evidence.
	if DetectRepeatedCalls(transcriptWithCalls(calls...), 6) {
		t.Error("detector fired below the window size")
	}
}
