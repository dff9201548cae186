package agent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tessellate-ai/helmsman/compact"
	"github.com/tessellate-ai/helmsman/inference"
)

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall is a model-initiated tool invocation, consumed once per turn.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of one ToolCall. Results are correlated to
// calls by array index, never by arrival time.
type ToolResult struct {
	ToolCallID string                 `json:"tool_call_id"`
	Success    bool                   `json:"success"`
	Output     string                 `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Duration   time.Duration          `json:"duration"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Message is one immutable transcript entry. The transcript is exclusively
// owned by one Loop instance per session.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	// Compaction provenance. A message with ReplacesMessages > 0 is a
	// synthetic block standing in for a replaced run of older messages.
	ReplacesMessages int `json:"replaces_messages,omitempty"`
	ReplacesTokens   int `json:"replaces_tokens,omitempty"`
}

func newMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a user transcript entry.
func NewUserMessage(content string) Message {
	return newMessage(RoleUser, content)
}

// NewSystemMessage creates a system transcript entry (nudges, corrections).
func NewSystemMessage(content string) Message {
	return newMessage(RoleSystem, content)
}

// NewAssistantMessage creates an assistant entry with any tool calls.
func NewAssistantMessage(content string, toolCalls []ToolCall) Message {
	m := newMessage(RoleAssistant, content)
	m.ToolCalls = toolCalls
	return m
}

// NewToolResultsMessage creates a tool-results entry for one turn.
func NewToolResultsMessage(results []ToolResult) Message {
	m := newMessage(RoleTool, "")
	m.ToolResults = results
	return m
}

// NewCompactionBlock creates the synthetic message that replaces a
// contiguous run of older messages.
func NewCompactionBlock(block string, replacedMessages, replacedTokens int) Message {
	m := newMessage(RoleSystem, block)
	m.ReplacesMessages = replacedMessages
	m.ReplacesTokens = replacedTokens
	return m
}

// TextContent flattens a message to plain text, including tool output.
func (m Message) TextContent() string {
	if m.Role != RoleTool {
		return m.Content
	}
	text := m.Content
	for _, r := range m.ToolResults {
		if r.Output != "" {
			text += r.Output
		}
		if r.Error != "" {
			text += r.Error
		}
	}
	return text
}

// toInferenceMessages converts the transcript into model messages.
func toInferenceMessages(transcript []Message) []inference.Message {
	var out []inference.Message
	for _, m := range transcript {
		switch m.Role {
		case RoleUser:
			out = append(out, inference.UserMessage(m.Content))
		case RoleSystem:
			out = append(out, inference.SystemMessage(m.Content))
		case RoleAssistant:
			calls := make([]inference.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = inference.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
			}
			out = append(out, inference.AssistantMessage(m.Content, calls))
		case RoleTool:
			for _, r := range m.ToolResults {
				content := r.Output
				if !r.Success {
					content = r.Error
				}
				out = append(out, inference.ToolResultMessage(r.ToolCallID, content, !r.Success))
			}
		}
	}
	return out
}

// toCompactSources flattens the transcript for the compactor.
func toCompactSources(transcript []Message) []compact.Source {
	out := make([]compact.Source, len(transcript))
	for i, m := range transcript {
		out[i] = compact.Source{Role: string(m.Role), Content: m.TextContent()}
	}
	return out
}
