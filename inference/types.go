package inference

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation entry as seen by the model.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: toolCalls}
}

// ToolResultMessage creates a tool result Message correlated to a call.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, IsError: isError}
}

// ToolDefinition describes a tool for the model (serializable metadata).
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// ToolCall is a model-initiated tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Usage tracks token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// ModelConfig carries per-request model parameters.
type ModelConfig struct {
	Model           string   `json:"model"`
	Provider        string   `json:"provider,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
}

// Request is the input to Service.Complete.
type Request struct {
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Config   ModelConfig      `json:"config"`

	// OnStreamChunk, when set, receives text deltas as they arrive.
	// Adapters that cannot stream deliver the full text as one chunk.
	OnStreamChunk func(delta string) `json:"-"`
}

// ResponseType discriminates model responses.
type ResponseType string

const (
	ResponseText    ResponseType = "text"
	ResponseToolUse ResponseType = "tool_use"
)

// Response is the output of Service.Complete.
type Response struct {
	ID        string       `json:"id"`
	Model     string       `json:"model"`
	Type      ResponseType `json:"type"`
	Content   string       `json:"content,omitempty"`
	ToolCalls []ToolCall   `json:"tool_calls,omitempty"`
	Truncated bool         `json:"truncated,omitempty"`
	Usage     Usage        `json:"usage"`
}

// HasToolCalls reports whether the response requests tool execution.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// EstimateTokens is the chars/4 heuristic used when a provider does not
// report usage.
func EstimateTokens(text string) int {
	return len(strings.TrimSpace(text)) / 4
}
