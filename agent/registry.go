package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tessellate-ai/helmsman/inference"
)

// ToolCategory classifies what a tool does to the workspace. The stall
// detector derives the loop's progress state from it.
type ToolCategory string

const (
	CategoryReadOnly ToolCategory = "read_only" // read_file, grep, glob, list
	CategoryWrite    ToolCategory = "write"     // write_file, edit, patch
	CategoryVerify   ToolCategory = "verify"    // test/build/lint commands
	CategoryOther    ToolCategory = "other"
)

// ExecContext supplies per-execution environment to tools.
type ExecContext struct {
	SessionID  string
	WorkingDir string

	// OnPlanMode toggles plan mode when a tool requests it.
	OnPlanMode func(enabled bool)
	// OnEvent lets tools surface notifications through the loop's stream.
	OnEvent func(text string)
}

// ExecOutcome is what a tool execution produces.
type ExecOutcome struct {
	Success  bool
	Output   string
	Error    string
	Metadata map[string]interface{}
}

// ToolFunc executes one tool invocation with parsed arguments.
type ToolFunc func(ctx context.Context, args json.RawMessage, ec ExecContext) ExecOutcome

// ToolDefinition describes a tool: the serializable model-facing metadata
// plus the static execution metadata the loop needs.
type ToolDefinition struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Parameters   map[string]interface{} `json:"parameters"`
	ParallelSafe bool                   `json:"parallel_safe"`
	Category     ToolCategory           `json:"category"`
}

// RegisteredTool pairs a definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Run        ToolFunc
}

// Runner is the tool registry/executor contract the loop consumes. The
// concrete tool implementations behind it are external collaborators.
type Runner interface {
	Execute(ctx context.Context, name string, args json.RawMessage, ec ExecContext) ExecOutcome
	Definitions() []ToolDefinition
	Lookup(name string) (ToolDefinition, bool)
}

// ToolRegistry manages tool registration and dispatch. It implements Runner.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*RegisteredTool)}
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tool.Definition.Category == "" {
		tool.Definition.Category = CategoryOther
	}
	r.tools[tool.Definition.Name] = &tool
}

// Unregister removes a tool.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Lookup returns a tool's definition by name.
func (r *ToolRegistry) Lookup(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return t.Definition, true
}

// Definitions returns all tool definitions.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	return defs
}

// Execute dispatches a tool by name.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage, ec ExecContext) ExecOutcome {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ExecOutcome{Error: fmt.Sprintf("unknown tool: %s", name)}
	}
	return tool.Run(ctx, args, ec)
}

// InferenceDefinitions converts registry definitions for the model request.
func InferenceDefinitions(defs []ToolDefinition) []inference.ToolDefinition {
	out := make([]inference.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = inference.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return out
}

// ParseArguments unmarshals tool call arguments into a map for access and
// validation.
func ParseArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// failedResult builds the synthetic ToolResult for a call that never ran.
func failedResult(callID, errText string, start time.Time) ToolResult {
	return ToolResult{
		ToolCallID: callID,
		Success:    false,
		Error:      errText,
		Duration:   time.Since(start),
	}
}
