package agent

import "context"

// HookDecision is the outcome of a hook invocation.
type HookDecision struct {
	// ShouldProceed vetoes the guarded action when false.
	ShouldProceed bool
	// Message is injected into the transcript as a system message when
	// the hook vetoes or wants to add context.
	Message string
	// PreservedContext is content a pre-compaction hook wants to survive
	// compaction verbatim.
	PreservedContext string
}

// Proceed is the decision that lets the guarded action continue unchanged.
func Proceed() HookDecision {
	return HookDecision{ShouldProceed: true}
}

// HookManager is the invocation contract for user- and planner-defined
// hooks. Discovery and loading of hook scripts is an external concern.
// Hooks are advisory: a hook that returns an error is logged and treated
// as Proceed, never allowed to abort the loop.
type HookManager interface {
	PreToolUse(ctx context.Context, call ToolCall) (HookDecision, error)
	PostToolUse(ctx context.Context, call ToolCall, result ToolResult) (HookDecision, error)
	Stop(ctx context.Context, finalText string) (HookDecision, error)
	SessionStart(ctx context.Context, sessionID string) (HookDecision, error)
	PreCompact(ctx context.Context, transcript []Message) (HookDecision, error)
}

// NoopHooks is the default HookManager; every hook proceeds.
type NoopHooks struct{}

func (NoopHooks) PreToolUse(context.Context, ToolCall) (HookDecision, error) {
	return Proceed(), nil
}

func (NoopHooks) PostToolUse(context.Context, ToolCall, ToolResult) (HookDecision, error) {
	return Proceed(), nil
}

func (NoopHooks) Stop(context.Context, string) (HookDecision, error) {
	return Proceed(), nil
}

func (NoopHooks) SessionStart(context.Context, string) (HookDecision, error) {
	return Proceed(), nil
}

func (NoopHooks) PreCompact(context.Context, []Message) (HookDecision, error) {
	return Proceed(), nil
}
