package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessellate-ai/helmsman/compact"
	"github.com/tessellate-ai/helmsman/inference"
	"github.com/tessellate-ai/helmsman/logging"
)

// StopReason says why a run ended. The reasons are mutually exclusive and
// checked in priority order: circuit trip > iteration ceiling > interrupt >
// normal completion.
type StopReason string

const (
	StopCompleted       StopReason = "completed"
	StopCircuitTripped  StopReason = "circuit_tripped"
	StopMaxIterations   StopReason = "max_iterations"
	StopInterrupted     StopReason = "interrupted"
	StopBudgetExceeded  StopReason = "budget_exceeded"
	StopContextExceeded StopReason = "context_exceeded"
)

// Stable machine-readable error codes surfaced with user-visible failures.
const (
	CodeCircuitTripped  = "CIRCUIT_TRIPPED"
	CodeBudgetExceeded  = "BUDGET_EXCEEDED"
	CodeContextExceeded = "CONTEXT_EXCEEDED"
	CodeMaxIterations   = "MAX_ITERATIONS"
	CodeInferenceFailed = "INFERENCE_FAILED"
)

// Deps are the collaborators a Loop is constructed with. Explicit handles,
// passed by reference, so tests get isolated instances.
type Deps struct {
	Inference inference.Service
	Tools     Runner
	Hooks     HookManager        // user-defined hooks; optional
	Planner   HookManager        // planning-service hooks; optional
	Compactor *compact.Compactor // optional
	Log       logging.Logger     // optional
}

// RunResult is what Run returns for one completed turn sequence.
type RunResult struct {
	FinalMessage string          `json:"final_message"`
	StopReason   StopReason      `json:"stop_reason"`
	Iterations   int             `json:"iterations"`
	Usage        inference.Usage `json:"usage"`
}

// Loop is the orchestrator for one agent session. It exclusively owns its
// transcript; sessions share nothing except the team message bus.
type Loop struct {
	id         string
	cfg        Config
	infer      inference.Service
	tools      Runner
	hooks      HookManager
	planner    HookManager
	compactor  *compact.Compactor
	log        logging.Logger
	emitter    *Emitter
	classifier *Classifier
	executor   *Executor
	breaker    *CircuitBreaker
	stall      *StallDetector

	mu               sync.Mutex
	transcript       []Message
	counters         StallCounters
	steering         []string
	pendingTodos     []string
	targetFiles      []string
	touchedFiles     map[string]bool
	usedAnyTool      bool
	modifiedAnything bool
	stopHookRetries  int
	usage            inference.Usage
	interrupted      bool
	running          bool
	planMode         bool
}

// NewLoop creates a session loop around the given collaborators.
func NewLoop(deps Deps, cfg *Config) *Loop {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	hooks := deps.Hooks
	if hooks == nil {
		hooks = NoopHooks{}
	}
	planner := deps.Planner
	if planner == nil {
		planner = NoopHooks{}
	}
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}

	sessionID := uuid.New().String()
	l := &Loop{
		id:           sessionID,
		cfg:          c,
		infer:        deps.Inference,
		tools:        deps.Tools,
		hooks:        hooks,
		planner:      planner,
		compactor:    deps.Compactor,
		log:          log.With("session", sessionID),
		emitter:      NewEmitter(sessionID, 256),
		breaker:      NewCircuitBreaker(c.BreakerThreshold),
		executor:     NewExecutor(c.MaxParallelTools),
		touchedFiles: make(map[string]bool),
	}
	l.classifier = NewClassifier(deps.Tools.Lookup)
	l.stall = NewStallDetector(deps.Tools.Lookup, c.MaxExploringStreak)
	return l
}

// ID returns the session identifier.
func (l *Loop) ID() string { return l.id }

// Events returns the event stream for the host application.
func (l *Loop) Events() <-chan Event { return l.emitter.Events() }

// Transcript returns a copy of the conversation transcript.
func (l *Loop) Transcript() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.transcript))
	copy(out, l.transcript)
	return out
}

// Steer queues a corrective message injected after the current tool round.
func (l *Loop) Steer(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steering = append(l.steering, message)
}

// Interrupt signals the loop to stop at the next iteration boundary.
// In-flight parallel tool calls are allowed to finish.
func (l *Loop) Interrupt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interrupted = true
}

// SetPendingTodos records unresolved work items the stop gate checks.
func (l *Loop) SetPendingTodos(todos []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pendingTodos = append([]string(nil), todos...)
}

// SetTargetFiles records files the task names; stopping without touching
// them draws a nudge.
func (l *Loop) SetTargetFiles(files []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.targetFiles = append([]string(nil), files...)
}

// PlanMode reports whether a tool has toggled plan mode on. While active,
// write and verify tools are refused.
func (l *Loop) PlanMode() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.planMode
}

// Close releases the event stream.
func (l *Loop) Close() {
	l.emitter.Close()
}

// Run processes one user message through the agentic loop until the task
// is judged complete or a termination condition fires.
func (l *Loop) Run(ctx context.Context, userMessage string) (*RunResult, error) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil, fmt.Errorf("session %s already running", l.id)
	}
	l.running = true
	l.interrupted = false
	l.counters = StallCounters{}
	l.stopHookRetries = 0
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	l.mu.Lock()
	fresh := len(l.transcript) == 0
	l.mu.Unlock()
	if fresh && l.cfg.SystemPrompt != "" {
		l.appendMessage(NewSystemMessage(l.cfg.SystemPrompt))
	}

	if decision, err := l.hooks.SessionStart(ctx, l.id); err != nil {
		l.log.Warn("session start hook failed", "error", err)
	} else if decision.Message != "" {
		l.appendMessage(NewSystemMessage(decision.Message))
	}

	l.appendMessage(NewUserMessage(userMessage))

	for iteration := 1; ; iteration++ {
		if iteration > l.cfg.MaxIterations {
			l.emitter.Emit(Event{Kind: EventError, Error: &ErrorEvent{
				Code:    CodeMaxIterations,
				Message: fmt.Sprintf("stopped after %d iterations without completing; consider splitting the task", l.cfg.MaxIterations),
			}})
			return l.finish(StopMaxIterations, iteration-1, "")
		}

		if l.isInterrupted() || ctx.Err() != nil {
			ack := "Stopping: interrupted by a new instruction."
			l.appendMessage(NewSystemMessage(ack))
			return l.finish(StopInterrupted, iteration-1, ack)
		}

		if l.cfg.TokenBudget > 0 && l.totalUsage().TotalTokens >= l.cfg.TokenBudget {
			l.emitter.Emit(Event{Kind: EventError, Error: &ErrorEvent{
				Code:    CodeBudgetExceeded,
				Message: fmt.Sprintf("token budget of %d exhausted", l.cfg.TokenBudget),
			}})
			return l.finish(StopBudgetExceeded, iteration-1, "")
		}

		l.emitter.Emit(Event{Kind: EventTurnStart, Turn: &TurnEvent{Turn: iteration}})
		l.compactTranscript(ctx)
		l.emitter.Emit(Event{Kind: EventTaskProgress, TaskProgress: &TaskProgressEvent{Phase: PhaseThinking}})

		req := inference.Request{
			Messages: toInferenceMessages(l.Transcript()),
			Tools:    InferenceDefinitions(l.tools.Definitions()),
			Config: inference.ModelConfig{
				Model:    l.cfg.Model,
				Provider: l.cfg.Provider,
			},
		}
		resp, err := l.infer.Complete(ctx, req)
		if err != nil && l.cfg.FallbackModel != "" && inference.IsRetryable(err) {
			l.emitter.Emit(Event{Kind: EventModelFallback, ModelFallback: &ModelFallbackEvent{
				From: l.cfg.Model, To: l.cfg.FallbackModel,
			}})
			l.log.Warn("falling back to secondary model", "from", l.cfg.Model, "to", l.cfg.FallbackModel, "error", err)
			req.Config.Model = l.cfg.FallbackModel
			resp, err = l.infer.Complete(ctx, req)
		}
		if err != nil {
			l.emitter.Emit(Event{Kind: EventTaskProgress, TaskProgress: &TaskProgressEvent{Phase: PhaseFailed}})
			if requested, max, ok := inference.AsContextLength(err); ok {
				msg := fmt.Sprintf("The conversation no longer fits the model's context window (%d tokens requested, %d max). Start a new session to continue.", requested, max)
				l.emitter.Emit(Event{Kind: EventError, Error: &ErrorEvent{Code: CodeContextExceeded, Message: msg}})
				return l.finish(StopContextExceeded, iteration, msg)
			}
			l.emitter.Emit(Event{Kind: EventError, Error: &ErrorEvent{Code: CodeInferenceFailed, Message: err.Error()}})
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		l.addUsage(resp.Usage)

		if resp.HasToolCalls() {
			calls := make([]ToolCall, len(resp.ToolCalls))
			for i, tc := range resp.ToolCalls {
				calls[i] = ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
			}
			assistant := NewAssistantMessage(resp.Content, calls)
			l.appendMessage(assistant)

			results := l.executeCalls(ctx, calls)
			l.appendMessage(NewToolResultsMessage(results))
			l.drainSteering()

			if l.breaker.Tripped() {
				msg := fmt.Sprintf("Stopping: %d consecutive tool failures (last: %s). Review the failing operation and try again.",
					l.cfg.BreakerThreshold, l.breaker.LastError())
				l.emitter.Emit(Event{Kind: EventError, Error: &ErrorEvent{Code: CodeCircuitTripped, Message: msg}})
				l.breaker.Reset()
				return l.finish(StopCircuitTripped, iteration, msg)
			}

			if l.cfg.EnableRepeatDetection && DetectRepeatedCalls(l.Transcript(), l.cfg.RepeatWindow) {
				warning := fmt.Sprintf("The last %d tool calls follow a repeating pattern. Try a different approach.", l.cfg.RepeatWindow)
				l.appendMessage(NewSystemMessage(warning))
				l.emitter.Emit(Event{Kind: EventNotification, Notification: &NotificationEvent{Text: warning}})
			}

			l.mu.Lock()
			counters := &l.counters
			nudge, fired := l.stall.Observe(counters, calls)
			l.mu.Unlock()
			if fired {
				l.appendMessage(NewSystemMessage(nudge))
				l.emitter.Emit(Event{Kind: EventNotification, Notification: &NotificationEvent{Text: nudge}})
			}

			l.emitter.Emit(Event{Kind: EventTurnEnd, Turn: &TurnEvent{Turn: iteration}})
			continue
		}

		// Candidate-final text response: run the stop gate.
		l.emitter.Emit(Event{Kind: EventTaskProgress, TaskProgress: &TaskProgressEvent{Phase: PhaseGenerating}})
		l.appendMessage(NewAssistantMessage(resp.Content, nil))
		if veto, injected := l.stopGate(ctx, resp.Content); veto {
			l.appendMessage(NewSystemMessage(injected))
			l.emitter.Emit(Event{Kind: EventNotification, Notification: &NotificationEvent{Text: injected}})
			l.emitter.Emit(Event{Kind: EventTurnEnd, Turn: &TurnEvent{Turn: iteration}})
			continue
		}

		l.emitter.Emit(Event{Kind: EventTaskProgress, TaskProgress: &TaskProgressEvent{Phase: PhaseCompleted}})
		l.emitter.Emit(Event{Kind: EventTaskComplete, TaskComplete: &TaskCompleteEvent{
			Iterations: iteration,
			StopReason: string(StopCompleted),
		}})
		l.emitter.Emit(Event{Kind: EventAgentComplete, AgentComplete: &AgentCompleteEvent{AgentID: l.id}})
		return l.finish(StopCompleted, iteration, resp.Content)
	}
}

// stopGate evaluates the stop vetoes in fixed priority order: user Stop
// hook, planner Stop hook (bounded), read-only stall nudge, todo nudge,
// target-file nudge. Each nudge counter only ever increases, so the gate
// cannot veto forever.
func (l *Loop) stopGate(ctx context.Context, finalText string) (bool, string) {
	if decision, err := l.hooks.Stop(ctx, finalText); err != nil {
		l.log.Warn("stop hook failed", "error", err)
	} else if !decision.ShouldProceed {
		msg := decision.Message
		if msg == "" {
			msg = "A stop hook vetoed finishing. Continue working."
		}
		return true, msg
	}

	l.mu.Lock()
	plannerRetries := l.stopHookRetries
	l.mu.Unlock()
	if plannerRetries < l.cfg.MaxStopHookRetries {
		if decision, err := l.planner.Stop(ctx, finalText); err != nil {
			l.log.Warn("planner stop hook failed", "error", err)
		} else if !decision.ShouldProceed {
			l.mu.Lock()
			l.stopHookRetries++
			l.mu.Unlock()
			msg := decision.Message
			if msg == "" {
				msg = "The plan is not complete yet. Continue working."
			}
			return true, msg
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if msg, fired := l.stall.ReadOnlyStallNudge(&l.counters, l.cfg.MaxReadOnlyNudges, l.usedAnyTool, l.modifiedAnything); fired {
		return true, msg
	}
	if msg, fired := l.stall.TodoNudge(&l.counters, l.cfg.MaxTodoNudges, l.pendingTodos); fired {
		return true, msg
	}
	if msg, fired := l.stall.TargetFileNudge(&l.counters, l.cfg.MaxFileNudges, l.untouchedTargetsLocked()); fired {
		return true, msg
	}
	return false, ""
}

// executeCalls runs one batch of tool calls through the classifier and
// bounded executor, with hook and breaker bookkeeping around each call.
func (l *Loop) executeCalls(ctx context.Context, calls []ToolCall) []ToolResult {
	l.emitter.Emit(Event{Kind: EventTaskProgress, TaskProgress: &TaskProgressEvent{Phase: PhaseToolPending}})

	partition := l.classifier.Classify(calls)
	halt := func() bool {
		return l.breaker.Tripped() || l.isInterrupted()
	}

	l.emitter.Emit(Event{Kind: EventTaskProgress, TaskProgress: &TaskProgressEvent{Phase: PhaseToolRunning}})
	return l.executor.Execute(ctx, len(calls), partition, l.runOneTool, halt)
}

// runOneTool is the per-call pipeline: argument parse check, pre-tool
// hooks, execution, truncation, post-tool hooks, breaker and stall
// bookkeeping.
func (l *Loop) runOneTool(ctx context.Context, ic IndexedCall) ToolResult {
	call := ic.Call
	start := time.Now()
	l.emitter.Emit(Event{Kind: EventToolCallStart, ToolCallStart: &ToolCallStartEvent{
		CallID: call.ID, Tool: call.Name,
	}})

	finish := func(res ToolResult) ToolResult {
		res.Duration = time.Since(start)
		if res.Success {
			l.breaker.RecordSuccess()
		} else {
			l.breaker.RecordFailure(res.Error)
		}
		l.recordToolUse(call, res)
		l.emitter.Emit(Event{Kind: EventToolCallEnd, ToolCallEnd: &ToolCallEndEvent{
			CallID: call.ID, Tool: call.Name, Success: res.Success,
			Duration: res.Duration, Error: res.Error,
		}})
		return res
	}

	// A parse error short-circuits without invoking the tool; the error
	// text tells the model how to retry.
	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		return finish(failedResult(call.ID,
			fmt.Sprintf("arguments for %s are not valid JSON; retry the call with well-formed JSON", call.Name), start))
	}

	if l.PlanMode() {
		if def, ok := l.tools.Lookup(call.Name); ok &&
			(def.Category == CategoryWrite || def.Category == CategoryVerify) {
			return finish(failedResult(call.ID,
				fmt.Sprintf("%s is unavailable while plan mode is active; present the plan or exit plan mode first", call.Name), start))
		}
	}

	for _, h := range []HookManager{l.hooks, l.planner} {
		decision, err := h.PreToolUse(ctx, call)
		if err != nil {
			l.log.Warn("pre-tool hook failed", "tool", call.Name, "error", err)
			continue
		}
		if !decision.ShouldProceed {
			msg := decision.Message
			if msg == "" {
				msg = "blocked by a pre-tool hook"
			}
			return finish(failedResult(call.ID, msg, start))
		}
	}

	outcome := l.tools.Execute(ctx, call.Name, call.Arguments, ExecContext{
		SessionID:  l.id,
		WorkingDir: l.cfg.WorkingDir,
		OnPlanMode: func(enabled bool) {
			l.mu.Lock()
			l.planMode = enabled
			l.mu.Unlock()
		},
		OnEvent: func(text string) {
			l.emitter.Emit(Event{Kind: EventNotification, Notification: &NotificationEvent{Text: text}})
		},
	})

	result := ToolResult{
		ToolCallID: call.ID,
		Success:    outcome.Success,
		Error:      outcome.Error,
		Metadata:   outcome.Metadata,
	}
	if outcome.Output != "" {
		result.Output = TruncateToolOutput(outcome.Output, call.Name, l.cfg.ToolOutputLimits, l.cfg.ToolLineLimits)
	}
	if !result.Success && result.Error == "" {
		result.Error = fmt.Sprintf("tool %s failed without detail", call.Name)
	}

	for _, h := range []HookManager{l.hooks, l.planner} {
		if _, err := h.PostToolUse(ctx, call, result); err != nil {
			l.log.Warn("post-tool hook failed", "tool", call.Name, "error", err)
		}
	}

	return finish(result)
}

// recordToolUse folds one call's result into the stall bookkeeping.
func (l *Loop) recordToolUse(call ToolCall, res ToolResult) {
	def, ok := l.tools.Lookup(call.Name)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.usedAnyTool = true
	if ok && def.Category == CategoryWrite && res.Success {
		l.modifiedAnything = true
		if path := pathArgument(call.Arguments); path != "" {
			l.touchedFiles[path] = true
		}
	}
}

// pathArgument pulls the file path out of a write tool's arguments.
func pathArgument(raw json.RawMessage) string {
	var args struct {
		Path     string `json:"path"`
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return ""
	}
	if args.Path != "" {
		return args.Path
	}
	return args.FilePath
}

// untouchedTargetsLocked lists target files no write tool touched.
// Caller holds l.mu.
func (l *Loop) untouchedTargetsLocked() []string {
	var missing []string
	for _, target := range l.targetFiles {
		touched := false
		for path := range l.touchedFiles {
			if path == target || strings.HasSuffix(path, "/"+target) || strings.HasSuffix(target, "/"+path) {
				touched = true
				break
			}
		}
		if !touched {
			missing = append(missing, target)
		}
	}
	return missing
}

// compactTranscript applies the compaction policy before an inference call.
func (l *Loop) compactTranscript(ctx context.Context) {
	if l.compactor == nil {
		return
	}

	transcript := l.Transcript()
	res, err := l.compactor.Compact(ctx, toCompactSources(transcript))
	if err != nil || res.Strategy == compact.StrategyNone {
		return
	}

	if decision, hookErr := l.hooks.PreCompact(ctx, transcript); hookErr != nil {
		l.log.Warn("pre-compact hook failed", "error", hookErr)
	} else if decision.PreservedContext != "" {
		res.Block = "Preserved context:\n" + decision.PreservedContext + "\n\n" + res.Block
	}

	block := NewCompactionBlock(res.Block, res.ReplacedMessages, res.OriginalTokens)
	l.mu.Lock()
	kept := l.transcript[len(l.transcript)-res.Keep:]
	l.transcript = append([]Message{block}, kept...)
	l.mu.Unlock()

	l.log.Info("transcript compacted",
		"strategy", string(res.Strategy), "saved_tokens", res.SavedTokens, "replaced", res.ReplacedMessages)
	l.emitter.Emit(Event{Kind: EventContextCompressed, ContextCompressed: &ContextCompressedEvent{
		Strategy:         string(res.Strategy),
		SavedTokens:      res.SavedTokens,
		ReplacedMessages: res.ReplacedMessages,
	}})
}

func (l *Loop) drainSteering() {
	l.mu.Lock()
	queued := l.steering
	l.steering = nil
	l.mu.Unlock()
	for _, msg := range queued {
		l.appendMessage(NewSystemMessage(msg))
	}
}

func (l *Loop) appendMessage(m Message) {
	l.mu.Lock()
	l.transcript = append(l.transcript, m)
	l.mu.Unlock()
	l.emitter.Emit(Event{Kind: EventMessage, Message: &MessageEvent{Message: m}})
}

func (l *Loop) isInterrupted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interrupted
}

func (l *Loop) totalUsage() inference.Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage
}

func (l *Loop) addUsage(u inference.Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage = l.usage.Add(u)
}

func (l *Loop) finish(reason StopReason, iterations int, finalMessage string) (*RunResult, error) {
	return &RunResult{
		FinalMessage: finalMessage,
		StopReason:   reason,
		Iterations:   iterations,
		Usage:        l.totalUsage(),
	}, nil
}
