package agent

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventTurnStart         EventKind = "turn_start"
	EventTurnEnd           EventKind = "turn_end"
	EventMessage           EventKind = "message"
	EventToolCallStart     EventKind = "tool_call_start"
	EventToolCallEnd       EventKind = "tool_call_end"
	EventTaskProgress      EventKind = "task_progress"
	EventTaskComplete      EventKind = "task_complete"
	EventNotification      EventKind = "notification"
	EventError             EventKind = "error"
	EventContextCompressed EventKind = "context_compressed"
	EventModelFallback     EventKind = "model_fallback"
	EventAgentComplete     EventKind = "agent_complete"
)

// ProgressPhase is the coarse activity phase reported by task_progress.
type ProgressPhase string

const (
	PhaseThinking    ProgressPhase = "thinking"
	PhaseToolPending ProgressPhase = "tool_pending"
	PhaseToolRunning ProgressPhase = "tool_running"
	PhaseGenerating  ProgressPhase = "generating"
	PhaseCompleted   ProgressPhase = "completed"
	PhaseFailed      ProgressPhase = "failed"
)

// Per-kind payloads. Exactly one pointer field of Event is set, matching
// its Kind.

type TurnEvent struct {
	Turn int `json:"turn"`
}

type MessageEvent struct {
	Message Message `json:"message"`
}

type ToolCallStartEvent struct {
	CallID string `json:"call_id"`
	Tool   string `json:"tool"`
}

type ToolCallEndEvent struct {
	CallID   string        `json:"call_id"`
	Tool     string        `json:"tool"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type TaskProgressEvent struct {
	Phase ProgressPhase `json:"phase"`
}

type TaskCompleteEvent struct {
	Iterations int    `json:"iterations"`
	StopReason string `json:"stop_reason"`
}

type NotificationEvent struct {
	Text string `json:"text"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ContextCompressedEvent struct {
	Strategy         string `json:"strategy"`
	SavedTokens      int    `json:"saved_tokens"`
	ReplacedMessages int    `json:"replaced_messages"`
}

type ModelFallbackEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type AgentCompleteEvent struct {
	AgentID string `json:"agent_id"`
}

// Event is a closed tagged union: Kind selects which payload field is set.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`

	Turn              *TurnEvent              `json:"turn,omitempty"`
	Message           *MessageEvent           `json:"message,omitempty"`
	ToolCallStart     *ToolCallStartEvent     `json:"tool_call_start,omitempty"`
	ToolCallEnd       *ToolCallEndEvent       `json:"tool_call_end,omitempty"`
	TaskProgress      *TaskProgressEvent      `json:"task_progress,omitempty"`
	TaskComplete      *TaskCompleteEvent      `json:"task_complete,omitempty"`
	Notification      *NotificationEvent      `json:"notification,omitempty"`
	Error             *ErrorEvent             `json:"error,omitempty"`
	ContextCompressed *ContextCompressedEvent `json:"context_compressed,omitempty"`
	ModelFallback     *ModelFallbackEvent     `json:"model_fallback,omitempty"`
	AgentComplete     *AgentCompleteEvent     `json:"agent_complete,omitempty"`
}

// Emitter delivers typed events to the host application via a channel.
// Presentation and telemetry layers must treat events as opaque
// notifications.
type Emitter struct {
	sessionID string
	ch        chan Event
	closed    bool
	mu        sync.Mutex
}

// NewEmitter creates an Emitter with a buffered channel.
func NewEmitter(sessionID string, bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{
		sessionID: sessionID,
		ch:        make(chan Event, bufferSize),
	}
}

// Emit sends an event. If the emitter is closed or the channel is full, the
// event is dropped rather than blocking the loop.
func (e *Emitter) Emit(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event.Timestamp = time.Now()
	event.SessionID = e.sessionID
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
