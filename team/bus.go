package team

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Broadcast is the reserved recipient meaning "every other registered agent".
const Broadcast = "all"

// DefaultHistoryLimit caps the bus message history (oldest evicted first).
const DefaultHistoryLimit = 500

// MessageType classifies teammate messages.
type MessageType string

const (
	TypeCoordination MessageType = "coordination"
	TypeHandoff      MessageType = "handoff"
	TypeQuery        MessageType = "query"
	TypeResponse     MessageType = "response"
	TypeBroadcast    MessageType = "broadcast"
)

// Priority orders message handling.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Metadata carries routing and correlation data for a message.
type Metadata struct {
	TaskID           string   `json:"task_id,omitempty"`
	Priority         Priority `json:"priority,omitempty"`
	RequiresResponse bool     `json:"requires_response,omitempty"`
	ResponseTo       string   `json:"response_to,omitempty"`
}

// Message is one teammate message. It is never mutated after delivery.
type Message struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"` // Broadcast fans out to all other agents
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Metadata  Metadata    `json:"metadata"`
}

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	StatusIdle    AgentStatus = "idle"
	StatusWorking AgentStatus = "working"
	StatusWaiting AgentStatus = "waiting"
)

// RegisteredAgent is one addressable agent on the bus.
type RegisteredAgent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	Status       AgentStatus `json:"status"`
	RegisteredAt time.Time   `json:"registered_at"`
	LastActiveAt time.Time   `json:"last_active_at"`
}

// Mailbox holds an agent's delivered and sent messages.
type Mailbox struct {
	Inbox       []Message `json:"inbox"`
	Outbox      []Message `json:"outbox"`
	UnreadCount int       `json:"unread_count"`
}

// MessageBus is the agent registry plus per-agent mailboxes. It is shared
// across sessions by design; every mutation runs under the bus lock.
type MessageBus struct {
	mu           sync.Mutex
	agents       map[string]*RegisteredAgent
	mailboxes    map[string]*Mailbox
	history      []Message
	historyLimit int

	// signals wakes waiters when a response to the keyed query arrives.
	signals map[string]chan struct{}
}

// NewMessageBus creates an empty bus with the default history cap.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		agents:       make(map[string]*RegisteredAgent),
		mailboxes:    make(map[string]*Mailbox),
		historyLimit: DefaultHistoryLimit,
		signals:      make(map[string]chan struct{}),
	}
}

// SetHistoryLimit overrides the history cap. Values below 1 are ignored.
func (b *MessageBus) SetHistoryLimit(n int) {
	if n < 1 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.historyLimit = n
	b.evictLocked()
}

// Register creates a RegisteredAgent and an empty Mailbox.
func (b *MessageBus) Register(id, name, role string) (*RegisteredAgent, error) {
	if id == "" || id == Broadcast {
		return nil, fmt.Errorf("invalid agent id %q", id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.agents[id]; exists {
		return nil, fmt.Errorf("agent %q already registered", id)
	}
	now := time.Now()
	agent := &RegisteredAgent{
		ID:           id,
		Name:         name,
		Role:         role,
		Status:       StatusIdle,
		RegisteredAt: now,
		LastActiveAt: now,
	}
	b.agents[id] = agent
	b.mailboxes[id] = &Mailbox{}
	copied := *agent
	return &copied, nil
}

// Unregister removes the agent and its mailbox.
func (b *MessageBus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, id)
	delete(b.mailboxes, id)
}

// Agents returns a snapshot of all registered agents.
func (b *MessageBus) Agents() []RegisteredAgent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RegisteredAgent, 0, len(b.agents))
	for _, a := range b.agents {
		out = append(out, *a)
	}
	return out
}

// SetStatus updates an agent's status and activity timestamp.
func (b *MessageBus) SetStatus(id string, status AgentStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.agents[id]; ok {
		a.Status = status
		a.LastActiveAt = time.Now()
	}
}

// Send delivers a message. A Broadcast recipient fans out to every other
// registered agent; otherwise the message lands in exactly one inbox.
// The completed message (with assigned ID and timestamp) is returned.
func (b *MessageBus) Send(from, to string, msgType MessageType, content string, meta Metadata) (*Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sender, ok := b.agents[from]
	if !ok {
		return nil, fmt.Errorf("sender %q not registered", from)
	}
	if meta.Priority == "" {
		meta.Priority = PriorityNormal
	}

	msg := Message{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  meta,
	}

	if to == Broadcast {
		delivered := 0
		for id, box := range b.mailboxes {
			if id == from {
				continue
			}
			box.Inbox = append(box.Inbox, msg)
			box.UnreadCount++
			delivered++
		}
		if delivered == 0 {
			return nil, fmt.Errorf("broadcast from %q reached no agents", from)
		}
	} else {
		box, ok := b.mailboxes[to]
		if !ok {
			return nil, fmt.Errorf("recipient %q not registered", to)
		}
		box.Inbox = append(box.Inbox, msg)
		box.UnreadCount++
	}

	if senderBox, ok := b.mailboxes[from]; ok {
		senderBox.Outbox = append(senderBox.Outbox, msg)
	}
	sender.LastActiveAt = msg.Timestamp

	b.history = append(b.history, msg)
	b.evictLocked()

	// Wake any waiter blocked on the query this message answers.
	if msg.Type == TypeResponse && msg.Metadata.ResponseTo != "" {
		if ch, ok := b.signals[msg.Metadata.ResponseTo]; ok {
			close(ch)
			delete(b.signals, msg.Metadata.ResponseTo)
		}
	}

	return &msg, nil
}

// Inbox returns the agent's inbox. When markRead is set, the unread counter
// resets to zero.
func (b *MessageBus) Inbox(id string, markRead bool) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	box, ok := b.mailboxes[id]
	if !ok {
		return nil
	}
	out := make([]Message, len(box.Inbox))
	copy(out, box.Inbox)
	if markRead {
		box.UnreadCount = 0
	}
	return out
}

// UnreadCount returns the agent's unread message count.
func (b *MessageBus) UnreadCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if box, ok := b.mailboxes[id]; ok {
		return box.UnreadCount
	}
	return 0
}

// ClearInbox empties an agent's inbox.
func (b *MessageBus) ClearInbox(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if box, ok := b.mailboxes[id]; ok {
		box.Inbox = nil
		box.UnreadCount = 0
	}
}

// History returns a snapshot of the capped message history.
func (b *MessageBus) History() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.history))
	copy(out, b.history)
	return out
}

// IsAnswered reports whether any response message correlated to queryID
// exists in history. The history lookup, not a counter, is the single
// source of truth for "is this query still pending".
func (b *MessageBus) IsAnswered(queryID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isAnsweredLocked(queryID)
}

func (b *MessageBus) isAnsweredLocked(queryID string) bool {
	for _, m := range b.history {
		if m.Type == TypeResponse && m.Metadata.ResponseTo == queryID {
			return true
		}
	}
	return false
}

// ResponseSignal returns a channel that closes once a response to queryID
// arrives. If one already exists in history, the returned channel is
// already closed.
func (b *MessageBus) ResponseSignal(queryID string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isAnsweredLocked(queryID) {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if ch, ok := b.signals[queryID]; ok {
		return ch
	}
	ch := make(chan struct{})
	b.signals[queryID] = ch
	return ch
}

// ResponseTo returns the response message for queryID, if any.
func (b *MessageBus) ResponseTo(queryID string) (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.history) - 1; i >= 0; i-- {
		m := b.history[i]
		if m.Type == TypeResponse && m.Metadata.ResponseTo == queryID {
			copied := m
			return &copied, true
		}
	}
	return nil, false
}

func (b *MessageBus) evictLocked() {
	if over := len(b.history) - b.historyLimit; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
}
