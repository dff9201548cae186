package team

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tessellate-ai/helmsman/agent"
	"github.com/tessellate-ai/helmsman/compact"
	"github.com/tessellate-ai/helmsman/inference"
)

// TeammateStatus is the lifecycle state of a spawned teammate.
type TeammateStatus string

const (
	TeammateRunning   TeammateStatus = "running"
	TeammateCompleted TeammateStatus = "completed"
	TeammateFailed    TeammateStatus = "failed"
)

// TeammateResult holds the output of a finished teammate.
type TeammateResult struct {
	Output     string `json:"output"`
	Success    bool   `json:"success"`
	Iterations int    `json:"iterations"`
}

// Teammate tracks one spawned agent loop registered on the bus.
type Teammate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`

	loop   *agent.Loop
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status TeammateStatus
	result *TeammateResult
}

// Status returns the teammate's current lifecycle state.
func (t *Teammate) Status() TeammateStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the teammate's result, nil while still running.
func (t *Teammate) Result() *TeammateResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Done returns a channel closed when the teammate finishes.
func (t *Teammate) Done() <-chan struct{} { return t.done }

// Events exposes the teammate loop's event stream.
func (t *Teammate) Events() <-chan agent.Event { return t.loop.Events() }

// Manager spawns teammate loops and wires them to the shared message bus.
// Each teammate gets its own Loop; the bus is the only shared state.
type Manager struct {
	bus  *MessageBus
	deps agent.Deps
	cfg  agent.Config
	max  int

	mu        sync.RWMutex
	teammates map[string]*Teammate
}

// NewManager creates a manager that spawns at most max concurrent
// teammates. max <= 0 means unlimited.
func NewManager(bus *MessageBus, deps agent.Deps, cfg agent.Config, max int) *Manager {
	return &Manager{
		bus:       bus,
		deps:      deps,
		cfg:       cfg,
		max:       max,
		teammates: make(map[string]*Teammate),
	}
}

// Spawn registers a teammate on the bus and starts its loop on the task.
func (m *Manager) Spawn(ctx context.Context, name, role, task string) (*Teammate, error) {
	m.mu.Lock()
	if m.max > 0 {
		active := 0
		for _, t := range m.teammates {
			if t.Status() == TeammateRunning {
				active++
			}
		}
		if active >= m.max {
			m.mu.Unlock()
			return nil, fmt.Errorf("teammate limit (%d) reached", m.max)
		}
	}
	m.mu.Unlock()

	id := uuid.New().String()
	if _, err := m.bus.Register(id, name, role); err != nil {
		return nil, err
	}

	cfg := m.cfg
	if cfg.ContextBudget == 0 {
		cfg.ContextBudget = inference.ContextWindowFor(cfg.Model)
	}
	if cfg.SystemPrompt != "" && cfg.WorkingDir != "" {
		cfg.SystemPrompt = agent.BuildSystemPrompt(cfg.SystemPrompt, cfg.WorkingDir, cfg.Model)
	}

	deps := m.deps
	if deps.Compactor == nil && deps.Inference != nil {
		deps.Compactor = compact.New(nil, compact.DefaultConfig(cfg.ContextBudget),
			compact.WithSummarizer(compact.NewServiceSummarizer(deps.Inference, cfg.Model)))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t := &Teammate{
		ID:     id,
		Name:   name,
		Role:   role,
		loop:   agent.NewLoop(deps, &cfg),
		cancel: cancel,
		done:   make(chan struct{}),
		status: TeammateRunning,
	}

	m.mu.Lock()
	m.teammates[id] = t
	m.mu.Unlock()

	m.bus.SetStatus(id, StatusWorking)

	go func() {
		defer close(t.done)
		defer t.loop.Close()

		res, err := t.loop.Run(loopCtx, task)

		t.mu.Lock()
		defer t.mu.Unlock()
		if err != nil {
			t.status = TeammateFailed
			t.result = &TeammateResult{Output: fmt.Sprintf("Error: %v", err)}
		} else {
			t.status = TeammateCompleted
			t.result = &TeammateResult{
				Output:     res.FinalMessage,
				Success:    res.StopReason == agent.StopCompleted,
				Iterations: res.Iterations,
			}
		}
		m.bus.SetStatus(id, StatusIdle)
	}()

	return t, nil
}

// Get returns a teammate by ID.
func (m *Manager) Get(id string) (*Teammate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teammates[id]
	return t, ok
}

// Teammates returns all spawned teammates.
func (m *Manager) Teammates() []*Teammate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Teammate, 0, len(m.teammates))
	for _, t := range m.teammates {
		out = append(out, t)
	}
	return out
}

// Wait blocks until the teammate finishes or the context ends.
func (m *Manager) Wait(ctx context.Context, id string) (*TeammateResult, error) {
	t, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("teammate %s not found", id)
	}
	select {
	case <-t.done:
		return t.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeliverInbox drains a teammate's bus inbox into its loop as steering
// messages. Returns the number of messages delivered.
func (m *Manager) DeliverInbox(id string) (int, error) {
	t, ok := m.Get(id)
	if !ok {
		return 0, fmt.Errorf("teammate %s not found", id)
	}

	inbox := m.bus.Inbox(id, true)
	delivered := 0
	for _, msg := range inbox {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Message from teammate %s (%s): %s", msg.From, msg.Type, msg.Content)
		if msg.Metadata.RequiresResponse {
			fmt.Fprintf(&sb, "\nRespond by sending a %s message with response_to=%s.", TypeResponse, msg.ID)
		}
		t.loop.Steer(sb.String())
		delivered++
	}
	m.bus.ClearInbox(id)
	return delivered, nil
}

// Close interrupts a teammate and removes it from the bus. The loop gets a
// chance to stop at its iteration boundary before the context is cut.
func (m *Manager) Close(id string) error {
	t, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("teammate %s not found", id)
	}

	t.loop.Interrupt()
	t.cancel()
	<-t.done
	m.bus.Unregister(id)

	m.mu.Lock()
	delete(m.teammates, id)
	m.mu.Unlock()
	return nil
}

// CloseAll terminates every teammate.
func (m *Manager) CloseAll() {
	for _, t := range m.Teammates() {
		_ = m.Close(t.ID)
	}
}
