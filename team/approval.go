package team

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessellate-ai/helmsman/logging"
)

// ApprovalStatus is the lifecycle state of a plan submission.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// Policy selects the timeout failure mode for gated submissions.
type Policy string

const (
	// FailOpen approves a submission once the wait times out. This is the
	// availability-over-strictness default: workers are never blocked
	// indefinitely on an absent coordinator.
	FailOpen Policy = "fail_open"
	// FailClosed rejects a submission once the wait times out.
	FailClosed Policy = "fail_closed"
)

// PlanSubmission is one plan awaiting (or past) coordinator review.
type PlanSubmission struct {
	ID            string         `json:"id"`
	AgentID       string         `json:"agent_id"`
	CoordinatorID string         `json:"coordinator_id"`
	Plan          string         `json:"plan"`
	Risk          Risk           `json:"risk"`
	Status        ApprovalStatus `json:"status"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	Feedback      string         `json:"feedback,omitempty"`

	queryID string
}

// Decision is the outcome Submit returns to the worker agent.
type Decision struct {
	Approved     bool   `json:"approved"`
	AutoApproved bool   `json:"auto_approved"`
	Feedback     string `json:"feedback,omitempty"`
	SubmissionID string `json:"submission_id"`
	Risk         Risk   `json:"risk"`
}

// DefaultApprovalTimeout bounds how long a gated submission waits.
const DefaultApprovalTimeout = 60 * time.Second

type pendingSubmission struct {
	sub  PlanSubmission
	done chan struct{}
}

// ApprovalGate assesses plan risk, auto-approves low risk, and serializes
// everything else through a single-flight FIFO approval queue.
type ApprovalGate struct {
	bus           *MessageBus
	coordinatorID string
	timeout       time.Duration
	policy        Policy
	log           logging.Logger

	// queue admits one gated submission at a time, in arrival order.
	queue sync.Mutex

	mu          sync.Mutex
	submissions map[string]*pendingSubmission
}

// GateOption configures an ApprovalGate.
type GateOption func(*ApprovalGate)

// WithTimeout overrides the approval wait timeout.
func WithTimeout(d time.Duration) GateOption {
	return func(g *ApprovalGate) { g.timeout = d }
}

// WithPolicy selects the timeout failure mode.
func WithPolicy(p Policy) GateOption {
	return func(g *ApprovalGate) { g.policy = p }
}

// WithLogger sets the gate's logger.
func WithLogger(l logging.Logger) GateOption {
	return func(g *ApprovalGate) { g.log = l }
}

// NewApprovalGate creates a gate that announces submissions to the given
// coordinator over the bus.
func NewApprovalGate(bus *MessageBus, coordinatorID string, opts ...GateOption) *ApprovalGate {
	g := &ApprovalGate{
		bus:           bus,
		coordinatorID: coordinatorID,
		timeout:       DefaultApprovalTimeout,
		policy:        FailOpen,
		log:           logging.Discard(),
		submissions:   make(map[string]*pendingSubmission),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit assesses the request, auto-approving low risk and gating medium
// and high risk through the serial approval queue. It blocks until the
// coordinator resolves the submission, the timeout elapses, or ctx is
// cancelled.
func (g *ApprovalGate) Submit(ctx context.Context, agentID, plan string, req ExecutionRequest) (*Decision, error) {
	risk := AssessRisk(req)

	sub := PlanSubmission{
		ID:            uuid.New().String(),
		AgentID:       agentID,
		CoordinatorID: g.coordinatorID,
		Plan:          plan,
		Risk:          risk,
		Status:        StatusPending,
		SubmittedAt:   time.Now(),
	}

	if risk.Level == RiskLow {
		now := time.Now()
		sub.Status = StatusApproved
		sub.ResolvedAt = &now
		sub.Feedback = "auto-approved: low risk"
		g.record(&pendingSubmission{sub: sub})
		return &Decision{
			Approved:     true,
			AutoApproved: true,
			Feedback:     sub.Feedback,
			SubmissionID: sub.ID,
			Risk:         risk,
		}, nil
	}

	// One gated submission in flight at a time, FIFO.
	g.queue.Lock()
	defer g.queue.Unlock()

	done := make(chan struct{})
	pending := &pendingSubmission{sub: sub, done: done}

	// Announce and record under one critical section: Resolve must never
	// observe the submission without its queryID, or the resolution
	// response is lost.
	g.mu.Lock()
	g.announceLocked(&pending.sub)
	g.submissions[pending.sub.ID] = pending
	g.mu.Unlock()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case <-done:
		g.mu.Lock()
		resolved := pending.sub
		g.mu.Unlock()
		return &Decision{
			Approved:     resolved.Status == StatusApproved,
			Feedback:     resolved.Feedback,
			SubmissionID: resolved.ID,
			Risk:         risk,
		}, nil

	case <-timer.C:
		return g.resolveTimeout(pending), nil

	case <-ctx.Done():
		g.resolve(pending, StatusRejected, "submission cancelled")
		return nil, ctx.Err()
	}
}

// Resolve records the coordinator's verdict for a pending submission and
// wakes its submitter.
func (g *ApprovalGate) Resolve(submissionID string, approved bool, feedback string) error {
	g.mu.Lock()
	pending, ok := g.submissions[submissionID]
	if !ok || pending.sub.Status != StatusPending {
		g.mu.Unlock()
		return fmt.Errorf("no pending submission %q", submissionID)
	}
	g.mu.Unlock()

	status := StatusRejected
	if approved {
		status = StatusApproved
	}
	g.resolve(pending, status, feedback)

	g.mu.Lock()
	resolved := pending.sub
	g.mu.Unlock()

	// Answer the announcement query so the bus history reflects resolution.
	if resolved.queryID != "" && g.bus != nil {
		_, err := g.bus.Send(g.coordinatorID, resolved.AgentID, TypeResponse,
			fmt.Sprintf("plan %s: %s", resolved.ID, status),
			Metadata{ResponseTo: resolved.queryID, Priority: PriorityHigh})
		if err != nil {
			g.log.Warn("approval response not delivered", "submission", resolved.ID, "error", err)
		}
	}
	return nil
}

// Submissions returns a snapshot of all tracked submissions.
func (g *ApprovalGate) Submissions() []PlanSubmission {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PlanSubmission, 0, len(g.submissions))
	for _, p := range g.submissions {
		out = append(out, p.sub)
	}
	return out
}

// Pending returns submissions still awaiting resolution.
func (g *ApprovalGate) Pending() []PlanSubmission {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []PlanSubmission
	for _, p := range g.submissions {
		if p.sub.Status == StatusPending {
			out = append(out, p.sub)
		}
	}
	return out
}

func (g *ApprovalGate) record(p *pendingSubmission) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submissions[p.sub.ID] = p
}

// announceLocked notifies the coordinator via a high-priority query.
// Caller holds g.mu.
func (g *ApprovalGate) announceLocked(sub *PlanSubmission) {
	if g.bus == nil || g.coordinatorID == "" {
		return
	}
	content := fmt.Sprintf("Approval requested (%s risk): %s", sub.Risk.Level, sub.Plan)
	if len(sub.Risk.Reasons) > 0 {
		content += "\nReasons: " + strings.Join(sub.Risk.Reasons, "; ")
	}
	msg, err := g.bus.Send(sub.AgentID, g.coordinatorID, TypeQuery, content, Metadata{
		TaskID:           sub.ID,
		Priority:         PriorityHigh,
		RequiresResponse: true,
	})
	if err != nil {
		g.log.Warn("approval announcement not delivered", "submission", sub.ID, "error", err)
		return
	}
	sub.queryID = msg.ID
}

func (g *ApprovalGate) resolveTimeout(pending *pendingSubmission) *Decision {
	approved := g.policy == FailOpen
	status := StatusRejected
	feedback := "rejected by timeout"
	if approved {
		status = StatusApproved
		feedback = "approved by timeout"
	}
	g.resolve(pending, status, feedback)
	g.log.Info("approval timed out", "submission", pending.sub.ID, "policy", string(g.policy))
	return &Decision{
		Approved:     approved,
		AutoApproved: true,
		Feedback:     feedback,
		SubmissionID: pending.sub.ID,
		Risk:         pending.sub.Risk,
	}
}

// resolve marks a gated submission resolved and wakes its submitter.
// The status check under g.mu makes the close happen at most once.
func (g *ApprovalGate) resolve(pending *pendingSubmission, status ApprovalStatus, feedback string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pending.sub.Status != StatusPending {
		return
	}
	now := time.Now()
	pending.sub.Status = status
	pending.sub.ResolvedAt = &now
	pending.sub.Feedback = feedback
	if pending.done != nil {
		close(pending.done)
	}
}
