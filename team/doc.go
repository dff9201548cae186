// Package team provides the cross-agent coordination layer: an agent
// registry with per-agent mailboxes, direct/broadcast/query messaging, a
// risk-gated plan approval protocol, and a small versioned JSON store for
// shared team state.
//
// The MessageBus is the one piece of state shared across sessions, so all
// registry and mailbox mutation is serialized behind its lock. The
// ApprovalGate auto-approves low-risk work and funnels everything else
// through a strictly serial, FIFO approval queue with a timeout fallback
// whose policy (fail-open or fail-closed) is configurable.
package team
