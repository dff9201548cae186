package agent

import "sync"

// DefaultBreakerThreshold trips the breaker after this many consecutive
// tool failures.
const DefaultBreakerThreshold = 5

// CircuitBreaker tracks consecutive tool-execution failures across a run.
// It is a fail-fast safeguard against infinite failure loops, not a retry
// mechanism: retries, if any, are the model's responsibility on the next
// inference.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	tripped     bool
	lastError   string
}

// NewCircuitBreaker creates a breaker with the given trip threshold.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	return &CircuitBreaker{threshold: threshold}
}

// RecordFailure increments the consecutive-failure counter and reports
// whether the breaker is now tripped.
func (b *CircuitBreaker) RecordFailure(errText string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	b.lastError = errText
	if b.consecutive >= b.threshold {
		b.tripped = true
	}
	return b.tripped
}

// RecordSuccess resets the consecutive-failure counter.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

// Tripped reports whether the breaker has tripped.
func (b *CircuitBreaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// LastError returns the text of the most recent failure.
func (b *CircuitBreaker) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

// Reset clears all breaker state. Called after a trip has been surfaced so
// the next run starts clean.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.tripped = false
	b.lastError = ""
}
