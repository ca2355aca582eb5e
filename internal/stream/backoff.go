package stream

import (
	"sync"
	"time"
)

// ReconnectPolicy decides whether and when a failed connection is retried.
// Delay grows as base*2^attempt, capped at maxDelay; after maxAttempts
// failures without an intervening success the connection is given up on.
// Counters are independent per connection id and safe for concurrent use.
type ReconnectPolicy struct {
	mu          sync.Mutex
	attempts    map[string]int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Action tells the caller what to do about a failed connection.
type Action struct {
	Retry bool
	Delay time.Duration
	// Attempt is the zero-based attempt number this failure consumed.
	Attempt int
}

func NewReconnectPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *ReconnectPolicy {
	return &ReconnectPolicy{
		attempts:    make(map[string]int),
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// OnFailure records a failure for the connection and returns either a
// retry-after action or a give-up.
func (p *ReconnectPolicy) OnFailure(connID string) Action {
	p.mu.Lock()
	defer p.mu.Unlock()

	attempt := p.attempts[connID]
	if attempt >= p.maxAttempts {
		delete(p.attempts, connID)
		return Action{Retry: false, Attempt: attempt}
	}
	p.attempts[connID] = attempt + 1

	delay := p.baseDelay << uint(attempt)
	if delay > p.maxDelay || delay <= 0 {
		delay = p.maxDelay
	}
	return Action{Retry: true, Delay: delay, Attempt: attempt}
}

// OnSuccess resets the connection's attempt counter after a successful
// (re)connect.
func (p *ReconnectPolicy) OnSuccess(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, connID)
}

// Forget drops all bookkeeping for a connection that is going away.
func (p *ReconnectPolicy) Forget(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, connID)
}
