package ratelimit

import (
	"sync"

	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
)

// Limiter tracks a per-run call budget for one gateway. It is injected
// into the gateway constructor rather than held as process-global state,
// so a simulated-exhaustion test is a one-liner. A zero budget means
// unlimited.
type Limiter struct {
	mu     sync.Mutex
	budget int
	used   int
}

func New(budget int) *Limiter {
	return &Limiter{budget: budget}
}

// Take consumes one call from the budget. Exhaustion surfaces as an
// application error: the API would reject the call, so retrying is
// pointless.
func (l *Limiter) Take() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.budget > 0 && l.used >= l.budget {
		return apperrors.New(apperrors.CodeApplication, "api call budget exhausted")
	}
	l.used++
	return nil
}

// Used returns the number of calls consumed so far.
func (l *Limiter) Used() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

// Remaining returns the calls left in the budget, or -1 when unlimited.
func (l *Limiter) Remaining() int {
	if l == nil {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.budget <= 0 {
		return -1
	}
	return l.budget - l.used
}
