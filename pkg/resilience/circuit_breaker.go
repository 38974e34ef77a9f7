package resilience

import (
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	// BreakerHalfOpen lets a single probe through after the cooldown.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after threshold consecutive failures and stays open
// for cooldown. The first call after the cooldown is a probe: success closes
// the breaker, failure opens it again straight away.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may go ahead.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == BreakerOpen && c.now().Sub(c.openedAt) >= c.cooldown {
		c.state = BreakerHalfOpen
	}
	return c.state != BreakerOpen
}

func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.state = BreakerClosed
	c.failures = 0
	c.mu.Unlock()
}

// OnError counts a failure and reports whether it opened the breaker.
func (c *CircuitBreaker) OnError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.state != BreakerHalfOpen && c.failures < c.threshold {
		return false
	}
	c.state = BreakerOpen
	c.failures = 0
	c.openedAt = c.now()
	return true
}
