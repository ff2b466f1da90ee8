package upstream

import (
	"sync"
	"time"
)

// BreakerState is the admission state of a circuit breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled             bool
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// CircuitBreaker stops routing eth_calls to an upstream after a run of failures.
// After RecoveryTimeout it admits HalfOpenMaxRequests trial calls; that many
// successes close it again, a single failure reopens it.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	clock func() time.Time

	mu          sync.Mutex
	state       BreakerState
	consecutive int
	trials      int
	openedAt    time.Time
	trips       uint64
}

// NewCircuitBreaker creates a closed breaker, filling unset limits
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 2
	}
	return &CircuitBreaker{cfg: cfg, clock: time.Now, state: BreakerClosed}
}

// AllowRequest reports whether the upstream may receive the next call
func (cb *CircuitBreaker) AllowRequest() bool {
	if !cb.cfg.Enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && cb.clock().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		cb.moveTo(BreakerHalfOpen)
	}
	switch cb.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		return cb.trials < cb.cfg.HalfOpenMaxRequests
	}
	return true
}

// RecordSuccess records a successful round trip
func (cb *CircuitBreaker) RecordSuccess() {
	cb.record(true)
}

// RecordFailure records a failed round trip
func (cb *CircuitBreaker) RecordFailure() {
	cb.record(false)
}

func (cb *CircuitBreaker) record(ok bool) {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case ok && cb.state == BreakerHalfOpen:
		cb.trials++
		if cb.trials >= cb.cfg.HalfOpenMaxRequests {
			cb.moveTo(BreakerClosed)
		}
	case ok:
		cb.consecutive = 0
	case cb.state == BreakerHalfOpen:
		cb.moveTo(BreakerOpen)
	case cb.state == BreakerClosed:
		cb.consecutive++
		if cb.consecutive >= cb.cfg.FailureThreshold {
			cb.moveTo(BreakerOpen)
		}
	}
}

// moveTo resets the per-state counters. Caller holds mu.
func (cb *CircuitBreaker) moveTo(state BreakerState) {
	if state == BreakerOpen {
		cb.openedAt = cb.clock()
		if cb.state == BreakerClosed {
			cb.trips++
		}
	}
	cb.state = state
	cb.consecutive = 0
	cb.trials = 0
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Trips returns how many times the breaker opened from closed
func (cb *CircuitBreaker) Trips() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.trips
}
