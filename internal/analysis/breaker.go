// Package analysis gates calls to the external multimodal reasoning
// service: a debounce interval plus a circuit breaker isolate the core from
// a slow or failing service, and successful suggestions are handed to the
// intervention orchestrator.
package analysis

import (
	"sync"
	"time"
)

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	CallInterval time.Duration // minimum spacing between call attempts
	MaxFailures  int           // consecutive failures before opening
	Cooldown     time.Duration // hold-open duration before a half-open probe
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		CallInterval: 30 * time.Second,
		MaxFailures:  3,
		Cooldown:     2 * time.Minute,
	}
}

// CircuitBreaker rate-limits and fault-isolates the reasoning service.
// Comparisons use wall-clock instants passed in by the caller; time.Time
// carries a monotonic reading so a delayed tick thread cannot skew the
// debounce or cooldown windows.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu                  sync.Mutex
	consecutiveFailures int
	openedAt            time.Time // zero when closed
	lastCallAt          time.Time // zero before the first attempt
}

// NewCircuitBreaker creates a breaker with the given thresholds.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &CircuitBreaker{cfg: cfg}
}

// ShouldCall reports whether a call attempt is permitted at now. False
// during the debounce window after the previous attempt, and false while
// the breaker is open and the cooldown has not elapsed. Exactly at
// openedAt+cooldown a single half-open probe is allowed.
func (b *CircuitBreaker) ShouldCall(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.lastCallAt.IsZero() && now.Sub(b.lastCallAt) < b.cfg.CallInterval {
		return false
	}
	if !b.openedAt.IsZero() && now.Sub(b.openedAt) < b.cfg.Cooldown {
		return false
	}
	return true
}

// MarkAttempt stamps the debounce clock. Called when a call is actually
// dispatched, so rejected triggers do not push the window forward.
func (b *CircuitBreaker) MarkAttempt(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastCallAt = now
}

// RecordResult updates breaker state from a call outcome. Success closes
// an open breaker and clears the failure count. Failure increments it and,
// at MaxFailures, opens the breaker (re-stamping openedAt on every failure
// at or past the limit, so a failed half-open probe restarts the cooldown).
func (b *CircuitBreaker) RecordResult(success bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.consecutiveFailures = 0
		b.openedAt = time.Time{}
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.cfg.MaxFailures {
		b.openedAt = now
	}
}

// IsOpen reports whether the breaker is currently open.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openedAt.IsZero()
}

// ConsecutiveFailures returns the current failure streak.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
