package analysis

import (
	"testing"
	"time"
)

func testBreaker() *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfig{
		CallInterval: 30 * time.Second,
		MaxFailures:  3,
		Cooldown:     2 * time.Minute,
	})
}

func TestShouldCallDebounce(t *testing.T) {
	b := testBreaker()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !b.ShouldCall(t0) {
		t.Fatal("first call should be permitted")
	}
	b.MarkAttempt(t0)

	if b.ShouldCall(t0.Add(10 * time.Second)) {
		t.Fatal("call inside debounce window should be rejected")
	}
	if !b.ShouldCall(t0.Add(30 * time.Second)) {
		t.Fatal("call at exactly the debounce boundary should be permitted")
	}
}

func TestRejectedTriggerDoesNotPushDebounce(t *testing.T) {
	b := testBreaker()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.MarkAttempt(t0)

	// A rejected trigger calls ShouldCall but never MarkAttempt.
	b.ShouldCall(t0.Add(10 * time.Second))

	if !b.ShouldCall(t0.Add(30 * time.Second)) {
		t.Fatal("debounce window moved without a dispatched call")
	}
}

func TestBreakerOpensAtMaxFailures(t *testing.T) {
	b := testBreaker()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	b.RecordResult(false, t0)
	b.RecordResult(false, t0.Add(time.Minute))
	if b.IsOpen() {
		t.Fatal("breaker opened before max failures")
	}
	b.RecordResult(false, t0.Add(2*time.Minute))
	if !b.IsOpen() {
		t.Fatal("breaker not open at max failures")
	}
	if got := b.ConsecutiveFailures(); got != 3 {
		t.Fatalf("consecutive failures = %d, want 3", got)
	}
}

func TestHalfOpenProbeAtCooldownBoundary(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{
		CallInterval: time.Second,
		MaxFailures:  1,
		Cooldown:     2 * time.Minute,
	})
	openedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.RecordResult(false, openedAt)

	if b.ShouldCall(openedAt.Add(time.Minute)) {
		t.Fatal("call permitted while cooldown holds")
	}
	if !b.ShouldCall(openedAt.Add(2 * time.Minute)) {
		t.Fatal("probe not permitted at exactly openedAt+cooldown")
	}
}

func TestFailedProbeRestartsCooldown(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{
		CallInterval: time.Second,
		MaxFailures:  1,
		Cooldown:     2 * time.Minute,
	})
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.RecordResult(false, t0)

	probeAt := t0.Add(2 * time.Minute)
	b.RecordResult(false, probeAt)

	if b.ShouldCall(probeAt.Add(time.Minute)) {
		t.Fatal("cooldown not restarted by the failed probe")
	}
	if !b.ShouldCall(probeAt.Add(2 * time.Minute)) {
		t.Fatal("probe not permitted after the restarted cooldown")
	}
}

func TestSuccessClosesBreaker(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{
		CallInterval: time.Second,
		MaxFailures:  1,
		Cooldown:     2 * time.Minute,
	})
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.RecordResult(false, t0)
	b.RecordResult(true, t0.Add(2*time.Minute))

	if b.IsOpen() {
		t.Fatal("breaker still open after success")
	}
	if got := b.ConsecutiveFailures(); got != 0 {
		t.Fatalf("consecutive failures = %d, want 0", got)
	}
}
