package breaker

import (
	"testing"
	"time"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := New(time.Minute)
	if b.State() != Closed {
		t.Fatalf("expected closed, got %s", b.State())
	}
	if !b.Allow() {
		t.Fatalf("closed breaker must allow requests")
	}
}

func TestBreakerTripBlocksUntilCooldown(t *testing.T) {
	current := time.Unix(0, 0)
	b := New(10 * time.Minute)
	b.now = func() time.Time { return current }

	b.Trip()
	if b.State() != Open {
		t.Fatalf("expected open after trip, got %s", b.State())
	}
	if b.Allow() {
		t.Fatalf("open breaker must short-circuit requests")
	}

	current = current.Add(9 * time.Minute)
	if b.Allow() {
		t.Fatalf("breaker must stay open before cooldown elapses")
	}

	current = current.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatalf("breaker must admit a probe after cooldown")
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	current := time.Unix(0, 0)
	b := New(time.Minute)
	b.now = func() time.Time { return current }

	b.Trip()
	current = current.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatalf("expected probe admitted")
	}
	if b.Allow() {
		t.Fatalf("only one in-flight probe allowed while half-open")
	}

	b.Success()
	if b.State() != Closed {
		t.Fatalf("successful probe must close the breaker, got %s", b.State())
	}
}

func TestBreakerReopensOnProbeBan(t *testing.T) {
	current := time.Unix(0, 0)
	b := New(time.Minute)
	b.now = func() time.Time { return current }

	b.Trip()
	current = current.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatalf("expected probe admitted")
	}

	b.Trip()
	if b.State() != Open {
		t.Fatalf("banned probe must reopen the breaker, got %s", b.State())
	}
	if b.Allow() {
		t.Fatalf("reopened breaker must block until a fresh cooldown elapses")
	}
}
