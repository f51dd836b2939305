// Package breaker implements the timed circuit breaker that guards the
// upstream client against hammering the exchange after a rate-limit ban.
package breaker

import (
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	// Closed lets every request through.
	Closed State = iota
	// Open short-circuits every request until the cooldown elapses.
	Open
	// HalfOpen lets a single probe request through; its outcome decides
	// whether the breaker closes again or re-opens.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a three-state circuit breaker with a timed reset. It is
// tripped explicitly when the upstream signals a ban (HTTP 403/418) and
// recovers through a half-open probe after the cooldown.
type Breaker struct {
	mu       sync.Mutex
	state    State
	cooldown time.Duration
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// New creates a closed breaker with the given cooldown.
func New(cooldown time.Duration) *Breaker {
	return &Breaker{
		state:    Closed,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Allow reports whether a request may proceed. While open it returns
// false until the cooldown has elapsed; the first call after that moves
// the breaker to half-open and admits a single probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = HalfOpen
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Trip opens the breaker, restarting the cooldown window.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Open
	b.openedAt = b.now()
	b.probing = false
}

// Success records a request that completed without a ban response. A
// successful half-open probe closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.state = Closed
	}
	b.probing = false
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
