// Package retry provides the exponential-backoff combinator used for the
// symbol-universe fetch at the start of every cycle.
package retry

import (
	"context"
	"time"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  int
}

// DefaultPolicy retries five times starting at five seconds, doubling
// between attempts: 5s, 10s, 20s, 40s, 80s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   5 * time.Second,
		MaxDelay:    80 * time.Second,
		Multiplier:  2,
	}
}

// Do runs op until it succeeds, the attempts are exhausted, or the
// context is cancelled. shouldRetry may be nil, in which case every
// error is retried. The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, shouldRetry func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if p.Multiplier > 1 {
			delay *= time.Duration(p.Multiplier)
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
