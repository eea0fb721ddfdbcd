// ABOUTME: Bounded exponential backoff schedule for transport reconnects
// ABOUTME: Base 1s doubling to a 30s cap with jitter, at most 10 attempts

package transport

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays. The zero value is not useful; use
// DefaultBackoff or fill every field.
type Backoff struct {
	Base        time.Duration // first delay
	Max         time.Duration // delay cap
	MaxAttempts int           // attempts before giving up
	Jitter      time.Duration // upper bound of the random additive jitter
}

// DefaultBackoff is the schedule the console ships with: 1s, 2s, 4s, ... capped
// at 30s, each plus up to 1s of jitter, for at most 10 attempts. After
// exhaustion the link stays down until an explicit reconnect.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 10,
		Jitter:      time.Second,
	}
}

// Delay returns the wait before the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	if d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return d
}

// ShouldRetry reports whether another attempt is allowed after the given
// number of completed attempts.
func (b Backoff) ShouldRetry(attempts int) bool {
	return attempts < b.MaxAttempts
}
