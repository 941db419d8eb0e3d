// Package presence rate-limits ephemeral pointer traffic.
package presence

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval allows 20 cursor relays per second.
const DefaultInterval = 50 * time.Millisecond

// Throttle decides whether a session's cursor event may be forwarded.
//
// It is a single-token bucket refilled once per interval: an event is
// forwarded only when at least one interval has passed since the last
// forwarded event. Events in between are dropped, never queued or replayed.
// A Throttle belongs to one session and is safe for concurrent use.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a Throttle with the given minimum spacing.
// A non-positive interval uses DefaultInterval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// ShouldForward reports whether an event arriving at now may be relayed.
// A true result consumes the slot, so the next event is allowed no earlier
// than now plus the interval.
func (t *Throttle) ShouldForward(now time.Time) bool {
	return t.limiter.AllowN(now, 1)
}
