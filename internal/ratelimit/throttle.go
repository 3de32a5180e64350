// Package ratelimit holds the mention-fetch throttle and the platform backoff policy.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rounding slack for the limiter's float token math.
const tolerance = time.Millisecond

// Throttle admits at most one mentions fetch per minimum delay, measured from
// the start of the previously admitted fetch. Time is passed in explicitly.
type Throttle struct {
	mu       sync.Mutex
	minDelay time.Duration
	limiter  *rate.Limiter
	last     time.Time
}

func NewThrottle(minDelay time.Duration) *Throttle {
	t := &Throttle{minDelay: minDelay}
	if minDelay > 0 {
		t.limiter = rate.NewLimiter(rate.Every(minDelay), 1)
	}
	return t
}

// Allow reports whether a fetch may start at now. When it may, now is recorded
// as the last check; otherwise the remaining wait is returned and nothing changes.
func (t *Throttle) Allow(now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limiter == nil {
		t.last = now
		return true, 0
	}
	r := t.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, t.minDelay
	}
	if wait := r.DelayFrom(now); wait > tolerance {
		r.CancelAt(now)
		return false, wait
	}
	t.last = now
	return true, 0
}

func (t *Throttle) MinDelay() time.Duration { return t.minDelay }

// LastCheck is the start time of the last admitted fetch, zero if none.
func (t *Throttle) LastCheck() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
