package ratelimit

import (
	"time"

	"github.com/bakkerme/persona-bot/internal/platform"
)

const (
	DefaultMinWait      = 60 * time.Second
	DefaultFallbackWait = 300 * time.Second
)

// Backoff turns a platform rate-limit signal into a sleep duration.
type Backoff struct {
	// MinWait floors waits derived from a reset hint.
	MinWait time.Duration
	// FallbackWait is used when the platform gave no reset hint.
	FallbackWait time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{MinWait: DefaultMinWait, FallbackWait: DefaultFallbackWait}
}

func (b Backoff) Wait(rl *platform.RateLimitError, now time.Time) time.Duration {
	if rl == nil || !rl.HasReset() {
		return b.FallbackWait
	}
	wait := rl.Reset.Sub(now)
	if wait < b.MinWait {
		wait = b.MinWait
	}
	return wait
}
