package platform

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned when the platform refuses a request with
// 429 Too Many Requests. Reset is the zero time when no usable hint was sent.
type RateLimitError struct {
	Endpoint string
	Reset    time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return fmt.Sprintf("platform rate limit exceeded on %s", e.Endpoint)
	}
	return fmt.Sprintf("platform rate limit exceeded on %s (resets at %s)", e.Endpoint, e.Reset.UTC().Format(time.RFC3339))
}

// HasReset reports whether the platform supplied a reset hint.
func (e *RateLimitError) HasReset() bool {
	return e != nil && !e.Reset.IsZero()
}

// AsRateLimit finds a RateLimitError anywhere in err's chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	if err == nil {
		return nil, false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
