package ratelimit

import (
	"testing"
	"time"

	"github.com/bakkerme/persona-bot/internal/platform"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestThrottleFirstCheckAllowed(t *testing.T) {
	th := NewThrottle(900 * time.Second)
	ok, wait := th.Allow(base)
	if !ok || wait != 0 {
		t.Fatalf("first Allow() = %v, %v; want true, 0", ok, wait)
	}
	if !th.LastCheck().Equal(base) {
		t.Fatalf("LastCheck = %v, want %v", th.LastCheck(), base)
	}
}

func TestThrottleGate(t *testing.T) {
	th := NewThrottle(900 * time.Second)
	th.Allow(base)

	ok, wait := th.Allow(base.Add(500 * time.Second))
	if ok {
		t.Fatalf("Allow() at 500s should be throttled")
	}
	if diff := wait - 400*time.Second; diff < -time.Second || diff > time.Second {
		t.Fatalf("remaining wait = %v, want ~400s", wait)
	}
	if !th.LastCheck().Equal(base) {
		t.Fatalf("a throttled check must not move the last check time")
	}

	ok, _ = th.Allow(base.Add(901 * time.Second))
	if !ok {
		t.Fatalf("Allow() at 901s should pass")
	}
	ok, _ = th.Allow(base.Add(902 * time.Second))
	if ok {
		t.Fatalf("Allow() right after an admitted check should be throttled")
	}
}

func TestThrottleExactBoundary(t *testing.T) {
	th := NewThrottle(900 * time.Second)
	th.Allow(base)
	if ok, wait := th.Allow(base.Add(900 * time.Second)); !ok {
		t.Fatalf("Allow() at exactly the delay should pass, remaining %v", wait)
	}
}

func TestThrottleDisabled(t *testing.T) {
	th := NewThrottle(0)
	for i := 0; i < 3; i++ {
		if ok, _ := th.Allow(base); !ok {
			t.Fatalf("zero delay should never throttle")
		}
	}
}

func TestBackoffWait(t *testing.T) {
	b := DefaultBackoff()

	cases := []struct {
		name string
		err  *platform.RateLimitError
		want time.Duration
	}{
		{"no hint", &platform.RateLimitError{}, 300 * time.Second},
		{"nil error", nil, 300 * time.Second},
		{"hint in the past", &platform.RateLimitError{Reset: base.Add(-60 * time.Second)}, 60 * time.Second},
		{"hint below floor", &platform.RateLimitError{Reset: base.Add(10 * time.Second)}, 60 * time.Second},
		{"hint in the future", &platform.RateLimitError{Reset: base.Add(8 * time.Minute)}, 8 * time.Minute},
	}
	for _, tc := range cases {
		if got := b.Wait(tc.err, base); got != tc.want {
			t.Fatalf("%s: Wait() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
