package agent

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestRateLimiterAllow(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("third request inside the window should be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("limits are per key")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	rl.Allow("a")
	rl.evict(time.Now().Add(2 * time.Minute))

	rl.mu.Lock()
	n := len(rl.requests)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected stale keys to be evicted, %d left", n)
	}
	if !rl.Allow("a") {
		t.Fatal("evicted key should be allowed again")
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := NewRateLimiter(1, time.Millisecond)
	rl.Stop()
	rl.Stop()
}
