package api

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("Expected first two requests to be allowed")
	}
	if rl.Allow("u1") {
		t.Error("Expected third request within window to be rejected")
	}
	if !rl.Allow("u2") {
		t.Error("Expected other keys to be unaffected")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("u1") {
		t.Error("Expected request after window to be allowed")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Allow("stale")

	now = now.Add(2 * time.Minute)
	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.requests["stale"]; ok {
		t.Error("Expected stale key to be evicted")
	}
}
