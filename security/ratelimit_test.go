package security

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 2, 0, nil)
	defer rl.Stop()

	// Burst of 2 is allowed, the third call is not
	if !rl.Allow("10.0.0.1") {
		t.Error("first call denied, want allowed")
	}
	if !rl.Allow("10.0.0.1") {
		t.Error("second call denied, want allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third call allowed, want denied")
	}

	// Separate identifiers have separate buckets
	if !rl.Allow("10.0.0.2") {
		t.Error("call from fresh identifier denied, want allowed")
	}
}

func TestRateLimiterLRUEviction(t *testing.T) {
	rl := NewRateLimiter(1, 1, 3, nil)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("client-%d", i))
	}

	rl.mu.Lock()
	entries := len(rl.limiters)
	rl.mu.Unlock()

	if entries != 3 {
		t.Errorf("tracked entries = %d, want 3 after eviction", entries)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, 0, nil)
	defer rl.Stop()

	rl.Allow("stale-client")

	rl.mu.Lock()
	for elem := rl.lruList.Front(); elem != nil; elem = elem.Next() {
		elem.Value.(*rateLimiterEntry).lastAccess = time.Now().Add(-time.Hour)
	}
	rl.mu.Unlock()

	rl.Cleanup(30 * time.Minute)

	rl.mu.Lock()
	entries := len(rl.limiters)
	rl.mu.Unlock()

	if entries != 0 {
		t.Errorf("tracked entries = %d, want 0 after cleanup", entries)
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, 0, nil)
	rl.Stop()
	rl.Stop()
}
