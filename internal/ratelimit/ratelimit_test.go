package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 3,
	})

	userID := int64(12345)

	for i := 0; i < 3; i++ {
		if !limiter.Allow(userID) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if limiter.Allow(userID) {
		t.Error("Fourth request should be blocked due to rate limit")
	}
}

func TestLimiter_DifferentUsers(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 1,
	})

	user1 := int64(111)
	user2 := int64(222)

	if !limiter.Allow(user1) {
		t.Error("User1 first request should be allowed")
	}

	if !limiter.Allow(user2) {
		t.Error("User2 first request should be allowed")
	}

	if limiter.Allow(user1) {
		t.Error("User1 second request should be blocked")
	}

	if limiter.Allow(user2) {
		t.Error("User2 second request should be blocked")
	}
}

func TestLimiter_RemainingRequests(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 5,
	})

	userID := int64(12345)

	if remaining := limiter.RemainingRequests(userID); remaining != 5 {
		t.Errorf("RemainingRequests() = %d, want 5", remaining)
	}

	limiter.Allow(userID)
	limiter.Allow(userID)
	limiter.Allow(userID)

	if remaining := limiter.RemainingRequests(userID); remaining != 2 {
		t.Errorf("RemainingRequests() = %d, want 2", remaining)
	}

	limiter.Allow(userID)
	limiter.Allow(userID)

	if remaining := limiter.RemainingRequests(userID); remaining != 0 {
		t.Errorf("RemainingRequests() = %d, want 0", remaining)
	}
}

func TestLimiter_RetryAfter(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 1,
	})

	userID := int64(12345)

	if d := limiter.RetryAfter(userID); d != 0 {
		t.Errorf("RetryAfter() before any request = %v, want 0", d)
	}

	limiter.Allow(userID)

	d := limiter.RetryAfter(userID)
	if d <= 0 || d > time.Minute {
		t.Errorf("RetryAfter() = %v, want within (0, 1m]", d)
	}
}

func TestLimiter_Burst(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 60, Burst: 2})
	userID := int64(1)

	if !limiter.Allow(userID) || !limiter.Allow(userID) {
		t.Fatal("burst of 2 should be allowed")
	}
	if limiter.Allow(userID) {
		t.Error("third immediate request should be blocked")
	}
}

func TestLimiter_CleanupDropsIdleUsers(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 5})
	limiter.Allow(1)
	limiter.Allow(2)

	limiter.mu.Lock()
	limiter.entries[1].lastSeen = time.Now().Add(-time.Hour)
	limiter.lastCleanup = time.Now().Add(-time.Hour)
	limiter.mu.Unlock()

	limiter.Allow(2)

	if limiter.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after cleanup", limiter.Len())
	}
}
