package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(5, 1) // 5 tokens, refill 1 per second

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	if bucket.Allow() {
		t.Error("Expected 6th request to be blocked")
	}

	hits, total := bucket.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if total != 6 {
		t.Errorf("Expected 6 total requests, got %d", total)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	bucket := NewTokenBucket(2, 10) // 2 tokens, refill 10 per second

	bucket.Allow()
	bucket.Allow()

	if bucket.Allow() {
		t.Error("Expected request to be blocked")
	}

	time.Sleep(200 * time.Millisecond) // 0.2s * 10/s = 2 tokens

	if !bucket.Allow() {
		t.Error("Expected request to be allowed after refill")
	}
}

func TestProviderLimiter_PerProviderIsolation(t *testing.T) {
	limiter := NewProviderLimiter(map[string]Config{
		"prebid":  {Capacity: 1, RefillRate: 1, Enabled: true},
		"gam":     {Capacity: 5, RefillRate: 5, Enabled: true},
		"unbound": {Enabled: false},
	}, noopMetrics{})

	if !limiter.Allow("prebid") {
		t.Fatal("expected first prebid request to be allowed")
	}
	if limiter.Allow("prebid") {
		t.Fatal("expected second prebid request to be rate limited")
	}
	if !limiter.Allow("gam") {
		t.Fatal("expected gam to have its own independent bucket")
	}
	for i := 0; i < 10; i++ {
		if !limiter.Allow("unconfigured-provider") {
			t.Fatal("expected unconfigured provider to never be rate limited")
		}
	}
}
