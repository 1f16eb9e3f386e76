package ratelimit

import (
	"fmt"
	"sync"

	"github.com/trusted-server/edge/internal/observability"
)

// ProviderLimiter manages rate limiting for multiple auction providers.
//
// Each provider gets its own token bucket, created lazily on first access
// from its configured capacity/refill rate (spec §6.3's
// auction.rate_limit table). The limiter integrates with an injected
// metrics registry to track rate limiting activity.
type ProviderLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	configs map[string]Config
	metrics observability.MetricsRegistry
}

// Config holds the rate limiting configuration for a single provider.
type Config struct {
	Capacity   int
	RefillRate int
	Enabled    bool
}

// NewProviderLimiter creates a new provider rate limiter. configs maps
// provider id to its bucket configuration; a provider absent from configs
// is never rate limited.
func NewProviderLimiter(configs map[string]Config, metrics observability.MetricsRegistry) *ProviderLimiter {
	return &ProviderLimiter{
		buckets: make(map[string]*TokenBucket),
		configs: configs,
		metrics: metrics,
	}
}

// Allow checks if a request for the given provider should be allowed. A
// provider with no configured limit is always allowed.
func (pl *ProviderLimiter) Allow(providerID string) bool {
	cfg, ok := pl.configs[providerID]
	if !ok || !cfg.Enabled {
		return true
	}

	pl.metrics.IncrementRateLimitRequests(providerID)

	pl.mu.RLock()
	bucket, exists := pl.buckets[providerID]
	pl.mu.RUnlock()

	if !exists {
		pl.mu.Lock()
		bucket, exists = pl.buckets[providerID]
		if !exists {
			bucket = NewTokenBucket(cfg.Capacity, cfg.RefillRate)
			pl.buckets[providerID] = bucket
		}
		pl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		pl.metrics.IncrementRateLimitHits(providerID)
	}

	return allowed
}

// GetStats returns rate limiting statistics for every provider that has
// been rate-checked at least once.
func (pl *ProviderLimiter) GetStats() map[string]RateLimitStats {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	stats := make(map[string]RateLimitStats)
	for providerID, bucket := range pl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[providerID] = RateLimitStats{
			ProviderID: providerID,
			Hits:       hits,
			Total:      total,
			HitRate:    hitRate,
		}
	}

	return stats
}

// RateLimitStats contains statistics about rate limiting for a single
// auction provider.
type RateLimitStats struct {
	ProviderID string  `json:"ProviderID"`
	Hits       int64   `json:"Hits"`
	Total      int64   `json:"Total"`
	HitRate    float64 `json:"HitRate"`
}

func (rls RateLimitStats) String() string {
	return fmt.Sprintf("Provider %s: %d/%d hits (%.2f%%)",
		rls.ProviderID, rls.Hits, rls.Total, rls.HitRate*100)
}
