package ratelimit

import "time"

// noopMetrics satisfies observability.MetricsRegistry for tests in this
// package without importing Prometheus collectors.
type noopMetrics struct{}

func (noopMetrics) IncrementRequests(endpoint, method, status string)                    {}
func (noopMetrics) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (noopMetrics) IncrementSyntheticID(outcome string)                                  {}
func (noopMetrics) IncrementTokenVerify(outcome string)                                  {}
func (noopMetrics) ObserveRedirectHops(hops int)                                         {}
func (noopMetrics) IncrementAssetFetch(status string)                                    {}
func (noopMetrics) IncrementClick(outcome string)                                        {}
func (noopMetrics) IncrementAuctionRequest(outcome string)                               {}
func (noopMetrics) IncrementAuctionBid(provider, outcome string)                         {}
func (noopMetrics) RecordAuctionProviderLatency(provider string, duration time.Duration) {}
func (noopMetrics) IncrementRateLimitRequests(provider string)                           {}
func (noopMetrics) IncrementRateLimitHits(provider string)                               {}
func (noopMetrics) IncrementOriginProxy(status string)                                   {}
func (noopMetrics) IncrementSettingsReload(outcome string)                               {}
