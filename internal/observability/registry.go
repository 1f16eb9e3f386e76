package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Handlers depend on this interface rather than the package-level
// Prometheus collectors directly, so tests can swap in NoOpRegistry.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Synthetic id metrics
	IncrementSyntheticID(outcome string)

	// Signed URL verification metrics
	IncrementTokenVerify(outcome string)

	// Asset proxy metrics
	ObserveRedirectHops(hops int)
	IncrementAssetFetch(status string)

	// Click proxy metrics
	IncrementClick(outcome string)

	// Auction metrics
	IncrementAuctionRequest(outcome string)
	IncrementAuctionBid(provider, outcome string)
	RecordAuctionProviderLatency(provider string, duration time.Duration)

	// Rate limiting metrics
	IncrementRateLimitRequests(provider string)
	IncrementRateLimitHits(provider string)

	// Origin proxy metrics
	IncrementOriginProxy(status string)

	// Settings reload metrics
	IncrementSettingsReload(outcome string)
}

// PrometheusRegistry implements MetricsRegistry using the package-level
// Prometheus collectors.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementSyntheticID(outcome string) {
	SyntheticIDCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementTokenVerify(outcome string) {
	TokenVerifyCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) ObserveRedirectHops(hops int) {
	RedirectHops.WithLabelValues("ok").Observe(float64(hops))
}

func (r *PrometheusRegistry) IncrementAssetFetch(status string) {
	AssetFetchCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementClick(outcome string) {
	ClickCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementAuctionRequest(outcome string) {
	AuctionRequests.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementAuctionBid(provider, outcome string) {
	AuctionBids.WithLabelValues(provider, outcome).Inc()
}

func (r *PrometheusRegistry) RecordAuctionProviderLatency(provider string, duration time.Duration) {
	AuctionProviderLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(provider string) {
	RateLimitRequests.WithLabelValues(provider).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(provider string) {
	RateLimitHits.WithLabelValues(provider).Inc()
}

func (r *PrometheusRegistry) IncrementOriginProxy(status string) {
	OriginProxyCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementSettingsReload(outcome string) {
	SettingsReloadCount.WithLabelValues(outcome).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods, for tests
// and for running without Prometheus wired up.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementSyntheticID(outcome string)                                  {}
func (r *NoOpRegistry) IncrementTokenVerify(outcome string)                                  {}
func (r *NoOpRegistry) ObserveRedirectHops(hops int)                                         {}
func (r *NoOpRegistry) IncrementAssetFetch(status string)                                    {}
func (r *NoOpRegistry) IncrementClick(outcome string)                                        {}
func (r *NoOpRegistry) IncrementAuctionRequest(outcome string)                               {}
func (r *NoOpRegistry) IncrementAuctionBid(provider, outcome string)                         {}
func (r *NoOpRegistry) RecordAuctionProviderLatency(provider string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementRateLimitRequests(provider string)                           {}
func (r *NoOpRegistry) IncrementRateLimitHits(provider string)                               {}
func (r *NoOpRegistry) IncrementOriginProxy(status string)                                   {}
func (r *NoOpRegistry) IncrementSettingsReload(outcome string)                               {}
