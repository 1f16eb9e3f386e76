package observability

import "time"

// MockMetricsRegistry is a mock implementation of MetricsRegistry for testing.
type MockMetricsRegistry struct{}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementSyntheticID(outcome string)                                  {}
func (m *MockMetricsRegistry) IncrementTokenVerify(outcome string)                                  {}
func (m *MockMetricsRegistry) ObserveRedirectHops(hops int)                                         {}
func (m *MockMetricsRegistry) IncrementAssetFetch(status string)                                    {}
func (m *MockMetricsRegistry) IncrementClick(outcome string)                                        {}
func (m *MockMetricsRegistry) IncrementAuctionRequest(outcome string)                               {}
func (m *MockMetricsRegistry) IncrementAuctionBid(provider, outcome string)                         {}
func (m *MockMetricsRegistry) RecordAuctionProviderLatency(provider string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementRateLimitRequests(provider string)                           {}
func (m *MockMetricsRegistry) IncrementRateLimitHits(provider string)                               {}
func (m *MockMetricsRegistry) IncrementOriginProxy(status string)                                   {}
func (m *MockMetricsRegistry) IncrementSettingsReload(outcome string)                                {}
