package analytics

import "context"

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics is an in-memory AnalyticsService for tests: every RecordX
// call appends an EventRecord to Events and returns nil.
type MockAnalytics struct {
	Events []EventRecord
}

// NewMockAnalytics creates a new mock analytics instance.
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

func (m *MockAnalytics) RecordAuction(ctx context.Context, requestID, impID, winningProvider string, price float64, mediated bool, providerCount int) error {
	m.Events = append(m.Events, EventRecord{
		EventType:       "auction",
		RequestID:       requestID,
		ImpID:           impID,
		WinningProvider: winningProvider,
		Price:           price,
		Mediated:        mediated,
		ProviderCount:   int32(providerCount),
	})
	return nil
}

func (m *MockAnalytics) RecordAssetFetch(ctx context.Context, requestID, host string, hops int, status int) error {
	m.Events = append(m.Events, EventRecord{
		EventType: "asset_fetch",
		RequestID: requestID,
		Host:      host,
		Hops:      int32(hops),
		Status:    int32(status),
	})
	return nil
}

func (m *MockAnalytics) RecordClick(ctx context.Context, requestID, host string) error {
	m.Events = append(m.Events, EventRecord{
		EventType: "click",
		RequestID: requestID,
		Host:      host,
	})
	return nil
}

func (m *MockAnalytics) Close() {}
