package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockAnalyticsRecordsAuctionEvent(t *testing.T) {
	a := NewMockAnalytics()
	require.NoError(t, a.RecordAuction(context.Background(), "req1", "imp1", "prebid", 2.5, false, 3))
	require.Len(t, a.Events, 1)
	require.Equal(t, "auction", a.Events[0].EventType)
	require.Equal(t, "prebid", a.Events[0].WinningProvider)
	require.Equal(t, 2.5, a.Events[0].Price)
}

func TestMockAnalyticsRecordsAssetFetchAndClick(t *testing.T) {
	a := NewMockAnalytics()
	require.NoError(t, a.RecordAssetFetch(context.Background(), "req2", "cdn.example", 2, 200))
	require.NoError(t, a.RecordClick(context.Background(), "req3", "advertiser.example"))
	require.Len(t, a.Events, 2)
	require.Equal(t, "asset_fetch", a.Events[0].EventType)
	require.Equal(t, int32(2), a.Events[0].Hops)
	require.Equal(t, "click", a.Events[1].EventType)
	require.Equal(t, "advertiser.example", a.Events[1].Host)
}
