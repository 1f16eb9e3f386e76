package providers

import (
	"context"

	"github.com/trusted-server/edge/internal/auction"
)

// MockProvider returns a fixed set of bids, for use in tests and in the
// "integrations.mock" settings path (spec §6.3's per-integration mock
// flag, used to exercise the auction without a live downstream partner).
type MockProvider struct {
	Name  string
	Price float64
}

func (m *MockProvider) ID() string { return m.Name }

func (m *MockProvider) RequestBids(ctx context.Context, req auction.AdRequest) ([]auction.AuctionBid, error) {
	if m.Price <= 0 {
		return nil, nil
	}
	return []auction.AuctionBid{{
		ImpID:    req.ImpID,
		Price:    m.Price,
		Currency: "USD",
		Width:    req.Width,
		Height:   req.Height,
		Adm:      "<div>mock creative</div>",
		CrID:     "mock-creative",
		CID:      "mock-campaign",
		AdDomain: "mock-advertiser.example",
	}}, nil
}
