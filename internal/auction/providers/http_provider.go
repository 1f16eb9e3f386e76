// Package providers implements auction.Provider adapters. HTTPProvider is
// grounded on internal/logic/selectors.fetchProgrammaticBid: a minimal
// OpenRTB request POSTed to the provider's endpoint, with every bid of the
// response's first seatbid read back out.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/trusted-server/edge/internal/auction"
)

// HTTPProvider requests bids from a single OpenRTB-speaking endpoint.
type HTTPProvider struct {
	id       string
	endpoint string
	client   *http.Client
}

// NewHTTPProvider constructs an HTTPProvider. client may be nil to use
// http.DefaultClient.
func NewHTTPProvider(id, endpoint string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{id: id, endpoint: endpoint, client: client}
}

func (p *HTTPProvider) ID() string { return p.id }

type ortbRequest struct {
	Imp []ortbImp `json:"imp"`
}

type ortbImp struct {
	ID string `json:"id"`
	W  int    `json:"w"`
	H  int    `json:"h"`
}

type ortbResponse struct {
	SeatBid []struct {
		Bid []struct {
			ImpID    string  `json:"impid"`
			Price    float64 `json:"price"`
			Currency string  `json:"currency"`
			W        int     `json:"w"`
			H        int     `json:"h"`
			Adm      string  `json:"adm"`
			AdURL    string  `json:"adurl"`
			CrID     string  `json:"crid"`
			CID      string  `json:"cid"`
			AdDomain string  `json:"adomain"`
		} `json:"bid"`
	} `json:"seatbid"`
}

// RequestBids sends a single-impression OpenRTB request and returns any
// bid found in the first seatbid.
func (p *HTTPProvider) RequestBids(ctx context.Context, req auction.AdRequest) ([]auction.AuctionBid, error) {
	body, err := json.Marshal(ortbRequest{Imp: []ortbImp{{ID: req.ImpID, W: req.Width, H: req.Height}}})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ortbResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.SeatBid) == 0 || len(out.SeatBid[0].Bid) == 0 {
		return nil, nil
	}

	bids := make([]auction.AuctionBid, 0, len(out.SeatBid[0].Bid))
	for _, b := range out.SeatBid[0].Bid {
		bids = append(bids, auction.AuctionBid{
			ImpID:    b.ImpID,
			Price:    b.Price,
			Currency: b.Currency,
			Width:    b.W,
			Height:   b.H,
			Adm:      b.Adm,
			AdURL:    b.AdURL,
			CrID:     b.CrID,
			CID:      b.CID,
			AdDomain: b.AdDomain,
		})
	}
	return bids, nil
}
