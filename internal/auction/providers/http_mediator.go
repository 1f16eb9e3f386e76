package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/trusted-server/edge/internal/auction"
)

// HTTPMediator forwards the gathered bids to an external mediation
// endpoint and expects back a ranked subset, per spec §4.7's mediator
// contract. The first entry of the returned list is the winner.
type HTTPMediator struct {
	id       string
	endpoint string
	client   *http.Client
}

func NewHTTPMediator(id, endpoint string, client *http.Client) *HTTPMediator {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPMediator{id: id, endpoint: endpoint, client: client}
}

func (m *HTTPMediator) ID() string { return m.id }

type mediateRequest struct {
	ImpID string               `json:"impid"`
	Bids  []auction.AuctionBid `json:"bids"`
}

func (m *HTTPMediator) Mediate(ctx context.Context, req auction.AdRequest, bids []auction.AuctionBid) ([]auction.AuctionBid, error) {
	body, err := json.Marshal(mediateRequest{ImpID: req.ImpID, Bids: bids})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ranked []auction.AuctionBid
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, err
	}
	return ranked, nil
}
