// Package auction implements the parallel multi-provider ad auction of
// spec §4.7: a fan-out across configured bid providers, an optional
// mediator able to re-rank or override the result, and an OpenRTB-shaped
// response assembled from whichever bid wins.
//
// The fan-out shape (goroutine-per-provider, sync.WaitGroup, a per-provider
// result slot, per-call context.WithTimeout) is grounded on
// internal/logic/selectors.RuleBasedSelector.fetchProgrammaticBids; the
// Bid/SeatBid response shapes are grounded on internal/models/openrtb_models.go.
package auction

import "context"

// AdRequest describes a single impression opportunity to auction off.
type AdRequest struct {
	ImpID       string
	TagID       string
	Width       int
	Height      int
	DeviceType  string
	Country     string
	UserAgent   string
	IP          string
	SyntheticID string
}

// AuctionBid is a single provider's response to an AdRequest. Provider
// doubles as the OpenRTB "seat" in the assembled response (spec §3).
type AuctionBid struct {
	Provider string
	ImpID    string
	Price    float64
	Currency string
	Width    int
	Height   int
	Adm      string
	AdURL    string
	CrID     string
	CID      string
	AdDomain string
}

// AuctionResult is the outcome of running an auction for one AdRequest.
type AuctionResult struct {
	ImpID    string
	Winner   *AuctionBid // nil when no provider returned a usable bid
	AllBids  []AuctionBid
	Mediated bool // true when a mediator's ranking was used to pick the winner
}

// Provider is implemented by anything capable of returning bids for an
// AdRequest. Implementations must respect ctx's deadline and return
// promptly on cancellation; a Provider that cannot produce a bid in time
// should return a context error, not block past it.
type Provider interface {
	ID() string
	RequestBids(ctx context.Context, req AdRequest) ([]AuctionBid, error)
}

// Mediator re-ranks or overrides the bids gathered from Providers. It may
// return a subset, reorder them, or substitute its own line entirely; the
// first entry of the returned slice is treated as the winner.
type Mediator interface {
	ID() string
	Mediate(ctx context.Context, req AdRequest, bids []AuctionBid) ([]AuctionBid, error)
}
