package auction

import (
	"context"
	"testing"
	"time"

	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/observability"
)

type stubProvider struct {
	id    string
	price float64
	delay time.Duration
	err   error
}

func (s *stubProvider) ID() string { return s.id }

func (s *stubProvider) RequestBids(ctx context.Context, req AdRequest) ([]AuctionBid, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.price <= 0 {
		return nil, nil
	}
	return []AuctionBid{{ImpID: req.ImpID, Price: s.price}}, nil
}

func testOrchestrator(providers []Provider, mediator Mediator) *Orchestrator {
	return New(providers, mediator, config.AuctionSettings{TimeoutMS: 200}, nil, observability.NewNoOpRegistry())
}

func TestParallelHighestWins(t *testing.T) {
	o := testOrchestrator([]Provider{
		&stubProvider{id: "a", price: 1.5},
		&stubProvider{id: "b", price: 3.0},
		&stubProvider{id: "c", price: 2.0},
	}, nil)

	result := o.Run(context.Background(), AdRequest{ImpID: "imp1"})
	if result.Winner == nil || result.Winner.Provider != "b" {
		t.Fatalf("expected provider b to win, got %+v", result.Winner)
	}
}

func TestNoBidsWhenAllProvidersReturnNothing(t *testing.T) {
	o := testOrchestrator([]Provider{&stubProvider{id: "a"}, &stubProvider{id: "b"}}, nil)
	result := o.Run(context.Background(), AdRequest{ImpID: "imp1"})
	if result.Winner != nil {
		t.Fatalf("expected no winner, got %+v", result.Winner)
	}
}

func TestSlowProviderExcludedByDeadline(t *testing.T) {
	o := testOrchestrator([]Provider{
		&stubProvider{id: "slow", price: 10.0, delay: time.Second},
		&stubProvider{id: "fast", price: 1.0},
	}, nil)
	result := o.Run(context.Background(), AdRequest{ImpID: "imp1"})
	if result.Winner == nil || result.Winner.Provider != "fast" {
		t.Fatalf("expected fast provider to win once slow times out, got %+v", result.Winner)
	}
}

type stubMediator struct {
	ranked []AuctionBid
	err    error
}

func (s *stubMediator) ID() string { return "mediator" }

func (s *stubMediator) Mediate(ctx context.Context, req AdRequest, bids []AuctionBid) ([]AuctionBid, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ranked, nil
}

func TestMediatorOverridesParallelHighest(t *testing.T) {
	providers := []Provider{&stubProvider{id: "a", price: 5.0}, &stubProvider{id: "b", price: 1.0}}
	mediator := &stubMediator{ranked: []AuctionBid{{Provider: "b", ImpID: "imp1", Price: 1.0}}}

	o := testOrchestrator(providers, mediator)
	result := o.Run(context.Background(), AdRequest{ImpID: "imp1"})
	if !result.Mediated || result.Winner.Provider != "b" {
		t.Fatalf("expected mediator's choice of b to win, got %+v", result)
	}
}

func TestMediatorFallsBackOnBadImpID(t *testing.T) {
	providers := []Provider{&stubProvider{id: "a", price: 5.0}}
	mediator := &stubMediator{ranked: []AuctionBid{{Provider: "a", ImpID: "wrong-imp", Price: 99.0}}}

	o := testOrchestrator(providers, mediator)
	result := o.Run(context.Background(), AdRequest{ImpID: "imp1"})
	if result.Mediated {
		t.Fatalf("expected fallback to parallel-highest, got mediated result")
	}
	if result.Winner == nil || result.Winner.Provider != "a" {
		t.Fatalf("expected provider a to win via fallback, got %+v", result.Winner)
	}
}

func TestMediatorFallsBackOnError(t *testing.T) {
	providers := []Provider{&stubProvider{id: "a", price: 5.0}}
	mediator := &stubMediator{err: context.DeadlineExceeded}

	o := testOrchestrator(providers, mediator)
	result := o.Run(context.Background(), AdRequest{ImpID: "imp1"})
	if result.Mediated {
		t.Fatalf("expected fallback on mediator error")
	}
	if result.Winner == nil || result.Winner.Provider != "a" {
		t.Fatalf("expected provider a to win via fallback, got %+v", result.Winner)
	}
}
