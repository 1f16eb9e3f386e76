package auction

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/auction/ratelimit"
	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/observability"
)

// Orchestrator runs an auction across the configured providers, optionally
// consulting a mediator, per spec §4.7's three strategies:
//   - auction disabled: fall back to the single legacy provider (prebid)
//   - mediator configured: gather bids, hand them to the mediator, use its
//     ranking; fall back to parallel-highest if the mediator fails or
//     returns an impid the request never asked for
//   - neither: parallel-highest price wins, ties broken by provider order
type Orchestrator struct {
	providers []Provider
	mediator  Mediator
	limiter   *ratelimit.ProviderLimiter
	timeout   time.Duration
	logger    *zap.Logger
	metrics   observability.MetricsRegistry
}

// New constructs an Orchestrator. providers is used in the given order;
// when strategy falls back to parallel-highest, that order breaks ties.
// mediator may be nil.
func New(providers []Provider, mediator Mediator, settings config.AuctionSettings, logger *zap.Logger, metrics observability.MetricsRegistry) *Orchestrator {
	configs := make(map[string]ratelimit.Config, len(settings.RateLimits))
	for id, rl := range settings.RateLimits {
		configs[id] = ratelimit.Config{Capacity: rl.Capacity, RefillRate: rl.RefillRate, Enabled: true}
	}
	timeout := time.Duration(settings.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	return &Orchestrator{
		providers: providers,
		mediator:  mediator,
		limiter:   ratelimit.NewProviderLimiter(configs, metrics),
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run executes the auction for a single AdRequest.
func (o *Orchestrator) Run(ctx context.Context, req AdRequest) AuctionResult {
	bids := o.fetchAllBids(ctx, req)

	if len(bids) == 0 {
		o.logOutcome(req, nil, false)
		if o.metrics != nil {
			o.metrics.IncrementAuctionRequest("no_bid")
		}
		return AuctionResult{ImpID: req.ImpID, AllBids: bids}
	}

	if o.mediator != nil {
		if mediated, ok := o.runMediator(ctx, req, bids); ok {
			o.logOutcome(req, &mediated[0], true)
			if o.metrics != nil {
				o.metrics.IncrementAuctionRequest("win")
			}
			winner := mediated[0]
			return AuctionResult{ImpID: req.ImpID, Winner: &winner, AllBids: bids, Mediated: true}
		}
		if o.logger != nil {
			o.logger.Warn("mediator failed or returned invalid bids, falling back to parallel-highest",
				zap.String("impid", req.ImpID))
		}
	}

	winner := highestPriceWins(bids)
	o.logOutcome(req, &winner, false)
	if o.metrics != nil {
		o.metrics.IncrementAuctionRequest("win")
	}
	return AuctionResult{ImpID: req.ImpID, Winner: &winner, AllBids: bids}
}

// fetchAllBids runs every provider in parallel under a shared deadline,
// skipping providers whose rate limit bucket is exhausted. The returned
// bids are grouped in provider order, whatever order the providers answer in.
func (o *Orchestrator) fetchAllBids(ctx context.Context, req AdRequest) []AuctionBid {
	auctionCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	perProvider := make([][]AuctionBid, len(o.providers))

	for i, p := range o.providers {
		if o.limiter != nil && !o.limiter.Allow(p.ID()) {
			continue
		}
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			start := time.Now()
			providerBids, err := p.RequestBids(auctionCtx, req)
			if o.metrics != nil {
				o.metrics.RecordAuctionProviderLatency(p.ID(), time.Since(start))
			}
			if err != nil {
				if o.metrics != nil {
					o.metrics.IncrementAuctionBid(p.ID(), "error")
				}
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, b := range providerBids {
				if b.ImpID != req.ImpID {
					if o.metrics != nil {
						o.metrics.IncrementAuctionBid(p.ID(), "invalid")
					}
					continue
				}
				b.Provider = p.ID()
				perProvider[i] = append(perProvider[i], b)
				if o.metrics != nil {
					o.metrics.IncrementAuctionBid(p.ID(), "valid")
				}
			}
		}(i, p)
	}
	wg.Wait()

	var bids []AuctionBid
	for _, pb := range perProvider {
		bids = append(bids, pb...)
	}
	return bids
}

// runMediator hands bids to the configured mediator and validates its
// response: it must return at least one bid, and every returned bid must
// carry an impid that was actually requested.
func (o *Orchestrator) runMediator(ctx context.Context, req AdRequest, bids []AuctionBid) ([]AuctionBid, bool) {
	mediated, err := o.mediator.Mediate(ctx, req, bids)
	if err != nil || len(mediated) == 0 {
		return nil, false
	}
	for _, b := range mediated {
		if b.ImpID != req.ImpID {
			if o.logger != nil {
				o.logger.Warn("mediator returned bid for unrequested impid, dropping",
					zap.String("requested_impid", req.ImpID),
					zap.String("returned_impid", b.ImpID))
			}
			return nil, false
		}
	}
	return mediated, true
}

// highestPriceWins picks the bid with the greatest price, breaking ties
// by provider order (the first provider in bids wins a tie, since
// fetchAllBids returns bids grouped in provider order).
func highestPriceWins(bids []AuctionBid) AuctionBid {
	best := bids[0]
	for _, b := range bids[1:] {
		if b.Price > best.Price {
			best = b
		}
	}
	return best
}

func (o *Orchestrator) logOutcome(req AdRequest, winner *AuctionBid, mediated bool) {
	if o.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("impid", req.ImpID),
		zap.String("tagid", req.TagID),
		zap.Bool("mediated", mediated),
	}
	if winner != nil {
		fields = append(fields, zap.String("winning_provider", winner.Provider), zap.Float64("price", winner.Price))
	}
	o.logger.Info("auction complete", fields...)
}
