package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/auction"
	"github.com/trusted-server/edge/internal/middleware"
)

// adUnitRequest is the decoded shape of one entry in the /auction request
// body's adUnits array (spec §4.7/§9).
type adUnitRequest struct {
	Code       string `json:"code"`
	MediaTypes struct {
		Banner struct {
			Sizes [][2]int `json:"sizes"`
		} `json:"banner"`
	} `json:"mediaTypes"`
}

type auctionRequestBody struct {
	AdUnits []adUnitRequest `json:"adUnits"`
}

type ortbBidOut struct {
	ImpID    string  `json:"impid"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	W        int     `json:"w,omitempty"`
	H        int     `json:"h,omitempty"`
	Adm      string  `json:"adm,omitempty"`
	AdURL    string  `json:"adurl,omitempty"`
	CrID     string  `json:"crid,omitempty"`
	AdDomain string  `json:"adomain,omitempty"`
}

type ortbSeatBidOut struct {
	Seat string       `json:"seat"`
	Bid  []ortbBidOut `json:"bid"`
}

type auctionResponseBody struct {
	SeatBid []ortbSeatBidOut       `json:"seatbid"`
	Debug   map[string]interface{} `json:"debug,omitempty"`
}

// AuctionHandler handles POST /auction: runs the configured auction
// strategy for every ad unit in the request body and assembles an
// OpenRTB-shaped seatbid response (spec §4.7).
func (s *Server) AuctionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "AuctionHandler",
		trace.WithAttributes(attribute.String("http.route", "/auction")))
	defer span.End()
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "/auction"
	const method = "POST"

	var body auctionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.AdUnits) == 0 {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "adUnits must not be empty", http.StatusBadRequest)
		return
	}

	synthID := presentedSyntheticID(r)
	ua := r.UserAgent()

	debugEnabled := r.URL.Query().Get("debug") == "1"
	results := make([]auction.AuctionResult, len(body.AdUnits))
	var wg sync.WaitGroup
	for i, unit := range body.AdUnits {
		width, height := 0, 0
		if len(unit.MediaTypes.Banner.Sizes) > 0 {
			width, height = unit.MediaTypes.Banner.Sizes[0][0], unit.MediaTypes.Banner.Sizes[0][1]
		}
		req := auction.AdRequest{
			ImpID:       unit.Code,
			Width:       width,
			Height:      height,
			UserAgent:   ua,
			SyntheticID: synthID,
		}
		wg.Add(1)
		go func(i int, req auction.AdRequest) {
			defer wg.Done()
			results[i] = s.Auction.Run(ctx, req)
		}(i, req)
	}
	wg.Wait()

	resp := assembleSeatBids(results)
	if debugEnabled {
		resp.Debug = map[string]interface{}{"results": results}
	}

	totalBids := 0
	winners := 0
	for _, res := range results {
		totalBids += len(res.AllBids)
		if res.Winner != nil {
			winners++
		}
		if s.Analytics != nil {
			winnerProvider := ""
			price := 0.0
			if res.Winner != nil {
				winnerProvider = res.Winner.Provider
				price = res.Winner.Price
			}
			if err := s.Analytics.RecordAuction(ctx, r.Header.Get("X-Request-ID"), res.ImpID, winnerProvider, price, res.Mediated, len(res.AllBids)); err != nil {
				logger.Debug("analytics record auction failed", zap.Error(err))
			}
		}
	}
	logger.Info("auction complete",
		zap.Int("ad_units", len(body.AdUnits)),
		zap.Int("total_bids", totalBids),
		zap.Int("winners", winners),
		zap.Duration("elapsed", time.Since(start)))

	if winners == 0 {
		s.Metrics.IncrementAuctionRequest("no_bid")
		s.Metrics.IncrementRequests(endpoint, method, "204")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.Metrics.IncrementAuctionRequest("bid")
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("encode auction response", zap.Error(err))
	}
}

// presentedSyntheticID extracts the synthetic id presented by the browser,
// if any, without deriving a fresh one: the auction endpoint only forwards
// an id the origin proxy already stamped, it never mints one itself.
func presentedSyntheticID(r *http.Request) string {
	if c, err := r.Cookie("synthetic_id"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("x-synthetic-id")
}

// assembleSeatBids groups each ad unit's winning bid by provider ("seat"),
// in the order ad units were supplied, per spec §4.7's "group winners by
// seat into seatbid arrays, in a stable order."
func assembleSeatBids(results []auction.AuctionResult) auctionResponseBody {
	order := make([]string, 0, len(results))
	bySeat := make(map[string][]ortbBidOut)
	for _, res := range results {
		if res.Winner == nil {
			continue
		}
		b := res.Winner
		if _, ok := bySeat[b.Provider]; !ok {
			order = append(order, b.Provider)
		}
		bySeat[b.Provider] = append(bySeat[b.Provider], ortbBidOut{
			ImpID:    b.ImpID,
			Price:    b.Price,
			Currency: b.Currency,
			W:        b.Width,
			H:        b.Height,
			Adm:      b.Adm,
			AdURL:    b.AdURL,
			CrID:     b.CrID,
			AdDomain: b.AdDomain,
		})
	}

	resp := auctionResponseBody{SeatBid: make([]ortbSeatBidOut, 0, len(order))}
	for _, seat := range order {
		resp.SeatBid = append(resp.SeatBid, ortbSeatBidOut{Seat: seat, Bid: bySeat[seat]})
	}
	return resp
}
