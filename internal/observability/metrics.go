package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_requests_total",
			Help: "Total HTTP requests received by the edge",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// number of synthetic ids derived, labelled by outcome
	SyntheticIDCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_synthetic_id_total",
			Help: "Total synthetic id derivations",
		},
		[]string{"outcome"},
	)

	// number of signed-url verifications, labelled by outcome
	TokenVerifyCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_token_verify_total",
			Help: "Total signed URL verification attempts",
		},
		[]string{"outcome"},
	)

	// number of redirect hops followed per asset-proxy fetch
	RedirectHops = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_redirect_hops",
			Help:    "Number of redirect hops followed per asset fetch",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		},
		[]string{"result"},
	)

	// asset proxy fetches labelled by upstream status
	AssetFetchCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_asset_fetch_total",
			Help: "Total asset proxy upstream fetches",
		},
		[]string{"status"},
	)

	// click proxy redirects issued
	ClickCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_click_total",
			Help: "Total first-party click redirects issued",
		},
		[]string{"outcome"},
	)

	// auction requests labelled by outcome (win/no_bid per ad unit from the
	// orchestrator, bid/no_bid per request from the /auction handler)
	AuctionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_auction_requests_total",
			Help: "Total auction requests handled",
		},
		[]string{"outcome"},
	)

	// bids returned per provider
	AuctionBids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_auction_bids_total",
			Help: "Total bids returned, labelled by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// auction latency per provider
	AuctionProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_auction_provider_duration_seconds",
			Help:    "Duration of per-provider bid requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// rate limit hits per provider
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_ratelimit_hits_total",
			Help: "Total rate limit hits per auction provider",
		},
		[]string{"provider"},
	)

	// rate limit requests per provider
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_ratelimit_requests_total",
			Help: "Total rate limit requests per auction provider",
		},
		[]string{"provider"},
	)

	// origin proxy requests
	OriginProxyCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_origin_proxy_total",
			Help: "Total publisher origin proxy requests",
		},
		[]string{"status"},
	)

	// settings reload attempts
	SettingsReloadCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_settings_reload_total",
			Help: "Total settings reload attempts",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		SyntheticIDCount,
		TokenVerifyCount,
		RedirectHops,
		AssetFetchCount,
		ClickCount,
		AuctionRequests,
		AuctionBids,
		AuctionProviderLatency,
		RateLimitHits,
		RateLimitRequests,
		OriginProxyCount,
		SettingsReloadCount,
	)
}
