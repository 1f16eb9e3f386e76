// Package api wires the edge's HTTP surface: a Server dependency struct
// holding every subsystem (signer, rewriter, asset/click/origin proxies,
// auction orchestrator) plus the ambient stack (logger, tracer, metrics,
// analytics), and the gorilla/mux routing table of spec §4.8. Server DI
// struct shape and route registration style are grounded on the teacher's
// internal/api/server.go and tools/cmd/server/main.go.
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/analytics"
	"github.com/trusted-server/edge/internal/assetproxy"
	"github.com/trusted-server/edge/internal/auction"
	"github.com/trusted-server/edge/internal/clickproxy"
	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/middleware"
	"github.com/trusted-server/edge/internal/observability"
	"github.com/trusted-server/edge/internal/originproxy"
)

var tracer = otel.Tracer("trusted-server-edge/api")

// errNoReloader is returned by Reload when the Server was constructed
// without a reload function (e.g. in tests exercising other handlers).
var errNoReloader = errors.New("no settings reloader configured")

// Server groups every dependency an HTTP handler needs.
type Server struct {
	Logger    *zap.Logger
	Settings  *config.Settings
	Metrics   observability.MetricsRegistry
	Analytics analytics.AnalyticsService

	AssetProxy  *assetproxy.Proxy
	ClickProxy  *clickproxy.Proxy
	OriginProxy *originproxy.Proxy
	Auction     *auction.Orchestrator

	reloader func() (*config.Settings, error)
}

// Deps bundles the constructed subsystems NewServer wires together. Each
// field is built by cmd/ts-server/main.go from the loaded Settings.
type Deps struct {
	Logger      *zap.Logger
	Settings    *config.Settings
	Metrics     observability.MetricsRegistry
	Analytics   analytics.AnalyticsService
	AssetProxy  *assetproxy.Proxy
	ClickProxy  *clickproxy.Proxy
	OriginProxy *originproxy.Proxy
	Auction     *auction.Orchestrator
	Reloader    func() (*config.Settings, error)
}

// NewServer constructs a Server from its dependencies.
func NewServer(d Deps) *Server {
	return &Server{
		Logger:      d.Logger,
		Settings:    d.Settings,
		Metrics:     d.Metrics,
		Analytics:   d.Analytics,
		AssetProxy:  d.AssetProxy,
		ClickProxy:  d.ClickProxy,
		OriginProxy: d.OriginProxy,
		Auction:     d.Auction,
		reloader:    d.Reloader,
	}
}

// Reload re-reads the Settings document from its configured source and
// atomically swaps the pointer the Server's handlers read (spec §6.4's
// "pushed... by an out-of-band tool" push model, exposed via
// POST /admin/reload per SPEC_FULL.md §D).
func (s *Server) Reload() error {
	if s.reloader == nil {
		return errNoReloader
	}
	next, err := s.reloader()
	if err != nil {
		return err
	}
	s.Settings = next
	return nil
}

// Router builds the dispatcher's routing table (spec §4.8, first match
// wins): the auction and first-party endpoints are registered explicitly;
// everything else falls through to the publisher origin proxy.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.WithRequestID, middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/auction", s.AuctionHandler).Methods(http.MethodPost)

	r.HandleFunc("/first-party/proxy", s.AssetProxy.ServeHTTP).Methods(http.MethodGet)
	r.HandleFunc("/first-party/click", s.ClickProxy.ClickHandler).Methods(http.MethodGet)
	r.HandleFunc("/first-party/proxy-rebuild", s.ClickProxy.ProxyRebuildHandler).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/first-party/sign", s.ClickProxy.SignHandler).Methods(http.MethodPost)

	r.PathPrefix("/static/").Handler(staticHandler())
	r.PathPrefix("/integrations/").HandlerFunc(s.IntegrationProxyHandler)

	r.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/admin/reload", s.ReloadHandler).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler())

	// Every other path is a publisher page: fall through to the origin
	// proxy (spec §4.6), the dispatcher's catch-all per §4.8.
	r.PathPrefix("/").Handler(s.OriginProxy)

	return r
}
