// Command ts-server is the edge dispatcher's entrypoint: it loads process
// config, pulls the publisher's Settings document from its configured
// store, wires every subsystem (signer, synthetic-id deriver, HTML/CSS
// rewriter, asset/click/origin proxies, auction orchestrator) and serves
// the routing table built by internal/api.Server.Router. Boot sequence
// and graceful shutdown are grounded on the teacher's tools/cmd/server/main.go;
// the periodic auto-reload ticker there is dropped in favor of the
// on-demand POST /admin/reload push model (spec §6.4).
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/analytics"
	"github.com/trusted-server/edge/internal/api"
	"github.com/trusted-server/edge/internal/assetproxy"
	"github.com/trusted-server/edge/internal/auction"
	"github.com/trusted-server/edge/internal/auction/providers"
	"github.com/trusted-server/edge/internal/clickproxy"
	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/db"
	"github.com/trusted-server/edge/internal/geoip"
	"github.com/trusted-server/edge/internal/observability"
	"github.com/trusted-server/edge/internal/originproxy"
	"github.com/trusted-server/edge/internal/rewriter"
	"github.com/trusted-server/edge/internal/settingsstore"
	"github.com/trusted-server/edge/internal/signer"
	"github.com/trusted-server/edge/internal/syntheticid"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer store.Close()

	settings, err := settingsstore.Load(cfg, store)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	metrics := observability.NewPrometheusRegistry()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, metrics)
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	defer analyticsSvc.Close()

	var geo *geoip.GeoIP
	if cfg.GeoIPDB != "" {
		geo, err = geoip.Init(cfg.GeoIPDB)
		if err != nil {
			return fmt.Errorf("open geoip db: %w", err)
		}
		defer func() { _ = geo.Close() }()
	}

	sign := signer.New(settings.Signing, time.Now)
	currentKey, _ := settings.Signing.Current()
	deriver := syntheticid.New(settings.Synthetic, currentKey.Secret, geo)

	integrationHosts := make(map[string]string, len(settings.Integrations))
	for id, in := range settings.Integrations {
		if in.Endpoint == "" {
			continue
		}
		if u, err := url.Parse(in.Endpoint); err == nil && u.Host != "" {
			integrationHosts[u.Host] = id
		}
	}
	rw := rewriter.New(sign, settings, integrationHosts)

	assetProxy := assetproxy.New(sign, rw, settings.Proxy, logger, metrics, analyticsSvc)
	clickProxy := clickproxy.New(sign, deriver, settings, logger, metrics, analyticsSvc)
	originProxy := originproxy.New(settings, deriver, rw, logger, metrics)
	orchestrator := buildOrchestrator(settings, logger, metrics)

	srv := api.NewServer(api.Deps{
		Logger:      logger,
		Settings:    settings,
		Metrics:     metrics,
		Analytics:   analyticsSvc,
		AssetProxy:  assetProxy,
		ClickProxy:  clickProxy,
		OriginProxy: originProxy,
		Auction:     orchestrator,
		Reloader: func() (*config.Settings, error) {
			return settingsstore.Load(cfg, store)
		},
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("edge dispatcher running", zap.String("addr", httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// buildOrchestrator constructs the auction providers and optional mediator
// named in settings.Auction, per spec §4.7's three-strategy fallback: an
// auction left disabled gets a single legacy "prebid" mock provider so the
// /auction endpoint still has something to return.
func buildOrchestrator(settings *config.Settings, logger *zap.Logger, metrics observability.MetricsRegistry) *auction.Orchestrator {
	if !settings.Auction.Enabled {
		legacy := []auction.Provider{&providers.MockProvider{Name: "prebid", Price: 0.50}}
		return auction.New(legacy, nil, settings.Auction, logger, metrics)
	}

	provs := make([]auction.Provider, 0, len(settings.Auction.Providers))
	for _, id := range settings.Auction.Providers {
		in, ok := settings.Integrations[id]
		if !ok || !in.Enabled {
			continue
		}
		if in.Mock {
			provs = append(provs, &providers.MockProvider{Name: id, Price: in.MockPrice})
			continue
		}
		provs = append(provs, providers.NewHTTPProvider(id, in.Endpoint, nil))
	}

	var mediator auction.Mediator
	if settings.Auction.Mediator != "" {
		if in, ok := settings.Integrations[settings.Auction.Mediator]; ok && in.Enabled {
			mediator = providers.NewHTTPMediator(settings.Auction.Mediator, in.Endpoint, nil)
		}
	}

	return auction.New(provs, mediator, settings.Auction, logger, metrics)
}
