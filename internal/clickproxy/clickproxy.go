// Package clickproxy implements the three first-party click endpoints of
// spec §4.5: /first-party/click (verify + redirect), /first-party/
// proxy-rebuild (mutate a signed URL's query and re-sign it), and
// /first-party/sign (sign an arbitrary URL for a caller-supplied
// destination). Handler shape (otel span, trace-aware zap logger,
// MetricsRegistry counters) is grounded on internal/api/click.go's
// ClickHandler.
package clickproxy

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/analytics"
	"github.com/trusted-server/edge/internal/apierr"
	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/middleware"
	"github.com/trusted-server/edge/internal/observability"
	"github.com/trusted-server/edge/internal/syntheticid"
)

var tracer = otel.Tracer("trusted-server-edge/clickproxy")

// Path prefixes the sign/rebuild endpoints fold signed query strings onto
// to hand the browser-side helper a ready-to-use href (spec §6.2).
const (
	ProxyPathPrefix = "/first-party/proxy"
	ClickPathPrefix = "/first-party/click"
)

// SignerVerifier is the subset of *signer.Signer clickproxy needs.
type SignerVerifier interface {
	Sign(target string, ttl time.Duration, extra url.Values) (url.Values, error)
	Verify(values url.Values) (string, error)
}

// Proxy serves the first-party click family of endpoints.
type Proxy struct {
	signer        SignerVerifier
	deriver       *syntheticid.Deriver
	domain        string
	tokenTTL      time.Duration
	allowSelfSign bool
	logger        *zap.Logger
	metrics       observability.MetricsRegistry
	analytics     analytics.AnalyticsService
}

// New constructs a Proxy. analyticsSvc may be nil to skip click telemetry
// (e.g. in tests).
func New(s SignerVerifier, deriver *syntheticid.Deriver, settings *config.Settings, logger *zap.Logger, metrics observability.MetricsRegistry, analyticsSvc analytics.AnalyticsService) *Proxy {
	allowSelf := false
	if sign, ok := settings.Integrations["sign"]; ok {
		allowSelf = sign.AllowSelf
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		signer:        s,
		deriver:       deriver,
		domain:        settings.Publisher.Domain,
		tokenTTL:      settings.Proxy.TokenTTL,
		allowSelfSign: allowSelf,
		logger:        logger,
		metrics:       metrics,
		analytics:     analyticsSvc,
	}
}

// ClickHandler handles GET /first-party/click: verify the signed target,
// append the synthetic id, and issue a 302 redirect (spec §4.5).
func (p *Proxy) ClickHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ClickHandler",
		trace.WithAttributes(attribute.String("http.route", "/first-party/click")))
	defer span.End()
	logger := middleware.LoggerFromRequest(r, p.logger)
	start := time.Now()

	if err := r.ParseForm(); err != nil {
		p.fail(w, "/first-party/click", start, apierr.Wrap(apierr.KindInvalidToken, err), span, logger)
		return
	}

	target, err := p.signer.Verify(r.Form)
	if err != nil {
		p.fail(w, "/first-party/click", start, err, span, logger)
		return
	}

	destination := target
	if p.deriver != nil {
		src := syntheticid.FromRequest(r)
		id, err := p.deriver.Derive(src)
		if err == nil {
			destination = appendQueryParam(target, "synthetic_id", id)
		}
	}

	w.Header().Set("Cache-Control", "no-store, private")
	if p.metrics != nil {
		p.metrics.IncrementClick("redirect")
		p.metrics.IncrementRequests("/first-party/click", "GET", "302")
		p.metrics.RecordRequestLatency("/first-party/click", "GET", time.Since(start))
	}
	logger.Info("click redirect", zap.String("target", redactURL(target)))
	http.Redirect(w, r.WithContext(ctx), destination, http.StatusFound)

	if p.analytics != nil {
		requestID := r.Header.Get(middleware.RequestIDHeader)
		if err := p.analytics.RecordClick(ctx, requestID, hostOf(target)); err != nil && p.logger != nil {
			p.logger.Warn("record click failed", zap.Error(err))
		}
	}
}

// rebuildRequest is the documented body of POST /first-party/proxy-rebuild
// (spec §4.5/§6.2): tsclick is the full signed click URL to mutate, add
// sets query keys, del removes them, del applying first.
type rebuildRequest struct {
	TSClick string            `json:"tsclick"`
	Add     map[string]string `json:"add"`
	Del     []string          `json:"del"`
}

// ProxyRebuildHandler handles POST /first-party/proxy-rebuild: verify the
// existing signed click URL, apply a del-then-add mutation to its query,
// and re-sign it. The rebuilt URL's scheme+host+path must match the
// original's, or the request fails with BaseChanged (spec §4.5 edge
// case).
func (p *Proxy) ProxyRebuildHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ProxyRebuildHandler",
		trace.WithAttributes(attribute.String("http.route", "/first-party/proxy-rebuild")))
	defer span.End()
	logger := middleware.LoggerFromRequest(r, p.logger)
	start := time.Now()
	const endpoint = "/first-party/proxy-rebuild"

	var body rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		p.fail(w, endpoint, start, apierr.Wrap(apierr.KindInvalidToken, err), span, logger)
		return
	}

	tsclick, err := url.Parse(body.TSClick)
	if err != nil {
		p.fail(w, endpoint, start, apierr.Wrap(apierr.KindInvalidToken, err), span, logger)
		return
	}

	original, err := p.signer.Verify(tsclick.Query())
	if err != nil {
		p.fail(w, endpoint, start, err, span, logger)
		return
	}

	rebuilt, err := rebuildQuery(original, body.Del, body.Add)
	if err != nil {
		p.fail(w, endpoint, start, apierr.Wrap(apierr.KindBaseChanged, err), span, logger)
		return
	}

	if baseOf(rebuilt) != baseOf(original) {
		p.fail(w, endpoint, start, apierr.New(apierr.KindBaseChanged), span, logger)
		return
	}

	values, err := p.signer.Sign(rebuilt, p.tokenTTL, nil)
	if err != nil {
		p.fail(w, endpoint, start, apierr.Wrap(apierr.KindConfigError, err), span, logger)
		return
	}

	if p.metrics != nil {
		p.metrics.IncrementRequests(endpoint, "POST", "200")
		p.metrics.RecordRequestLatency(endpoint, "POST", time.Since(start))
	}
	_ = ctx
	writeJSONHrefBase(w, ClickPathPrefix, values, baseOf(original))
}

// signRequest is the documented body of POST /first-party/sign (spec
// §4.5/§6.2): url is the caller-supplied destination to sign.
type signRequest struct {
	URL string `json:"url"`
}

// SignHandler handles POST /first-party/sign: sign an arbitrary caller-
// supplied URL. Same-origin targets are refused by default (spec §4.5
// Open Question: avoid trivially proxying the publisher's own origin
// through the asset-proxy path), overridable via the
// integrations.sign.allow_self setting.
func (p *Proxy) SignHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "SignHandler",
		trace.WithAttributes(attribute.String("http.route", "/first-party/sign")))
	defer span.End()
	logger := middleware.LoggerFromRequest(r, p.logger)
	start := time.Now()
	const endpoint = "/first-party/sign"

	var body signRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		p.fail(w, endpoint, start, apierr.Wrap(apierr.KindInvalidToken, err), span, logger)
		return
	}

	target := body.URL
	if target == "" {
		p.fail(w, endpoint, start, apierr.New(apierr.KindInvalidToken), span, logger)
		return
	}

	if !p.allowSelfSign && sameOrigin(target, p.domain) {
		p.fail(w, endpoint, start, apierr.New(apierr.KindBaseChanged), span, logger)
		return
	}

	values, err := p.signer.Sign(target, p.tokenTTL, nil)
	if err != nil {
		p.fail(w, endpoint, start, apierr.Wrap(apierr.KindConfigError, err), span, logger)
		return
	}

	if p.metrics != nil {
		p.metrics.IncrementRequests(endpoint, "POST", "200")
		p.metrics.RecordRequestLatency(endpoint, "POST", time.Since(start))
	}
	_ = ctx
	writeJSONHref(w, ProxyPathPrefix, values)
}

func (p *Proxy) fail(w http.ResponseWriter, endpoint string, start time.Time, err error, span trace.Span, logger *zap.Logger) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("clickproxy request failed", zap.String("endpoint", endpoint), zap.Error(err))
	status := apierr.StatusFor(kindOf(err))
	if p.metrics != nil {
		p.metrics.IncrementRequests(endpoint, r2method(endpoint), statusLabel(status))
		p.metrics.RecordRequestLatency(endpoint, r2method(endpoint), time.Since(start))
	}
	apierr.WriteHTTP(w, err)
}

func kindOf(err error) apierr.Kind {
	if e, ok := apierr.As(err); ok {
		return e.Kind
	}
	return apierr.KindUpstreamFailure
}

func r2method(endpoint string) string {
	if endpoint == "/first-party/click" {
		return "GET"
	}
	return "POST"
}

func statusLabel(status int) string {
	switch status {
	case 400:
		return "400"
	case 410:
		return "410"
	case 422:
		return "422"
	case 502:
		return "502"
	case 504:
		return "504"
	default:
		return "500"
	}
}
