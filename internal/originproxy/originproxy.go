// Package originproxy serves the publisher's own pages: it forwards GET/POST
// requests to the configured origin, rewrites HTML bodies through
// internal/rewriter, and stamps the synthetic id as a first-party cookie
// plus the X-Synthetic-Fresh/x-psid-ts response headers (spec §4.6).
// Handler shape (otel span, trace-aware logger, MetricsRegistry counters,
// the OpenRTB handler's endpoint/method/status labeling convention) is
// grounded on internal/api/ad.go's GetAdHandler.
package originproxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/apierr"
	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/middleware"
	"github.com/trusted-server/edge/internal/observability"
	"github.com/trusted-server/edge/internal/syntheticid"
)

var tracer = otel.Tracer("trusted-server-edge/originproxy")

const synthCookieName = "synthetic_id"

// HTMLRewriter is the subset of *rewriter.Rewriter origin proxy needs.
type HTMLRewriter interface {
	RewriteHTML(w io.Writer, r io.Reader) error
}

// Proxy forwards requests to the publisher's origin and stamps identity.
type Proxy struct {
	origin   string
	domain   string
	deriver  *syntheticid.Deriver
	rewriter HTMLRewriter
	client   *http.Client
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
}

// New constructs a Proxy. rewriter may be nil to disable HTML rewriting
// (e.g. in tests exercising header stamping alone).
func New(settings *config.Settings, deriver *syntheticid.Deriver, rewriter HTMLRewriter, logger *zap.Logger, metrics observability.MetricsRegistry) *Proxy {
	return &Proxy{
		origin:   strings.TrimRight(settings.Publisher.OriginURL, "/"),
		domain:   settings.Publisher.Domain,
		deriver:  deriver,
		rewriter: rewriter,
		client:   &http.Client{Timeout: settings.Proxy.HopTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:   logger,
		metrics:  metrics,
	}
}

// ServeHTTP forwards GET and POST requests to the publisher origin. GET
// responses are rewritten and identity-stamped; POST flows through
// unmodified except for header stamping (spec §4.6).
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "OriginProxy",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		))
	defer span.End()
	logger := middleware.LoggerFromRequest(r, p.logger)
	start := time.Now()
	endpoint := "origin_proxy"

	existing, hadCookie := p.existingSyntheticID(r)
	synthID := existing
	fresh := false
	if !hadCookie && p.deriver != nil {
		id, err := p.deriver.Derive(syntheticid.FromRequest(r))
		if err != nil {
			p.fail(w, endpoint, r.Method, start, apierr.Wrap(apierr.KindSyntheticUnavailable, err), span, logger)
			return
		}
		synthID = id
		fresh = true
	}

	upstreamResp, err := p.forward(ctx, r, synthID)
	if err != nil {
		p.fail(w, endpoint, r.Method, start, err, span, logger)
		return
	}
	defer upstreamResp.Body.Close()

	p.stamp(w, upstreamResp, synthID, fresh)

	if r.Method == http.MethodGet && p.rewriter != nil && isHTML(upstreamResp.Header.Get("Content-Type")) {
		var buf bytes.Buffer
		if err := p.rewriter.RewriteHTML(&buf, upstreamResp.Body); err != nil {
			logger.Warn("rewrite origin body failed, passing through unrewritten", zap.Error(err))
			w.WriteHeader(upstreamResp.StatusCode)
			io.Copy(w, upstreamResp.Body)
		} else {
			w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
			w.WriteHeader(upstreamResp.StatusCode)
			buf.WriteTo(w)
		}
	} else {
		w.WriteHeader(upstreamResp.StatusCode)
		io.Copy(w, upstreamResp.Body)
	}

	status := strconv.Itoa(upstreamResp.StatusCode)
	if p.metrics != nil {
		p.metrics.IncrementOriginProxy(status)
		p.metrics.IncrementRequests(endpoint, r.Method, status)
		p.metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}
	span.SetAttributes(attribute.Int("http.status_code", upstreamResp.StatusCode))
}

func (p *Proxy) existingSyntheticID(r *http.Request) (string, bool) {
	if c, err := r.Cookie(synthCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	if id := r.Header.Get("x-synthetic-id"); id != "" {
		return id, true
	}
	return "", false
}

func (p *Proxy) forward(ctx context.Context, r *http.Request, synthID string) (*http.Response, error) {
	target := p.origin + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Method == http.MethodPost {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindConfigError, err)
	}
	req.Header = r.Header.Clone()
	if synthID != "" {
		req.Header.Set("x-synthetic-id", synthID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.Wrap(apierr.KindUpstreamTimeout, err)
		}
		return nil, apierr.Wrap(apierr.KindUpstreamFailure, err)
	}
	return resp, nil
}

// stamp sets the synthetic-id cookie and X-Synthetic-Fresh (only when the
// id was freshly derived) and x-psid-ts on every response, per spec §4.6.
func (p *Proxy) stamp(w http.ResponseWriter, upstream *http.Response, synthID string, fresh bool) {
	for k, vv := range upstream.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Del("Content-Length")

	if fresh && synthID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     synthCookieName,
			Value:    synthID,
			Domain:   p.domain,
			Path:     "/",
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})
		w.Header().Set("X-Synthetic-Fresh", "1")
	}
	w.Header().Set("x-psid-ts", strconv.FormatInt(time.Now().Unix(), 10))
}

func (p *Proxy) fail(w http.ResponseWriter, endpoint, method string, start time.Time, err error, span trace.Span, logger *zap.Logger) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("origin proxy request failed", zap.String("endpoint", endpoint), zap.Error(err))
	status := apierr.StatusFor(kindOf(err))
	if p.metrics != nil {
		p.metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		p.metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	}
	apierr.WriteHTTP(w, err)
}

func kindOf(err error) apierr.Kind {
	if e, ok := apierr.As(err); ok {
		return e.Kind
	}
	return apierr.KindUpstreamFailure
}

func isHTML(contentType string) bool {
	return strings.Contains(contentType, "text/html")
}
