// Package assetproxy implements the signed-URL asset fetcher of spec
// §4.4: GET /first-party/proxy verifies a tsurl/tsexp/tskid/tstoken
// envelope, fetches the target over a plain (non-redirecting) HTTP client,
// walks redirect chains itself with a bounded hop count and loop
// detection, and sends HTML and CSS results through the HTML rewriter
// (see respond) before writing them back.
//
// The manual redirect walk, hop-by-hop header stripping, and the
// "never use CheckRedirect's automatic following" shape are grounded on
// antiphoton-amppackager's packager/signer.Signer.fetchURL / noRedirects /
// statefulResponseHeaders (see DESIGN.md); this package is not that
// teacher's module, so the pattern is reimplemented rather than imported.
package assetproxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/analytics"
	"github.com/trusted-server/edge/internal/apierr"
	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/middleware"
	"github.com/trusted-server/edge/internal/observability"
	"github.com/trusted-server/edge/internal/rewriter"
)

// Verifier is the subset of *signer.Signer the proxy needs.
type Verifier interface {
	Verify(values url.Values) (string, error)
}

// HTMLRewriter is the subset of *rewriter.Rewriter the proxy needs.
type HTMLRewriter interface {
	RewriteHTML(w io.Writer, r io.Reader) error
}

// hopByHopHeaders must never be forwarded between the proxy and either
// side of the connection, and must never be passed through to the client
// from the origin (RFC 7230 §6.1 plus the stateful-header set the
// teacher's signer also strips before proxying).
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Set-Cookie":          true,
	"Set-Cookie2":         true,
}

func stripHopByHopHeaders(h http.Header) {
	for k := range hopByHopHeaders {
		h.Del(k)
	}
}

// Proxy fetches externally-hosted assets on behalf of a publisher page.
type Proxy struct {
	verifier    Verifier
	rewriter    HTMLRewriter
	client      *http.Client
	redirectCap int
	hopTimeout  time.Duration
	logger      *zap.Logger
	metrics     observability.MetricsRegistry
	analytics   analytics.AnalyticsService
}

// New constructs a Proxy. rw may be nil if HTML/CSS rewriting is disabled.
// analyticsSvc may be nil to skip asset-fetch telemetry (e.g. in tests).
func New(v Verifier, rw HTMLRewriter, settings config.ProxySettings, logger *zap.Logger, metrics observability.MetricsRegistry, analyticsSvc analytics.AnalyticsService) *Proxy {
	return &Proxy{
		verifier: v,
		rewriter: rw,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		redirectCap: settings.RedirectCap,
		hopTimeout:  settings.HopTimeout,
		logger:      logger,
		metrics:     metrics,
		analytics:   analyticsSvc,
	}
}

// ServeHTTP handles GET /first-party/proxy?tsurl=...&tsexp=...&tskid=...&tstoken=...
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apierr.WriteHTTP(w, apierr.Wrap(apierr.KindInvalidToken, err))
		return
	}

	target, err := p.verifier.Verify(r.Form)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	synthID := presentedSyntheticID(r)

	resp, hops, err := p.fetchFollowingRedirects(r.Context(), target, synthID)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}
	defer resp.Body.Close()

	if p.metrics != nil {
		p.metrics.ObserveRedirectHops(hops)
	}

	status := resp.StatusCode
	p.respond(w, resp)

	if p.analytics != nil {
		requestID := r.Header.Get(middleware.RequestIDHeader)
		if err := p.analytics.RecordAssetFetch(r.Context(), requestID, hostOf(target), hops, status); err != nil && p.logger != nil {
			p.logger.Warn("record asset fetch failed", zap.Error(err))
		}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// presentedSyntheticID extracts the synthetic id presented by the browser,
// if any, without deriving a fresh one: the asset proxy only forwards an
// id the origin proxy already stamped, it never mints one itself (spec
// §4.4 steps 2 & 7).
func presentedSyntheticID(r *http.Request) string {
	if c, err := r.Cookie("synthetic_id"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("x-synthetic-id")
}

func appendQueryParam(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// fetchFollowingRedirects walks the redirect chain starting at target,
// stopping after redirectCap hops or on a detected loop (spec §4.4 edge
// cases). synthID, when non-empty, is folded into every hop's fetch URL
// as synthetic_id=<synthID>; loop detection and Location resolution still
// operate on the canonical (un-suffixed) URL.
func (p *Proxy) fetchFollowingRedirects(ctx context.Context, target, synthID string) (*http.Response, int, error) {
	seen := map[string]bool{}
	current := target
	hops := 0

	for {
		if seen[current] {
			return nil, hops, apierr.New(apierr.KindRedirectLoop)
		}
		seen[current] = true

		fetchURL := current
		if synthID != "" {
			fetchURL = appendQueryParam(current, "synthetic_id", synthID)
		}

		resp, err := p.fetchOne(ctx, fetchURL)
		if err != nil {
			return nil, hops, err
		}

		if !isRedirectStatus(resp.StatusCode) {
			return resp, hops, nil
		}

		loc := resp.Header.Get("Location")
		resp.Body.Close()
		if loc == "" {
			return nil, hops, apierr.Wrap(apierr.KindUpstreamFailure, errNoLocation)
		}

		hops++
		if hops > p.redirectCap {
			return nil, hops, apierr.New(apierr.KindTooManyRedirects)
		}

		next, err := resolveLocation(current, loc)
		if err != nil {
			return nil, hops, apierr.Wrap(apierr.KindUpstreamFailure, err)
		}
		current = next
	}
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(base, loc string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	locURL, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(locURL).String(), nil
}

func (p *Proxy) fetchOne(ctx context.Context, target string) (*http.Response, error) {
	hopCtx, cancel := context.WithTimeout(ctx, p.hopTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hopCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamFailure, err)
	}
	req.Header.Set("User-Agent", "trusted-server-edge/1.0 (+asset-proxy)")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := hopCtx.Err(); ctxErr != nil {
			return nil, apierr.Wrap(apierr.KindUpstreamTimeout, ctxErr)
		}
		return nil, apierr.Wrap(apierr.KindUpstreamFailure, err)
	}
	// A 303 redirect body carries nothing meaningful to a GET follow-up;
	// the caller strips it before issuing the next hop.
	if resp.StatusCode == http.StatusSeeOther {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 0))
	}
	return resp, nil
}

// respond writes the upstream response to w, passing the body through the
// HTML rewriter when its content type is HTML or CSS and through unchanged
// otherwise. A CSS body is tokenized as HTML text, so its url() and
// @import references are not rewritten.
func (p *Proxy) respond(w http.ResponseWriter, resp *http.Response) {
	stripHopByHopHeaders(resp.Header)
	contentType := resp.Header.Get("Content-Type")

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	if p.rewriter != nil && shouldRewriteBody(contentType) {
		var buf bytes.Buffer
		if err := p.rewriter.RewriteHTML(&buf, resp.Body); err != nil {
			w.Header().Del("Content-Length")
			w.WriteHeader(resp.StatusCode)
			io.Copy(w, resp.Body)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(resp.StatusCode)
		w.Write(buf.Bytes())
		return
	}

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func shouldRewriteBody(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "text/css")
}

var errNoLocation = errors.New("redirect response missing Location header")
