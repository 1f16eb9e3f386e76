package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trusted-server/edge/internal/middleware"
)

// IntegrationProxyHandler serves GET /integrations/<id>/* (spec §4.8): a
// path-preserving proxy to the known SDK host configured for integration
// id, used instead of the generic signed asset proxy for hosts the
// rewriter already recognizes (spec §4.3's integration-host rewrite rule).
func (s *Server) IntegrationProxyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "/integrations"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	rest := strings.TrimPrefix(r.URL.Path, "/integrations/")
	id, path, ok := strings.Cut(rest, "/")
	if !ok {
		path = ""
	}

	integration, ok := s.Settings.Integrations[id]
	if !ok || integration.Endpoint == "" {
		s.Metrics.IncrementRequests(endpoint, r.Method, "404")
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
		http.NotFound(w, r)
		return
	}

	target := strings.TrimRight(integration.Endpoint, "/") + "/" + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, r.Method, "500")
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
		http.Error(w, "bad upstream target", http.StatusInternalServerError)
		return
	}
	upstreamReq.Header.Set("User-Agent", r.UserAgent())

	resp, err := http.DefaultClient.Do(upstreamReq)
	if err != nil {
		logger.Warn("integration proxy upstream failed", zap.String("integration", id), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, r.Method, "502")
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)

	s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(resp.StatusCode))
	s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
}
