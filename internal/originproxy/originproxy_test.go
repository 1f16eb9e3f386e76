package originproxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/observability"
	"github.com/trusted-server/edge/internal/syntheticid"
)

type passthroughRewriter struct{ injected string }

func (p *passthroughRewriter) RewriteHTML(w io.Writer, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = w.Write(append(body, []byte(p.injected)...))
	return err
}

func testSettings(originURL string) *config.Settings {
	return &config.Settings{
		Publisher: config.PublisherSettings{Domain: "news.example", OriginURL: originURL},
		Proxy:     config.ProxySettings{HopTimeout: 2 * time.Second},
	}
}

func testDeriver() *syntheticid.Deriver {
	return syntheticid.New(config.SyntheticSettings{Template: "{ip}-{ua}"}, []byte("fallback-secret"), nil)
}

func TestGETStampsFreshCookieAndHeaders(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer origin.Close()

	p := New(testSettings(origin.URL), testDeriver(), &passthroughRewriter{injected: "<!--rw-->"}, nil, observability.NewNoOpRegistry())

	req := httptest.NewRequest(http.MethodGet, "/section/page", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Synthetic-Fresh") != "1" {
		t.Fatalf("expected X-Synthetic-Fresh: 1, got %q", rec.Header().Get("X-Synthetic-Fresh"))
	}
	if rec.Header().Get("x-psid-ts") == "" {
		t.Fatalf("expected x-psid-ts header to be set")
	}
	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "synthetic_id" {
			found = true
			if !c.Secure || c.SameSite != http.SameSiteLaxMode {
				t.Fatalf("cookie attrs wrong: secure=%v samesite=%v", c.Secure, c.SameSite)
			}
		}
	}
	if !found {
		t.Fatalf("expected synthetic_id cookie to be set")
	}
	if got := rec.Body.String(); got != "<html><body>hi</body></html><!--rw-->" {
		t.Fatalf("expected rewritten body, got %q", got)
	}
}

func TestGETWithExistingCookieSkipsFreshStamp(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-synthetic-id") != "already-known" {
			t.Errorf("expected forwarded synthetic id header, got %q", r.Header.Get("x-synthetic-id"))
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer origin.Close()

	p := New(testSettings(origin.URL), testDeriver(), nil, nil, observability.NewNoOpRegistry())

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	req.AddCookie(&http.Cookie{Name: "synthetic_id", Value: "already-known"})
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Header().Get("X-Synthetic-Fresh") == "1" {
		t.Fatalf("did not expect fresh stamp when cookie already present")
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "synthetic_id" {
			t.Fatalf("did not expect synthetic_id cookie to be re-set")
		}
	}
}

func TestPOSTPassesThroughUnmodifiedExceptHeaders(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer origin.Close()

	p := New(testSettings(origin.URL), testDeriver(), &passthroughRewriter{injected: "SHOULD-NOT-APPEAR"}, nil, observability.NewNoOpRegistry())

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"a":1}`))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Body.String() != `{"a":1}` {
		t.Fatalf("expected unmodified POST body, got %q", rec.Body.String())
	}
	if rec.Header().Get("x-psid-ts") == "" {
		t.Fatalf("expected header stamping even on POST")
	}
}
