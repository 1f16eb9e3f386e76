package clickproxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/observability"
)

type fakeSignerVerifier struct {
	signed    url.Values
	signErr   error
	verifyOut string
	verifyErr error
}

func (f *fakeSignerVerifier) Sign(target string, ttl time.Duration, extra url.Values) (url.Values, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	v := url.Values{}
	v.Set("tsurl", target)
	v.Set("tstoken", "tok")
	return v, nil
}

func (f *fakeSignerVerifier) Verify(values url.Values) (string, error) {
	return f.verifyOut, f.verifyErr
}

func testSettings() *config.Settings {
	return &config.Settings{
		Publisher: config.PublisherSettings{Domain: "news.example"},
		Proxy:     config.ProxySettings{TokenTTL: 10 * time.Minute},
	}
}

func jsonRequest(method, target string, body any) *http.Request {
	buf, _ := json.Marshal(body)
	return httptest.NewRequest(method, target, bytes.NewReader(buf))
}

func TestClickHandlerRedirectsWithNoStore(t *testing.T) {
	sv := &fakeSignerVerifier{verifyOut: "https://advertiser.example/landing"}
	p := New(sv, nil, testSettings(), nil, observability.NewNoOpRegistry(), nil)

	req := httptest.NewRequest(http.MethodGet, "/first-party/click?tsurl=x", nil)
	rec := httptest.NewRecorder()
	p.ClickHandler(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "no-store, private", rec.Header().Get("Cache-Control"))
	require.Equal(t, "https://advertiser.example/landing", rec.Header().Get("Location"))
}

func TestSignHandlerRefusesSelfOriginByDefault(t *testing.T) {
	sv := &fakeSignerVerifier{}
	p := New(sv, nil, testSettings(), nil, observability.NewNoOpRegistry(), nil)

	req := jsonRequest(http.MethodPost, "/first-party/sign", signRequest{URL: "https://news.example/internal"})
	rec := httptest.NewRecorder()
	p.SignHandler(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSignHandlerAllowsExternalTarget(t *testing.T) {
	sv := &fakeSignerVerifier{}
	p := New(sv, nil, testSettings(), nil, observability.NewNoOpRegistry(), nil)

	req := jsonRequest(http.MethodPost, "/first-party/sign", signRequest{URL: "https://advertiser.example/x"})
	rec := httptest.NewRecorder()
	p.SignHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Contains(t, out["href"], ProxyPathPrefix+"?")
	require.Contains(t, out["href"], "tsurl=")
}

func TestProxyRebuildAllowsQueryOnlyMutation(t *testing.T) {
	sv := &fakeSignerVerifier{verifyOut: "https://cdn.example/a.js?x=1"}
	p := New(sv, nil, testSettings(), nil, observability.NewNoOpRegistry(), nil)

	req := jsonRequest(http.MethodPost, "/first-party/proxy-rebuild", rebuildRequest{
		TSClick: "https://edge.example/first-party/click?tstoken=tok",
		Add:     map[string]string{"evil": "https://other.example"},
	})
	rec := httptest.NewRecorder()
	p.ProxyRebuildHandler(rec, req)

	// Query-only mutation never changes scheme+host+path, so this should succeed.
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Contains(t, out["href"], ClickPathPrefix+"?")
	require.Equal(t, "https://cdn.example/a.js", out["base"])
}
