package rewriter

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/trusted-server/edge/internal/config"
)

type fakeSigner struct{}

func (fakeSigner) Sign(target string, ttl time.Duration, extra url.Values) (url.Values, error) {
	v := url.Values{}
	v.Set("tsurl", target)
	v.Set("tsexp", "1700000600")
	v.Set("tskid", "k1")
	v.Set("tstoken", "faketoken")
	return v, nil
}

func testSettings() *config.Settings {
	return &config.Settings{
		Publisher: config.PublisherSettings{Domain: "news.example"},
		Proxy:     config.ProxySettings{TokenTTL: 10 * time.Minute},
	}
}

func TestRewriteImgSrcToProxyURL(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), nil)
	var out strings.Builder
	in := `<html><head></head><body><img src="https://cdn.example/a.png"></body></html>`
	if err := rw.RewriteHTML(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, ProxyPathPrefix+"?") {
		t.Fatalf("expected proxy-rewritten src, got %s", got)
	}
	if !strings.Contains(got, "tsurl=") {
		t.Fatalf("expected signed params, got %s", got)
	}
}

func TestRewriteLeavesSameDomainUntouched(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), nil)
	var out strings.Builder
	in := `<img src="https://news.example/logo.png">`
	if err := rw.RewriteHTML(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if !strings.Contains(out.String(), "https://news.example/logo.png") {
		t.Fatalf("expected same-domain src unchanged, got %s", out.String())
	}
}

func TestRewriteAnchorAddsClickAttr(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), nil)
	var out strings.Builder
	in := `<a href="https://advertiser.example/landing">click</a>`
	if err := rw.RewriteHTML(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, ClickPathPrefix+"?") {
		t.Fatalf("expected click-rewritten href, got %s", got)
	}
	if !strings.Contains(got, "data-tsclick=") {
		t.Fatalf("expected data-tsclick attribute, got %s", got)
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), nil)
	var first strings.Builder
	in := `<img src="https://cdn.example/a.png">`
	if err := rw.RewriteHTML(&first, strings.NewReader(in)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	var second strings.Builder
	if err := rw.RewriteHTML(&second, strings.NewReader(first.String())); err != nil {
		t.Fatalf("rewrite twice: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("expected idempotent rewrite, got %s then %s", first.String(), second.String())
	}
}

func TestRewriteInjectsBootstrapScriptOnce(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), nil)
	var out strings.Builder
	in := `<html><head><title>x</title></head><body></body></html>`
	if err := rw.RewriteHTML(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got := out.String()
	if strings.Count(got, "ts-core.js") != 1 {
		t.Fatalf("expected exactly one bootstrap script, got %s", got)
	}
}

func TestRewriteHandlesMalformedMarkupWithoutError(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), nil)
	var out strings.Builder
	in := `<div><img src="https://cdn.example/a.png"` // unterminated tag
	if err := rw.RewriteHTML(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("expected total function, got error: %v", err)
	}
}

func TestRewriteCSSURLInStyleBlock(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), nil)
	var out strings.Builder
	in := `<style>body { background: url(https://cdn.example/bg.png); }</style>`
	if err := rw.RewriteHTML(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if !strings.Contains(out.String(), ProxyPathPrefix+"?") {
		t.Fatalf("expected rewritten css url, got %s", out.String())
	}
}

func TestIntegrationHostRewrittenToPathPreservingRoute(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), map[string]string{"sdk.adtag.example": "adtag"})
	var out strings.Builder
	in := `<script src="https://sdk.adtag.example/v2/loader.js?x=1"></script>`
	if err := rw.RewriteHTML(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if !strings.Contains(out.String(), "/integrations/adtag/v2/loader.js?x=1") {
		t.Fatalf("expected integration path rewrite, got %s", out.String())
	}
}

func TestDataAndJavascriptSchemesLeftAlone(t *testing.T) {
	rw := New(fakeSigner{}, testSettings(), nil)
	var out strings.Builder
	in := `<img src="data:image/png;base64,AAAA"><a href="javascript:void(0)">x</a>`
	if err := rw.RewriteHTML(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, `src="data:image/png;base64,AAAA"`) {
		t.Fatalf("expected data: src unchanged, got %s", got)
	}
	if !strings.Contains(got, `href="javascript:void(0)"`) {
		t.Fatalf("expected javascript: href unchanged, got %s", got)
	}
}
