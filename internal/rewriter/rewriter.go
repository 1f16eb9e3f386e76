// Package rewriter implements the streaming HTML/CSS rewrite pipeline of
// spec §4.3: a single-pass tokenizer walk over an io.Reader that replaces
// external src/href targets with signed first-party proxy URLs and emits
// an io.Writer stream, never buffering the whole document (spec §9,
// "streaming body rewriting"). Form action attributes are left unchanged.
//
// No file in the example pack implements an HTML rewriter; the tokenizer
// loop is built on golang.org/x/net/html, the ecosystem-standard choice
// already present (transitively) in the teacher's dependency graph, rather
// than a hand-rolled scanner. The Signer dependency-injection shape (an
// interface satisfied by *signer.Signer, passed in at construction so the
// two packages don't import each other) follows the design note in spec §9
// about breaking the rewriter/signer cycle.
package rewriter

import (
	"bytes"
	"io"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/trusted-server/edge/internal/config"
)

const (
	ProxyPathPrefix = "/first-party/proxy"
	ClickPathPrefix = "/first-party/click"
)

// Signer is the subset of *signer.Signer the rewriter needs.
type Signer interface {
	Sign(target string, ttl time.Duration, extra url.Values) (url.Values, error)
}

// Rewriter transforms markup so that every external fetch the page would
// have made re-enters the edge via a signed first-party URL.
type Rewriter struct {
	signer       Signer
	domain       string // publisher domain; URLs to it are left unchanged
	tokenTTL     time.Duration
	integrations map[string]integrationHost // sdk host -> integration id
	css          *cssRewriter
}

type integrationHost struct {
	id   string
	host string
}

// New constructs a Rewriter. integrations maps a known SDK host (spec's
// "Known integration SDK hosts" table row) to the integration id used to
// build its path-preserving first-party route.
func New(s Signer, settings *config.Settings, integrationHosts map[string]string) *Rewriter {
	hosts := make(map[string]integrationHost, len(integrationHosts))
	for host, id := range integrationHosts {
		hosts[host] = integrationHost{id: id, host: host}
	}
	return &Rewriter{
		signer:       s,
		domain:       settings.Publisher.Domain,
		tokenTTL:     settings.Proxy.TokenTTL,
		integrations: hosts,
		css:          newCSSRewriter(s, settings.Publisher.Domain, settings.Proxy.TokenTTL),
	}
}

// bootstrapScript is the small tag prepended to <head> that loads the
// publisher's first-party core helper (spec §4.3's head-injection rule).
const bootstrapScript = `<script src="/static/ts-core.js" async></script>`

// RewriteHTML reads HTML from r and writes the rewritten document to w. It
// is a total function: malformed markup is never an error, it is tokenized
// best-effort and passed through (spec §8 "Rewrite totality").
func (rw *Rewriter) RewriteHTML(w io.Writer, r io.Reader) error {
	z := html.NewTokenizer(r)
	headInjected := false
	var rawTextTag atom.Atom // nonzero while inside <script>/<style>/textarea raw text

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil // total function: stop cleanly, don't propagate tokenizer errors
			}
			return nil
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			rw.rewriteTag(&tok)
			if _, err := io.WriteString(w, tok.String()); err != nil {
				return err
			}
			if tok.DataAtom == atom.Head && tt == html.StartTagToken && !headInjected {
				if _, err := io.WriteString(w, bootstrapScript); err != nil {
					return err
				}
				headInjected = true
			}
			if tt == html.StartTagToken && (tok.DataAtom == atom.Script || tok.DataAtom == atom.Style) {
				rawTextTag = tok.DataAtom
			}

		case html.EndTagToken:
			tok := z.Token()
			if _, err := io.WriteString(w, tok.String()); err != nil {
				return err
			}
			rawTextTag = 0

		case html.TextToken:
			if rawTextTag == atom.Style {
				if err := rw.css.Rewrite(w, bytes.NewReader(z.Raw())); err != nil {
					return err
				}
				continue
			}
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}

		default:
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}

// rewriteTag mutates tok's attributes in place per the table in spec §4.3.
func (rw *Rewriter) rewriteTag(tok *html.Token) {
	switch tok.DataAtom {
	case atom.Script, atom.Img, atom.Iframe, atom.Source:
		rw.rewriteAttr(tok, "src", signAsProxy)
	case atom.Link:
		if relIsStylesheetOrPreload(tok) {
			rw.rewriteAttr(tok, "href", signAsProxy)
		}
	case atom.A:
		rw.rewriteAnchor(tok)
	}
}

func relIsStylesheetOrPreload(tok *html.Token) bool {
	for _, a := range tok.Attr {
		if a.Key == "rel" {
			rel := strings.ToLower(a.Val)
			return strings.Contains(rel, "stylesheet") || strings.Contains(rel, "preload")
		}
	}
	return false
}

type signKind int

const (
	signAsProxy signKind = iota
	signAsClick
)

func (rw *Rewriter) rewriteAnchor(tok *html.Token) {
	for i := range tok.Attr {
		a := &tok.Attr[i]
		if a.Key != "href" {
			continue
		}
		if !rw.shouldRewrite(a.Val) {
			return
		}
		signed, ok := rw.sign(a.Val, signAsClick)
		if !ok {
			return
		}
		a.Val = signed
		tok.Attr = append(tok.Attr, html.Attribute{Key: "data-tsclick", Val: signed})
		return
	}
}

func (rw *Rewriter) rewriteAttr(tok *html.Token, key string, kind signKind) {
	for i := range tok.Attr {
		a := &tok.Attr[i]
		if a.Key != key {
			continue
		}
		if !rw.shouldRewrite(a.Val) {
			return
		}
		if id, host, ok := rw.integrationFor(a.Val); ok {
			a.Val = rw.integrationPath(id, host, a.Val)
			return
		}
		if signed, ok := rw.sign(a.Val, kind); ok {
			a.Val = signed
		}
		return
	}
}

func (rw *Rewriter) shouldRewrite(raw string) bool {
	return shouldRewriteTarget(raw, rw.domain)
}

// shouldRewriteTarget implements the "left unchanged" rows of the rewrite
// table: relative URLs, publisher-domain URLs, data:/javascript:/blob:/
// about: schemes, and anything already wrapped by this rewriter
// (idempotence).
func shouldRewriteTarget(raw, domain string) bool {
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, ProxyPathPrefix) || strings.HasPrefix(raw, ClickPathPrefix) {
		return false
	}
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"data:", "javascript:", "blob:", "about:", "#"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == domain {
		return false
	}
	return true
}

func (rw *Rewriter) integrationFor(raw string) (id, host string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	in, ok := rw.integrations[u.Host]
	if !ok {
		return "", "", false
	}
	return in.id, in.host, true
}

// integrationPath rewrites to the path-preserving form: /integrations/<id>/<path>.
func (rw *Rewriter) integrationPath(id, host, raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return "/integrations/" + id + path
}

func (rw *Rewriter) sign(target string, kind signKind) (string, bool) {
	return signTarget(rw.signer, rw.tokenTTL, target, kind)
}

func signTarget(s Signer, ttl time.Duration, target string, kind signKind) (string, bool) {
	path := ProxyPathPrefix
	if kind == signAsClick {
		path = ClickPathPrefix
	}
	values, err := s.Sign(target, ttl, nil)
	if err != nil {
		return "", false
	}
	return path + "?" + values.Encode(), true
}
