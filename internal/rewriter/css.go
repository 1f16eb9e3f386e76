package rewriter

import (
	"bufio"
	"io"
	"regexp"
	"time"
)

// cssRewriter rewrites url(...) references and @import targets inside a
// <style> block (spec §4.3's CSS rewrite row); it is not applied to
// external stylesheet bodies. It operates on the whole block at once rather
// than token-by-token, since CSS has no streaming tokenizer in the pack's
// dependency set, so the whole block is read into memory first.
type cssRewriter struct {
	signer   Signer
	domain   string
	tokenTTL time.Duration
}

func newCSSRewriter(s Signer, domain string, ttl time.Duration) *cssRewriter {
	return &cssRewriter{signer: s, domain: domain, tokenTTL: ttl}
}

var (
	cssURLPattern    = regexp.MustCompile(`url\(\s*(['"]?)([^'")]+)(['"]?)\s*\)`)
	cssImportPattern = regexp.MustCompile(`@import\s+(['"])([^'"]+)(['"])`)
)

// Rewrite reads a CSS block from r and writes the rewritten block to w.
func (c *cssRewriter) Rewrite(w io.Writer, r io.Reader) error {
	raw, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return err
	}
	out := cssURLPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		return c.rewriteURLMatch(m)
	})
	out = cssImportPattern.ReplaceAllFunc(out, func(m []byte) []byte {
		return c.rewriteImportMatch(m)
	})
	_, err = w.Write(out)
	return err
}

func (c *cssRewriter) rewriteURLMatch(m []byte) []byte {
	groups := cssURLPattern.FindSubmatch(m)
	if groups == nil {
		return m
	}
	quote, target := string(groups[1]), string(groups[2])
	if !c.shouldRewrite(target) {
		return m
	}
	signed, ok := c.sign(target)
	if !ok {
		return m
	}
	return []byte("url(" + quote + signed + quote + ")")
}

func (c *cssRewriter) rewriteImportMatch(m []byte) []byte {
	groups := cssImportPattern.FindSubmatch(m)
	if groups == nil {
		return m
	}
	quote, target := string(groups[1]), string(groups[2])
	if !c.shouldRewrite(target) {
		return m
	}
	signed, ok := c.sign(target)
	if !ok {
		return m
	}
	return []byte("@import " + quote + signed + quote)
}

func (c *cssRewriter) shouldRewrite(raw string) bool {
	return shouldRewriteTarget(raw, c.domain)
}

func (c *cssRewriter) sign(target string) (string, bool) {
	return signTarget(c.signer, c.tokenTTL, target, signAsProxy)
}
