// Package signer implements the URL signer/verifier of spec §4.1: opaque,
// tamper-resistant, expiring references to external URLs, encoded as the
// {tsurl, tsexp, tskid, tstoken} query-parameter envelope.
//
// The shape is derived from the teacher's internal/token package (HMAC over
// a serialized payload, base64url-encoded, constant-time compared) but
// reworked from a single static secret into the spec's key-set rotation:
// signing always uses the one "current" key; verification accepts any key
// whose validity window covers now, so a token signed under a retired key
// keeps verifying until that key's not_after.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/trusted-server/edge/internal/apierr"
	"github.com/trusted-server/edge/internal/config"
)

const (
	ParamTargetURL = "tsurl"
	ParamExpiry    = "tsexp"
	ParamKeyID     = "tskid"
	ParamToken     = "tstoken"
)

// Signer signs and verifies proxy tokens against a Settings key set.
type Signer struct {
	keys SigningKeySource
	now  func() time.Time
}

// SigningKeySource abstracts config.SigningSettings so tests can supply a
// minimal fake without constructing a full config.Settings.
type SigningKeySource interface {
	Current() (config.SigningKey, bool)
	Lookup(id string) (config.SigningKey, bool)
}

// New constructs a Signer over the given key source. now defaults to
// time.Now; tests inject a fixed clock to exercise expiry deterministically.
func New(keys SigningKeySource, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{keys: keys, now: now}
}

// Sign produces the query-parameter envelope for target, valid for ttl from
// now. extra carries caller-supplied additional parameters (e.g. the
// rewriter's click allow-list additions) which are preserved verbatim
// alongside the signed quad but are NOT covered by the HMAC tag — per spec
// §4.5, original signing binds the parameters that matter; callers that
// need a parameter authenticated must fold it into target's query string
// before calling Sign.
func (s *Signer) Sign(target string, ttl time.Duration, extra url.Values) (url.Values, error) {
	key, ok := s.keys.Current()
	if !ok {
		return nil, apierr.New(apierr.KindConfigError)
	}

	canonical, err := Canonicalize(target)
	if err != nil {
		return nil, fmt.Errorf("canonicalize target: %w", err)
	}

	expiry := s.now().Add(ttl).Unix()
	tag := computeTag(key.Secret, canonical, expiry, key.ID)

	values := url.Values{}
	for k, vs := range extra {
		values[k] = append([]string(nil), vs...)
	}
	values.Set(ParamTargetURL, canonical)
	values.Set(ParamExpiry, strconv.FormatInt(expiry, 10))
	values.Set(ParamKeyID, key.ID)
	values.Set(ParamToken, base64.RawURLEncoding.EncodeToString(tag))
	return values, nil
}

// SignURL is a convenience wrapper returning firstPartyPath?<values>.
func (s *Signer) SignURL(firstPartyPath, target string, ttl time.Duration, extra url.Values) (string, error) {
	values, err := s.Sign(target, ttl, extra)
	if err != nil {
		return "", err
	}
	return firstPartyPath + "?" + values.Encode(), nil
}

// Verify validates the {tsurl,tsexp,tskid,tstoken} quad in values and
// returns the verified target URL. Failures are terminal per spec §4.1:
// unknown/out-of-window key id and tag mismatch both fail InvalidToken;
// an expired-but-otherwise-valid token fails ExpiredToken.
func (s *Signer) Verify(values url.Values) (string, error) {
	target := values.Get(ParamTargetURL)
	expStr := values.Get(ParamExpiry)
	keyID := values.Get(ParamKeyID)
	tokenStr := values.Get(ParamToken)

	if target == "" || expStr == "" || keyID == "" || tokenStr == "" {
		return "", apierr.New(apierr.KindInvalidToken)
	}

	expiry, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", apierr.New(apierr.KindInvalidToken)
	}

	tag, err := base64.RawURLEncoding.DecodeString(tokenStr)
	if err != nil {
		return "", apierr.New(apierr.KindInvalidToken)
	}

	key, ok := s.keys.Lookup(keyID)
	if !ok {
		return "", apierr.New(apierr.KindInvalidToken)
	}

	now := s.now()
	if !key.Valid(now) {
		return "", apierr.New(apierr.KindInvalidToken)
	}

	want := computeTag(key.Secret, target, expiry, keyID)
	if !hmac.Equal(tag, want) {
		return "", apierr.New(apierr.KindInvalidToken)
	}

	if now.Unix() >= expiry {
		return "", apierr.New(apierr.KindExpiredToken)
	}

	return target, nil
}

func computeTag(secret []byte, canonicalTarget string, expiry int64, keyID string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(canonicalTarget))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expiry, 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(keyID))
	return mac.Sum(nil)[:32]
}

// Canonicalize percent-decodes target once and re-encodes it with a fixed
// charset policy (RFC 3986 unreserved characters preserved, everything else
// percent-escaped) so that semantically identical URLs sign identically
// across the rewriter and the verifier (spec §4.1, Open Question E.1).
func Canonicalize(target string) (string, error) {
	decoded, err := url.QueryUnescape(target)
	if err != nil {
		// Not percent-encoded at all; fall through with the original.
		decoded = target
	}

	u, err := url.Parse(decoded)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteString(escapePath(u.EscapedPath()))
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(escapeQuery(u.Query()))
	}
	return b.String(), nil
}

func escapePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// escapeQuery re-encodes query parameters in a stable, sorted order so that
// reordered-but-equivalent query strings canonicalize identically.
func escapeQuery(q url.Values) string {
	return q.Encode() // url.Values.Encode sorts by key
}
