package signer

import (
	"testing"
	"time"

	"github.com/trusted-server/edge/internal/apierr"
	"github.com/trusted-server/edge/internal/config"
)

func fixedKeys(keys ...config.SigningKey) config.SigningSettings {
	return config.SigningSettings{Keys: keys, CurrentID: keys[len(keys)-1].ID}
}

func TestSignThenVerifyRoundtrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	keys := fixedKeys(config.SigningKey{
		ID:        "k1",
		Secret:    []byte{0x00, 0x01, 0x02},
		NotBefore: time.Unix(0, 0),
		NotAfter:  time.Unix(1<<62, 0),
	})

	s := New(keys, func() time.Time { return now })

	values, err := s.Sign("https://cdn.example/a.js", 600*time.Second, nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if values.Get(ParamExpiry) != "1700000600" {
		t.Fatalf("unexpected expiry: %s", values.Get(ParamExpiry))
	}
	if values.Get(ParamKeyID) != "k1" {
		t.Fatalf("unexpected key id: %s", values.Get(ParamKeyID))
	}
	if len(values.Get(ParamToken)) != 43 {
		t.Fatalf("expected 43-char base64url token, got %d chars", len(values.Get(ParamToken)))
	}

	verifyAt := New(keys, func() time.Time { return time.Unix(1_700_000_100, 0) })
	target, err := verifyAt.Verify(values)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if target != "https://cdn.example/a.js" {
		t.Fatalf("unexpected target: %s", target)
	}
}

func TestVerifyExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	keys := fixedKeys(config.SigningKey{
		ID: "k1", Secret: []byte("s"),
		NotBefore: time.Unix(0, 0), NotAfter: time.Unix(1<<62, 0),
	})
	s := New(keys, func() time.Time { return now })
	values, _ := s.Sign("https://cdn.example/a.js", 600*time.Second, nil)

	late := New(keys, func() time.Time { return time.Unix(1_700_000_601, 0) })
	_, err := late.Verify(values)
	if !equalKind(err, apierr.KindExpiredToken) {
		t.Fatalf("expected ExpiredToken, got %v", err)
	}
}

func TestVerifyTamperedTokenFails(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	keys := fixedKeys(config.SigningKey{
		ID: "k1", Secret: []byte("s"),
		NotBefore: time.Unix(0, 0), NotAfter: time.Unix(1<<62, 0),
	})
	s := New(keys, func() time.Time { return now })
	values, _ := s.Sign("https://cdn.example/a.js", 600*time.Second, nil)

	tok := values.Get(ParamToken)
	flipped := flipLastChar(tok)
	values.Set(ParamToken, flipped)

	_, err := s.Verify(values)
	if !equalKind(err, apierr.KindInvalidToken) {
		t.Fatalf("expected InvalidToken, got %v", err)
	}
}

func TestRotationCompatibility(t *testing.T) {
	oldKey := config.SigningKey{
		ID: "k1", Secret: []byte("old"),
		NotBefore: time.Unix(0, 0), NotAfter: time.Unix(1_700_001_000, 0),
	}
	newKey := config.SigningKey{
		ID: "k2", Secret: []byte("new"),
		NotBefore: time.Unix(1_699_999_000, 0), NotAfter: time.Unix(1<<62, 0),
	}
	keys := config.SigningSettings{Keys: []config.SigningKey{oldKey, newKey}, CurrentID: "k2"}

	signedWithOld := New(config.SigningSettings{Keys: keys.Keys, CurrentID: "k1"},
		func() time.Time { return time.Unix(1_700_000_000, 0) })
	values, err := signedWithOld.Sign("https://cdn.example/a.js", 10*time.Second, nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	withinWindow := New(keys, func() time.Time { return time.Unix(1_700_000_005, 0) })
	if _, err := withinWindow.Verify(values); err != nil {
		t.Fatalf("expected old key to still verify: %v", err)
	}

	afterRetirement := New(keys, func() time.Time { return time.Unix(1_700_002_000, 0) })
	if _, err := afterRetirement.Verify(values); !equalKind(err, apierr.KindInvalidToken) {
		t.Fatalf("expected InvalidToken after key retirement, got %v", err)
	}
}

func TestCanonicalizeStableAcrossEquivalentEncodings(t *testing.T) {
	a, err := Canonicalize("https://ex.com/a?b=1&c=2")
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	b, err := Canonicalize("https%3A%2F%2Fex.com%2Fa%3Fb%3D1%26c%3D2")
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if a != b {
		t.Fatalf("expected equivalent canonicalization, got %q vs %q", a, b)
	}
}

func flipLastChar(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	last := b[len(b)-1]
	if last == 'A' {
		b[len(b)-1] = 'B'
	} else {
		b[len(b)-1] = 'A'
	}
	return string(b)
}

func equalKind(err error, kind apierr.Kind) bool {
	e, ok := apierr.As(err)
	return ok && e.Kind == kind
}
