package syntheticid

import (
	"testing"

	"github.com/trusted-server/edge/internal/apierr"
	"github.com/trusted-server/edge/internal/config"
)

func TestDeriveStableForIdenticalInputs(t *testing.T) {
	settings := config.SyntheticSettings{
		Template: "v1|{ip}|{ua}|{salt}",
		Salt:     []byte("pepper"),
		Secret:   []byte("secret"),
	}
	d := New(settings, nil, nil)
	src := Source{IP: "1.2.3.4", UserAgent: "Mozilla/5.0"}

	first, err := d.Derive(src)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := d.Derive(src)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable id, got %q vs %q", first, second)
	}
	if len(first) < 32 {
		t.Fatalf("expected at least 128 bits of hex, got %d chars", len(first))
	}
}

func TestDeriveDiffersForDifferentInputs(t *testing.T) {
	settings := config.SyntheticSettings{Template: "v1|{ip}|{ua}|{salt}", Salt: []byte("pepper"), Secret: []byte("secret")}
	d := New(settings, nil, nil)

	a, _ := d.Derive(Source{IP: "1.2.3.4", UserAgent: "A"})
	b, _ := d.Derive(Source{IP: "5.6.7.8", UserAgent: "A"})
	if a == b {
		t.Fatalf("expected different ids for different ips")
	}
}

func TestStrictModeRequiresPlaceholders(t *testing.T) {
	settings := config.SyntheticSettings{
		Template: "v1|{ip}|{ua}",
		Strict:   true,
		Required: []string{"ua"},
	}
	d := New(settings, []byte("secret"), nil)

	_, err := d.Derive(Source{IP: "1.2.3.4"})
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindSyntheticUnavailable {
		t.Fatalf("expected SyntheticUnavailable, got %v", err)
	}
}

func TestLenientModeSubstitutesEmpty(t *testing.T) {
	settings := config.SyntheticSettings{Template: "v1|{ip}|{ua}", Strict: false}
	d := New(settings, []byte("secret"), nil)

	if _, err := d.Derive(Source{IP: "1.2.3.4"}); err != nil {
		t.Fatalf("expected no error in lenient mode, got %v", err)
	}
}

func TestLogSafeTruncates(t *testing.T) {
	id := "0123456789abcdef0123456789abcdef"
	safe := LogSafe(id)
	if safe == id {
		t.Fatalf("expected truncation, got full id")
	}
	if len(safe) >= len(id) {
		t.Fatalf("expected shorter string, got %q", safe)
	}
}

func TestFallsBackToSigningSecretWhenUnset(t *testing.T) {
	settings := config.SyntheticSettings{Template: "v1|{ip}"}
	d := New(settings, []byte("fallback-secret"), nil)
	id, err := d.Derive(Source{IP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty id")
	}
}
