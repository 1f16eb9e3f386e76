// Package syntheticid derives the deterministic, storage-free pseudonymous
// visitor identifier of spec §4.2: HMAC over a template's bound variables,
// hex-encoded. The placeholder-substitution shape is modeled on the
// teacher's internal/macros.MacroExpander (a registry of named expansion
// functions keyed off a context struct), simplified to the fixed set of
// placeholders the spec names instead of an open creative-macro registry.
package syntheticid

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/trusted-server/edge/internal/apierr"
	"github.com/trusted-server/edge/internal/config"
)

// CountryLookup resolves an IP to an ISO country code, satisfied by
// *internal/geoip.GeoIP. Abstracted so Deriver doesn't need the MaxMind DB
// wrapper's JSON-fallback and Region lookup it doesn't use.
type CountryLookup interface {
	Country(ip net.IP) string
}

// Source supplies the per-request attributes a template placeholder may
// reference.
type Source struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
}

// Deriver computes synthetic ids from a Settings.Synthetic template.
type Deriver struct {
	settings config.SyntheticSettings
	fallback []byte // current signing key's secret, used when Settings.Synthetic.Secret is empty
	geo      CountryLookup
}

// New constructs a Deriver. geo may be nil (no country enrichment).
func New(settings config.SyntheticSettings, fallbackSecret []byte, geo CountryLookup) *Deriver {
	return &Deriver{settings: settings, fallback: fallbackSecret, geo: geo}
}

// FromRequest extracts a Source from an inbound HTTP request.
func FromRequest(r *http.Request) Source {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		if idx := strings.IndexByte(ip, ','); idx >= 0 {
			ip = ip[:idx]
		}
		ip = strings.TrimSpace(ip)
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	} else {
		ip = r.RemoteAddr
	}
	return Source{
		IP:             ip,
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}
}

// Derive computes the hex-encoded synthetic id for src. If a required
// placeholder is missing and Settings.Synthetic.Strict is true, it returns
// a SyntheticUnavailable error (spec §4.2/§7); otherwise missing values are
// substituted with the empty string.
func (d *Deriver) Derive(src Source) (string, error) {
	values := map[string]string{
		"ip":              src.IP,
		"ua":              src.UserAgent,
		"accept_language": src.AcceptLanguage,
		"salt":            string(d.settings.Salt),
		"geo":             d.countryFor(src.IP),
		"device":          deviceClassFor(src.UserAgent),
	}

	if d.settings.Strict {
		for _, req := range d.settings.Required {
			if values[req] == "" {
				return "", apierr.New(apierr.KindSyntheticUnavailable)
			}
		}
	}

	bound := substitute(d.settings.Template, values)

	secret := d.settings.Secret
	if len(secret) == 0 {
		secret = d.fallback
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(bound))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// LogSafe truncates id to a fixed prefix for logging, per spec §4.2's
// requirement that the full value never appear in logs.
func LogSafe(id string) string {
	const prefixLen = 12
	if len(id) <= prefixLen {
		return id
	}
	return id[:prefixLen] + "…"
}

func (d *Deriver) countryFor(ip string) string {
	if d.geo == nil || ip == "" {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	return d.geo.Country(parsed)
}

func deviceClassFor(ua string) string {
	if ua == "" {
		return ""
	}
	s := uasurfer.Parse(ua)
	switch s.DeviceType {
	case uasurfer.DevicePhone, uasurfer.DeviceTablet:
		return "mobile"
	default:
		return "desktop"
	}
}

// substitute replaces every {name} occurrence in template with values[name];
// unknown placeholders are left as-is (total function, never errors).
func substitute(template string, values map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		if template[i] == '{' {
			if end := strings.IndexByte(template[i:], '}'); end > 0 {
				name := template[i+1 : i+end]
				if v, ok := values[name]; ok {
					b.WriteString(v)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String()
}
