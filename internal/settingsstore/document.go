// Package settingsstore loads the Settings document described in spec §6.3
// from an external key/value store (Redis) or a local file, and decodes it
// into an immutable config.Settings tree.
package settingsstore

import (
	"time"

	"github.com/trusted-server/edge/internal/config"
)

// document mirrors the TOML-shaped config surface of spec §6.3 field for
// field; YAML is used to decode it (see SPEC_FULL.md §A.3) but the field
// names match the spec's dotted option names with underscores.
type document struct {
	Publisher struct {
		Domain    string `yaml:"domain"`
		OriginURL string `yaml:"origin_url"`
	} `yaml:"publisher"`

	Signing struct {
		Keys []struct {
			ID        string `yaml:"id"`
			Secret    string `yaml:"secret"` // base64 or raw; see decodeSecret
			NotBefore int64  `yaml:"not_before"`
			NotAfter  int64  `yaml:"not_after"`
		} `yaml:"keys"`
		CurrentID string `yaml:"current_id"`
	} `yaml:"signing"`

	Proxy struct {
		TokenTTLSeconds int `yaml:"token_ttl_seconds"`
		RedirectCap     int `yaml:"redirect_cap"`
		HopTimeoutMS    int `yaml:"hop_timeout_ms"`
	} `yaml:"proxy"`

	Synthetic struct {
		Template string   `yaml:"template"`
		Salt     string   `yaml:"salt"`
		Secret   string   `yaml:"secret"`
		Strict   bool     `yaml:"strict"`
		Required []string `yaml:"required"`
	} `yaml:"synthetic"`

	Auction struct {
		Enabled   bool     `yaml:"enabled"`
		Providers []string `yaml:"providers"`
		Mediator  string   `yaml:"mediator"`
		TimeoutMS int      `yaml:"timeout_ms"`
		RateLimit map[string]struct {
			Capacity   int `yaml:"capacity"`
			RefillRate int `yaml:"refill_rate"`
		} `yaml:"rate_limit"`
	} `yaml:"auction"`

	Integrations map[string]struct {
		Endpoint  string  `yaml:"endpoint"`
		Enabled   bool    `yaml:"enabled"`
		Mock      bool    `yaml:"mock"`
		MockPrice float64 `yaml:"mock_price"`
		AllowSelf bool    `yaml:"allow_self"`
	} `yaml:"integrations"`
}

func (d *document) toSettings() (*config.Settings, error) {
	s := &config.Settings{}

	s.Publisher.Domain = d.Publisher.Domain
	s.Publisher.OriginURL = d.Publisher.OriginURL

	for _, k := range d.Signing.Keys {
		secret, err := decodeSecret(k.Secret)
		if err != nil {
			return nil, err
		}
		s.Signing.Keys = append(s.Signing.Keys, config.SigningKey{
			ID:        k.ID,
			Secret:    secret,
			NotBefore: unixOrZero(k.NotBefore),
			NotAfter:  unixOrMax(k.NotAfter),
		})
	}
	s.Signing.CurrentID = d.Signing.CurrentID

	s.Proxy.TokenTTL = secondsOrDefault(d.Proxy.TokenTTLSeconds, 600)
	s.Proxy.RedirectCap = intOrDefault(d.Proxy.RedirectCap, 4)
	s.Proxy.HopTimeout = millisOrDefault(d.Proxy.HopTimeoutMS, 5*time.Second)

	s.Synthetic.Template = d.Synthetic.Template
	if s.Synthetic.Template == "" {
		s.Synthetic.Template = "v1|{ip}|{ua}|{salt}"
	}
	salt, err := decodeSecret(d.Synthetic.Salt)
	if err != nil {
		return nil, err
	}
	s.Synthetic.Salt = salt
	secret, err := decodeSecret(d.Synthetic.Secret)
	if err != nil {
		return nil, err
	}
	s.Synthetic.Secret = secret
	s.Synthetic.Strict = d.Synthetic.Strict
	s.Synthetic.Required = d.Synthetic.Required

	s.Auction.Enabled = d.Auction.Enabled
	s.Auction.Providers = d.Auction.Providers
	s.Auction.Mediator = d.Auction.Mediator
	s.Auction.TimeoutMS = intOrDefault(d.Auction.TimeoutMS, 2000)
	if len(d.Auction.RateLimit) > 0 {
		s.Auction.RateLimits = make(map[string]config.ProviderRateLimit, len(d.Auction.RateLimit))
		for id, rl := range d.Auction.RateLimit {
			s.Auction.RateLimits[id] = config.ProviderRateLimit{
				Capacity:   rl.Capacity,
				RefillRate: rl.RefillRate,
			}
		}
	}

	if len(d.Integrations) > 0 {
		s.Integrations = make(map[string]config.IntegrationSettings, len(d.Integrations))
		for id, in := range d.Integrations {
			s.Integrations[id] = config.IntegrationSettings{
				ID:        id,
				Endpoint:  in.Endpoint,
				Enabled:   in.Enabled,
				Mock:      in.Mock,
				MockPrice: in.MockPrice,
				AllowSelf: in.AllowSelf,
			}
		}
	}

	return s, nil
}

func unixOrZero(v int64) time.Time {
	if v == 0 {
		return time.Unix(0, 0).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func unixOrMax(v int64) time.Time {
	if v == 0 {
		return time.Unix(1<<62, 0).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func secondsOrDefault(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

func millisOrDefault(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

func intOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
