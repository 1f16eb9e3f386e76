package settingsstore

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/db"
)

// Load reads the Settings document per cfg.SettingsSource ("redis" or
// "file"), decodes it, and returns a validated, immutable config.Settings.
// A malformed or missing document is a ConfigError per spec §7: cold-start
// only, the caller should refuse to start the process rather than serve
// requests against half-built Settings.
func Load(cfg config.Config, store *db.RedisStore) (*config.Settings, error) {
	raw, err := read(cfg, store)
	if err != nil {
		return nil, fmt.Errorf("read settings document: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse settings document: %w", err)
	}

	settings, err := doc.toSettings()
	if err != nil {
		return nil, fmt.Errorf("decode settings document: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return settings, nil
}

func read(cfg config.Config, store *db.RedisStore) ([]byte, error) {
	switch cfg.SettingsSource {
	case "file":
		return os.ReadFile(cfg.SettingsFile)
	case "redis":
		if store == nil {
			return nil, fmt.Errorf("redis settings source configured but no store provided")
		}
		return store.LoadSettingsDocument(cfg.SettingsKey)
	default:
		return nil, fmt.Errorf("unknown settings source %q", cfg.SettingsSource)
	}
}

// decodeSecret accepts either a "base64:"-prefixed value or a raw string
// and returns the underlying bytes. Settings documents carry secrets as
// text, so this is the one place that translates to the []byte the signer
// and synthetic-id deriver operate on.
func decodeSecret(v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(v, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode base64 secret: %w", err)
		}
		return b, nil
	}
	return []byte(v), nil
}
