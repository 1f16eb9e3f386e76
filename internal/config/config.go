// Package config holds process-level configuration: the knobs that decide
// how the edge process itself boots (listen address, timeouts, where the
// Settings document lives) as distinct from the Settings document itself
// (internal/config/settings.go), which describes the publisher's domain
// model and is loaded from an external store at cold start.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process configuration derived from environment variables.
// Env vars follow the TRUSTED_SERVER__<section>__<key> convention from
// spec §6.3 for anything that overlaps with the Settings document; purely
// process-level knobs (listen port, timeouts) use a flat name.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// SettingsSource selects where the Settings document is loaded from at
	// cold start: "redis" (default, matches spec §6.4's external KV store)
	// or "file" for local development.
	SettingsSource string
	SettingsKey    string // Redis key holding the document, when SettingsSource=="redis"
	SettingsFile   string // path to the document, when SettingsSource=="file"

	RedisAddr     string
	ClickHouseDSN string
	GeoIPDB       string

	ServiceName       string
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64

	DebugTrace bool

	// ClickHouse connection pooling, reused verbatim from the teacher's
	// database tuning knobs.
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)

	cfg.SettingsSource = getenv("TRUSTED_SERVER__SETTINGS__SOURCE", "redis")
	cfg.SettingsKey = getenv("TRUSTED_SERVER__SETTINGS__KEY", "trusted-server:settings")
	cfg.SettingsFile = getenv("TRUSTED_SERVER__SETTINGS__FILE", "settings.yaml")

	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.GeoIPDB = getenv("GEOIP_DB", "internal/geoip/testdata/GeoLite2-Country.mmdb")

	cfg.ServiceName = getenv("SERVICE_NAME", "trusted-server")
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	cfg.DebugTrace = envBool("DEBUG_TRACE", false)

	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 100)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 25)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
