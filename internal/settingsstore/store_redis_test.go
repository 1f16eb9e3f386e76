package settingsstore

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/trusted-server/edge/internal/config"
	"github.com/trusted-server/edge/internal/db"
)

const testDocument = `
publisher:
  domain: news.example
  origin_url: https://origin.news.example
signing:
  keys:
    - id: k1
      secret: base64:c2VjcmV0
  current_id: k1
proxy:
  token_ttl_seconds: 300
  redirect_cap: 4
auction:
  enabled: true
  providers: [prebid]
`

// newTestStore spins up an in-memory Redis server (no real network
// dependency) to exercise the redis-backed settings source end to end.
func newTestStore(t *testing.T) (*miniredis.Miniredis, *db.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := db.InitRedis(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return mr, store
}

func TestLoadFromRedis(t *testing.T) {
	_, store := newTestStore(t)
	require.NoError(t, store.SaveSettingsDocument("ts:settings", []byte(testDocument)))

	cfg := config.Config{SettingsSource: "redis", SettingsKey: "ts:settings"}
	settings, err := Load(cfg, store)
	require.NoError(t, err)
	require.Equal(t, "news.example", settings.Publisher.Domain)
	require.True(t, settings.Auction.Enabled)
	require.Equal(t, []string{"prebid"}, settings.Auction.Providers)
}

func TestLoadFromRedisMissingKeyFails(t *testing.T) {
	_, store := newTestStore(t)

	cfg := config.Config{SettingsSource: "redis", SettingsKey: "ts:missing"}
	_, err := Load(cfg, store)
	require.Error(t, err)
}
