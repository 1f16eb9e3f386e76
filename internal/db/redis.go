package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client and context for operations. It backs the
// Settings cold-start/reload path (internal/settingsstore); the edge keeps
// no other server-side state, so this is the only Redis consumer left from
// the teacher's much larger counter/cache surface.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// LoadSettingsDocument fetches the raw Settings document from the given key.
func (r *RedisStore) LoadSettingsDocument(key string) ([]byte, error) {
	val, err := r.Client.Get(r.Ctx, key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("load settings document %q: %w", key, err)
	}
	return val, nil
}

// SaveSettingsDocument writes the raw Settings document to the given key.
// This is invoked by the out-of-band config-push tool (out of scope), kept
// here only so local development and tests can seed a store without one.
func (r *RedisStore) SaveSettingsDocument(key string, doc []byte) error {
	if err := r.Client.Set(r.Ctx, key, doc, 0).Err(); err != nil {
		return fmt.Errorf("save settings document %q: %w", key, err)
	}
	return nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
