package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gobwas/glob"
	"github.com/redis/go-redis/v9"
)

// Shared is Tier 2: a Redis-backed store. Per spec 4.5, any read error is
// swallowed and reported as a miss; any write error is swallowed after
// being logged — the cache must never fail the caller's request.
type Shared struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
}

// NewShared wraps an existing redis client. keyPrefix namespaces every key
// this process touches, per spec section 6's redis.keyPrefix option.
func NewShared(client *redis.Client, keyPrefix string, logger *slog.Logger) *Shared {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shared{client: client, keyPrefix: keyPrefix, logger: logger}
}

func (s *Shared) prefixed(key string) string {
	return s.keyPrefix + key
}

// Get returns (value, true) on a hit; any Redis error degrades to a miss.
func (s *Shared) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := s.client.Get(ctx, s.prefixed(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("shared cache read failed, degrading to miss", "key", key, "error", err)
		}
		return nil, false
	}
	return v, true
}

// Set writes key with ttl; errors are logged and swallowed.
func (s *Shared) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, s.prefixed(key), value, ttl).Err(); err != nil {
		s.logger.Warn("shared cache write failed", "key", key, "error", err)
	}
}

// Delete removes key; errors are logged and swallowed.
func (s *Shared) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.prefixed(key)).Err(); err != nil {
		s.logger.Warn("shared cache delete failed", "key", key, "error", err)
	}
}

// Has reports presence without fetching the value.
func (s *Shared) Has(ctx context.Context, key string) bool {
	n, err := s.client.Exists(ctx, s.prefixed(key)).Result()
	if err != nil {
		s.logger.Warn("shared cache exists check failed, degrading to miss", "key", key, "error", err)
		return false
	}
	return n > 0
}

// DeletePattern scans the keyspace under this process's prefix and deletes
// every key whose suffix matches pattern, using the same glob dialect the
// policy engine uses elsewhere (gobwas/glob) rather than Redis's own
// MATCH syntax, so callers write one pattern language across the module.
func (s *Shared) DeletePattern(ctx context.Context, pattern string) error {
	g, err := glob.Compile(pattern)
	if err != nil {
		return err
	}

	var cursor uint64
	var toDelete []string
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 200).Result()
		if err != nil {
			s.logger.Warn("shared cache scan failed during deletePattern", "error", err)
			return nil
		}
		for _, k := range keys {
			suffix := k[len(s.keyPrefix):]
			if g.Match(suffix) {
				toDelete = append(toDelete, k)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(toDelete) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, toDelete...).Err(); err != nil {
		s.logger.Warn("shared cache deletePattern delete failed", "error", err)
	}
	return nil
}

// Clear deletes every key under this process's prefix.
func (s *Shared) Clear(ctx context.Context) error {
	return s.DeletePattern(ctx, "*")
}

// Healthy pings Redis.
func (s *Shared) Healthy(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Incr/Expire are exposed because rate limiting (config-shape only in this
// module, per spec section 6) is built on the same primitives.
func (s *Shared) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, s.prefixed(key)).Result()
}

func (s *Shared) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, s.prefixed(key), ttl).Err()
}
