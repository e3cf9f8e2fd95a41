package cache

import (
	"context"
	"log/slog"
	"time"

	domaincache "github.com/sentinelpdp/policy-engine/internal/domain/cache"
)

const defaultLocalTTL = 300 * time.Second

// Layered composes Tier 1 (Local) and Tier 2 (Shared) into the cache.Cache
// contract. A nil Shared runs in local-only mode (still useful for tests
// and for "cache.enabled: false" degrading to a no-op, handled by Disabled
// below rather than by a nil check scattered across callers).
type Layered struct {
	local  *Local
	shared *Shared
	logger *slog.Logger
}

// NewLayered builds the two-tier cache described in spec 4.5.
func NewLayered(local *Local, shared *Shared, logger *slog.Logger) *Layered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layered{local: local, shared: shared, logger: logger}
}

var _ domaincache.Cache = (*Layered)(nil)

// Get consults Tier 1 first; on a miss it consults Tier 2 and, on a Tier 2
// hit, back-fills Tier 1 with the default TTL (spec 4.5 "Layered read").
func (c *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := c.local.Get(key); ok {
		return v, true, nil
	}
	if c.shared == nil {
		return nil, false, nil
	}
	if v, ok := c.shared.Get(ctx, key); ok {
		c.local.Set(key, v, defaultLocalTTL)
		return v, true, nil
	}
	return nil, false, nil
}

// Set writes both tiers with the requested TTL.
func (c *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultLocalTTL
	}
	c.local.Set(key, value, ttl)
	if c.shared != nil {
		c.shared.Set(ctx, key, value, ttl)
	}
	return nil
}

// Delete removes key from both tiers.
func (c *Layered) Delete(ctx context.Context, key string) error {
	c.local.Delete(key)
	if c.shared != nil {
		c.shared.Delete(ctx, key)
	}
	return nil
}

// Has checks Tier 1, then Tier 2.
func (c *Layered) Has(ctx context.Context, key string) (bool, error) {
	if c.local.Has(key) {
		return true, nil
	}
	if c.shared == nil {
		return false, nil
	}
	return c.shared.Has(ctx, key), nil
}

// GetOrSet returns the cached value if present, otherwise computes it via
// factory, stores it, and returns it.
func (c *Layered) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if v, hit, err := c.Get(ctx, key); err == nil && hit {
		return v, true, nil
	}
	v, err := factory(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return v, false, err
	}
	return v, false, nil
}

// DeletePattern is shared-store only; Tier 1 entries are left to expire
// (spec 4.5).
func (c *Layered) DeletePattern(ctx context.Context, pattern string) error {
	if c.shared == nil {
		return nil
	}
	return c.shared.DeletePattern(ctx, pattern)
}

// Clear empties both tiers.
func (c *Layered) Clear(ctx context.Context) error {
	c.local.Clear()
	if c.shared != nil {
		return c.shared.Clear(ctx)
	}
	return nil
}

// Healthy reports Tier 2 reachability; Tier 1 is always healthy in-process.
func (c *Layered) Healthy(ctx context.Context) error {
	if c.shared == nil {
		return nil
	}
	return c.shared.Healthy(ctx)
}

// Disabled is the "cache.enabled: false" mode: miss/no-op uniformly.
type Disabled struct{}

var _ domaincache.Cache = Disabled{}

func (Disabled) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Disabled) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Disabled) Delete(context.Context, string) error { return nil }
func (Disabled) Has(context.Context, string) (bool, error) { return false, nil }
func (Disabled) GetOrSet(ctx context.Context, _ string, _ time.Duration, factory func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	v, err := factory(ctx)
	return v, false, err
}
func (Disabled) DeletePattern(context.Context, string) error { return nil }
func (Disabled) Clear(context.Context) error                 { return nil }
func (Disabled) Healthy(context.Context) error               { return nil }
