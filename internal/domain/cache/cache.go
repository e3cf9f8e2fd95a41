// Package cache defines the two-tier cache's port contract (C6). Adapters
// live under internal/adapter/outbound/cache.
package cache

import (
	"context"
	"time"
)

// Cache is the contract every tier, and the layered cache composing them,
// implements. A disabled cache returns miss/no-op uniformly rather than
// erroring.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	GetOrSet(ctx context.Context, key string, ttl time.Duration, factory func(ctx context.Context) ([]byte, error)) ([]byte, bool, error)
	DeletePattern(ctx context.Context, glob string) error
	Clear(ctx context.Context) error
	Healthy(ctx context.Context) error
}

// Stats reports Tier 1's running counters.
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}
