package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestShared(t *testing.T) *Shared {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewShared(client, "pdp:", nil)
}

func TestLayeredBackfillsTier1OnTier2Hit(t *testing.T) {
	shared := newTestShared(t)
	layered := NewLayered(NewLocal(10), shared, nil)
	ctx := context.Background()

	require.NoError(t, layered.shared.client.Set(ctx, "pdp:k", []byte("v"), time.Minute).Err())

	v, hit, err := layered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "v", string(v))

	// Tier 1 should now have it without touching Redis.
	v2, ok := layered.local.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", string(v2))
}

func TestLayeredSetWritesBothTiers(t *testing.T) {
	shared := newTestShared(t)
	layered := NewLayered(NewLocal(10), shared, nil)
	ctx := context.Background()

	require.NoError(t, layered.Set(ctx, "k", []byte("v"), time.Minute))

	_, ok := layered.local.Get("k")
	require.True(t, ok)

	v, hit := shared.Get(ctx, "k")
	require.True(t, hit)
	require.Equal(t, "v", string(v))
}

func TestLayeredDeletePatternIsSharedOnly(t *testing.T) {
	shared := newTestShared(t)
	layered := NewLayered(NewLocal(10), shared, nil)
	ctx := context.Background()

	require.NoError(t, layered.Set(ctx, "policy:a", []byte("1"), time.Minute))
	require.NoError(t, layered.Set(ctx, "policy:b", []byte("2"), time.Minute))
	require.NoError(t, layered.Set(ctx, "evaluation:x", []byte("3"), time.Minute))

	require.NoError(t, layered.DeletePattern(ctx, "policy:*"))

	_, hit := shared.Get(ctx, "policy:a")
	require.False(t, hit)
	_, hit = shared.Get(ctx, "evaluation:x")
	require.True(t, hit)

	// Tier 1 entries are left untouched by deletePattern.
	_, ok := layered.local.Get("policy:a")
	require.True(t, ok)
}

func TestEvaluationKeyIsOrderIndependent(t *testing.T) {
	ctx := map[string]any{"user": map[string]any{"role": "admin"}}
	k1 := EvaluationKey(ctx, []string{"p2", "p1"})
	k2 := EvaluationKey(ctx, []string{"p1", "p2"})
	if k1 != k2 {
		t.Fatalf("expected order-independent keys, got %s vs %s", k1, k2)
	}
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	d := Disabled{}
	ctx := context.Background()
	_, hit, err := d.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, d.Set(ctx, "k", []byte("v"), time.Minute))
	_, hit, err = d.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, hit)
}
