package service

import (
	"context"
	"log/slog"

	cacheadapter "github.com/sentinelpdp/policy-engine/internal/adapter/outbound/cache"
	domaincache "github.com/sentinelpdp/policy-engine/internal/domain/cache"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

// PolicyAdmin is the write path for policy documents (C7's Create/Update/
// Delete), fanning each mutation out to the in-memory engine view (C5) and
// invalidating the evaluation cache's per-policy key (C6), per spec 4.6:
// "subscribers (C5, C6) invalidate their local views on update/delete".
type PolicyAdmin struct {
	store  policy.Store
	engine *Engine
	cache  domaincache.Cache
	logger *slog.Logger
}

// NewPolicyAdmin wires store, engine, and cache together. cache may be nil
// (no invalidation attempted, matching "cache.enabled: false").
func NewPolicyAdmin(store policy.Store, engine *Engine, cache domaincache.Cache, logger *slog.Logger) *PolicyAdmin {
	return &PolicyAdmin{store: store, engine: engine, cache: cache, logger: logger}
}

// Create persists p and, if active, adds it to the engine's live view.
func (a *PolicyAdmin) Create(ctx context.Context, p policy.Policy, actor string) (policy.Policy, error) {
	created, err := a.store.Create(ctx, p, actor)
	if err != nil {
		return policy.Policy{}, err
	}
	a.engine.Add(created)
	return created, nil
}

// Update applies patch to id, propagates the result into the engine's live
// view, and invalidates any cached evaluations keyed on the prior document.
func (a *PolicyAdmin) Update(ctx context.Context, id string, patch policy.Update) (policy.Policy, error) {
	updated, err := a.store.Update(ctx, id, patch)
	if err != nil {
		return policy.Policy{}, err
	}
	a.engine.Update(updated)
	a.invalidate(ctx, id)
	return updated, nil
}

// Delete removes id from the store, drops it from the engine's live view,
// and invalidates its cache key.
func (a *PolicyAdmin) Delete(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}
	a.engine.Remove(id)
	a.invalidate(ctx, id)
	return nil
}

func (a *PolicyAdmin) invalidate(ctx context.Context, id string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Delete(ctx, cacheadapter.PolicyKey(id)); err != nil {
		a.logger.Warn("policy cache invalidation failed", "policy_id", id, "error", err)
	}
}
