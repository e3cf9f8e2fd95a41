package sqlite

import (
	"context"
	"testing"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

func newTestDB(t *testing.T) *PolicyStore {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPolicyStore(db)
}

func TestSqlitePolicyStoreCreateFindRoundTrip(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	created, err := store.Create(ctx, policy.Policy{
		Metadata: policy.Metadata{Name: "p1", Namespace: "default", Version: "1.0.0", Tags: []string{"a", "b"}},
		Status:   policy.StatusActive,
	}, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := store.FindByID(ctx, created.Metadata.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found.Metadata.Tags) != 2 {
		t.Fatalf("expected tags to round-trip, got %+v", found.Metadata.Tags)
	}
	if found.CreatedBy != "alice" {
		t.Fatalf("expected createdBy alice, got %q", found.CreatedBy)
	}
}

func TestSqlitePolicyStoreUniqueConstraint(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()
	p := policy.Policy{Metadata: policy.Metadata{Name: "p1", Namespace: "default", Version: "1.0.0"}, Status: policy.StatusActive}

	if _, err := store.Create(ctx, p, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := store.Create(ctx, p, "")
	kind, ok := apperr.KindOf(err)
	if !ok || kind != apperr.KindConflict {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestSqlitePolicyStoreFindActiveOrdering(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()
	store.Create(ctx, policy.Policy{
		Metadata: policy.Metadata{Name: "low", Namespace: "default", Version: "1.0.0", Priority: 1},
		Status:   policy.StatusActive,
	}, "")
	high, _ := store.Create(ctx, policy.Policy{
		Metadata: policy.Metadata{Name: "high", Namespace: "default", Version: "1.0.0", Priority: 10},
		Status:   policy.StatusActive,
	}, "")
	store.Create(ctx, policy.Policy{
		Metadata: policy.Metadata{Name: "draft", Namespace: "default", Version: "1.0.0"},
		Status:   policy.StatusDraft,
	}, "")

	active, err := store.FindActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected only active policies, got %d", len(active))
	}
	if active[0].Metadata.ID != high.Metadata.ID {
		t.Fatalf("expected high-priority first, got %+v", active[0].Metadata)
	}
}

func TestSqlitePolicyStoreUpdateNotFound(t *testing.T) {
	store := newTestDB(t)
	_, err := store.Update(context.Background(), "missing", policy.Update{})
	kind, ok := apperr.KindOf(err)
	if !ok || kind != apperr.KindNotFound {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSqlitePolicyStoreDelete(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()
	created, _ := store.Create(ctx, policy.Policy{
		Metadata: policy.Metadata{Name: "p1", Namespace: "default", Version: "1.0.0"},
	}, "")

	if err := store.Delete(ctx, created.Metadata.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := store.FindByID(ctx, created.Metadata.ID)
	kind, ok := apperr.KindOf(err)
	if !ok || kind != apperr.KindNotFound {
		t.Fatalf("expected NotFoundError after delete, got %v", err)
	}
}
