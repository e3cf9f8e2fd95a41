// Package integration exercises C2 through C9 wired together the way
// cmd/policy-engine serve assembles them, instead of any single package in
// isolation.
package integration

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	cacheadapter "github.com/sentinelpdp/policy-engine/internal/adapter/outbound/cache"
	"github.com/sentinelpdp/policy-engine/internal/adapter/outbound/sqlite"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
	"github.com/sentinelpdp/policy-engine/internal/parser"
	"github.com/sentinelpdp/policy-engine/internal/service"
	"github.com/sentinelpdp/policy-engine/internal/validate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const denyGPT4YAML = `
metadata:
  id: deny-gpt4-v1
  name: deny-gpt4
  namespace: integration
  version: "1.0.0"
rules:
  - id: rule-deny
    name: deny-expensive-model
    condition:
      operator: eq
      field: llm.model
      value: gpt-4
    action:
      decision: deny
      reason: gpt-4 requires approval
`

func newFullStack(t *testing.T) (*service.Engine, *service.DecisionAPI, *service.PolicyAdmin, func()) {
	t.Helper()
	logger := testLogger()

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	policyStore := sqlite.NewPolicyStore(db)
	auditStore := sqlite.NewAuditStore(db)
	cache := cacheadapter.NewLayered(cacheadapter.NewLocal(100), nil, logger)

	p, err := parser.Parse([]byte(denyGPT4YAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result := validate.Validate(p); !result.Valid {
		t.Fatalf("validate: %v", result.Errors)
	}
	p.Status = policy.StatusActive

	ctx := context.Background()
	if _, err := policyStore.Create(ctx, p, "integration-test"); err != nil {
		t.Fatalf("create policy: %v", err)
	}

	engine, err := service.NewEngine(ctx, policyStore, logger)
	if err != nil {
		t.Fatalf("start engine: %v", err)
	}
	api := service.NewDecisionAPI(engine, cache, auditStore, logger)
	admin := service.NewPolicyAdmin(policyStore, engine, cache, logger)

	return engine, api, admin, func() { db.Close() }
}

// TestFullPathEvaluateDeniesMatchingRequest drives a real policy through
// C2 (parse) -> C3 (validate) -> C7 (durable store) -> C5 (engine) -> C9
// (decision API), and asserts the audited, cacheable decision surfaces
// correctly end to end.
func TestFullPathEvaluateDeniesMatchingRequest(t *testing.T) {
	_, api, _, cleanup := newFullStack(t)
	defer cleanup()

	ctx := context.Background()
	req := policy.EvaluationRequest{
		Context:  map[string]any{"llm": map[string]any{"model": "gpt-4"}},
		UseCache: true,
	}

	result, err := api.Evaluate(ctx, req)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Decision != policy.DecisionDeny {
		t.Errorf("Decision = %q, want %q", result.Decision, policy.DecisionDeny)
	}
	if result.Allowed {
		t.Error("Allowed = true, want false for a denied request")
	}
	if len(result.MatchedPolicies) != 1 {
		t.Errorf("MatchedPolicies = %v, want exactly one match", result.MatchedPolicies)
	}

	time.Sleep(150 * time.Millisecond) // audit write runs in its own goroutine

	stats, err := api.EvaluationStats(ctx, nil, nil)
	if err != nil {
		t.Fatalf("EvaluationStats() error = %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("stats.Total = %d, want 1", stats.Total)
	}
}

// TestFullPathEvaluateAllowsNonMatchingRequest confirms the default-allow
// path when no rule's condition matches the request context.
func TestFullPathEvaluateAllowsNonMatchingRequest(t *testing.T) {
	_, api, _, cleanup := newFullStack(t)
	defer cleanup()

	ctx := context.Background()
	req := policy.EvaluationRequest{
		Context: map[string]any{"llm": map[string]any{"model": "gpt-3.5"}},
	}

	result, err := api.Evaluate(ctx, req)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Decision != policy.DecisionAllow {
		t.Errorf("Decision = %q, want %q", result.Decision, policy.DecisionAllow)
	}
	if !result.Allowed {
		t.Error("Allowed = false, want true when no rule matches")
	}
}

// TestFullPathCacheHitSkipsReEvaluation evaluates the same request twice
// and asserts the second call reports Cached, exercising C6 end to end.
func TestFullPathCacheHitSkipsReEvaluation(t *testing.T) {
	_, api, _, cleanup := newFullStack(t)
	defer cleanup()

	ctx := context.Background()
	req := policy.EvaluationRequest{
		Context:  map[string]any{"llm": map[string]any{"model": "gpt-4"}},
		UseCache: true,
	}

	first, err := api.Evaluate(ctx, req)
	if err != nil {
		t.Fatalf("first Evaluate() error = %v", err)
	}
	if first.Cached {
		t.Error("first evaluation should not be a cache hit")
	}

	second, err := api.Evaluate(ctx, req)
	if err != nil {
		t.Fatalf("second Evaluate() error = %v", err)
	}
	if !second.Cached {
		t.Error("second evaluation with an identical context should be a cache hit")
	}
	if second.Decision != first.Decision {
		t.Errorf("cached Decision = %q, want %q", second.Decision, first.Decision)
	}
}

// TestFullPathPolicyAdminDeleteInvalidatesEngineAndCache drives a mutation
// through C7 via PolicyAdmin and asserts both C5's active set and C6's
// cache observe it without a restart (spec 4.6's coherence requirement).
func TestFullPathPolicyAdminDeleteInvalidatesEngineAndCache(t *testing.T) {
	engine, api, admin, cleanup := newFullStack(t)
	defer cleanup()

	ctx := context.Background()
	before := engine.List()
	if len(before) != 1 {
		t.Fatalf("expected 1 active policy before delete, got %d", len(before))
	}

	if err := admin.Delete(ctx, before[0].Metadata.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	after := engine.List()
	if len(after) != 0 {
		t.Errorf("expected 0 active policies after delete, got %d", len(after))
	}

	req := policy.EvaluationRequest{
		Context: map[string]any{"llm": map[string]any{"model": "gpt-4"}},
	}
	result, err := api.Evaluate(ctx, req)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Decision != policy.DecisionAllow {
		t.Errorf("Decision after delete = %q, want %q (no policies left to deny)", result.Decision, policy.DecisionAllow)
	}
}
