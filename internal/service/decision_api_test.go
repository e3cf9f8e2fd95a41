package service

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelpdp/policy-engine/internal/adapter/outbound/cache"
	"github.com/sentinelpdp/policy-engine/internal/adapter/outbound/memory"
	"github.com/sentinelpdp/policy-engine/internal/domain/condition"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

func newTestAPI(t *testing.T, policies ...policy.Policy) (*DecisionAPI, *memory.AuditStore) {
	t.Helper()
	engine := newEngineWithPolicies(t, policies...)
	local := cache.NewLocal(100)
	layered := cache.NewLayered(local, nil, testLogger())
	auditStore := memory.NewAuditStore(0)
	return NewDecisionAPI(engine, layered, auditStore, testLogger()), auditStore
}

func TestDecisionAPIEvaluateWritesAuditOnNonDryRun(t *testing.T) {
	api, auditStore := newTestAPI(t, policy.Policy{
		Metadata: policy.Metadata{Name: "p1", Namespace: "default", Version: "1.0.0"},
		Status:   policy.StatusActive,
		Rules:    []policy.Rule{{ID: "r1", Enabled: true, Condition: condition.Node{Operator: condition.OpAnd}, Action: policy.Action{Decision: policy.DecisionAllow}}},
	})

	result, err := api.Evaluate(context.Background(), policy.EvaluationRequest{RequestID: "req-1", Context: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected allow, got %+v", result)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := auditStore.FindByRequestID(context.Background(), "req-1"); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected audit record to be written for non-dry-run evaluation")
}

func TestDecisionAPIDryRunSkipsAudit(t *testing.T) {
	api, auditStore := newTestAPI(t, policy.Policy{
		Metadata: policy.Metadata{Name: "p1", Namespace: "default", Version: "1.0.0"},
		Status:   policy.StatusActive,
	})

	_, err := api.Evaluate(context.Background(), policy.EvaluationRequest{RequestID: "req-dry", Context: map[string]any{}, DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := auditStore.FindByRequestID(context.Background(), "req-dry"); err == nil {
		t.Fatal("expected no audit record for dry-run evaluation")
	}
}

func TestDecisionAPICacheHitOnSecondCall(t *testing.T) {
	api, _ := newTestAPI(t, policy.Policy{
		Metadata: policy.Metadata{Name: "p1", Namespace: "default", Version: "1.0.0"},
		Status:   policy.StatusActive,
		Rules:    []policy.Rule{{ID: "r1", Enabled: true, Condition: condition.Node{Operator: condition.OpAnd}, Action: policy.Action{Decision: policy.DecisionAllow}}},
	})

	req := policy.EvaluationRequest{RequestID: "req-a", Context: map[string]any{"user": map[string]any{"id": "u1"}}, UseCache: true}
	first, err := api.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Cached {
		t.Fatal("expected first call to be a cache miss")
	}

	req.RequestID = "req-b"
	second, err := api.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Cached {
		t.Fatal("expected second identical call to be a cache hit")
	}
}

func TestDecisionAPITraceBypassesCache(t *testing.T) {
	api, _ := newTestAPI(t, policy.Policy{
		Metadata: policy.Metadata{Name: "p1", Namespace: "default", Version: "1.0.0"},
		Status:   policy.StatusActive,
	})

	req := policy.EvaluationRequest{Context: map[string]any{}, UseCache: true, Trace: true}
	result, err := api.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Cached {
		t.Fatal("expected trace requests never to be served from cache")
	}
}

func TestDecisionAPIBatchEvaluateRejectsOversizedBatch(t *testing.T) {
	api, _ := newTestAPI(t)
	reqs := make([]policy.EvaluationRequest, 101)
	_, err := api.BatchEvaluate(context.Background(), reqs)
	if err == nil {
		t.Fatal("expected oversized batch to be rejected")
	}
}

func TestDecisionAPIBatchEvaluateRunsAllRequests(t *testing.T) {
	api, _ := newTestAPI(t, policy.Policy{
		Metadata: policy.Metadata{Name: "p1", Namespace: "default", Version: "1.0.0"},
		Status:   policy.StatusActive,
	})
	reqs := []policy.EvaluationRequest{
		{RequestID: "b1", Context: map[string]any{}},
		{RequestID: "b2", Context: map[string]any{}},
		{RequestID: "b3", Context: map[string]any{}},
	}
	results, err := api.BatchEvaluate(context.Background(), reqs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}
