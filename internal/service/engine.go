// Package service wires the domain and adapter layers into the application
// behavior the decision API exposes: policy aggregation (C5) and the
// request/response orchestration around it (C9).
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
	"github.com/sentinelpdp/policy-engine/internal/domain/condition"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
	"github.com/sentinelpdp/policy-engine/internal/domain/primitives"
	"github.com/sentinelpdp/policy-engine/internal/metrics"
)

// Engine implements policy.Engine. It owns an in-memory snapshot of the
// active policy set (the authority for durable state is the policy store,
// C7); Reload pulls a fresh snapshot from the store, while Add/Remove/Update
// let callers evolve the in-memory view directly without a round-trip.
type Engine struct {
	store  policy.Store
	logger *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex // serializes Add/Remove/Update/Reload
	snapshot atomic.Value // holds []policy.Policy, insertion-ordered
}

// NewEngine constructs an Engine and loads the initial active-policy
// snapshot from store.
func NewEngine(ctx context.Context, store policy.Store, logger *slog.Logger) (*Engine, error) {
	e := &Engine{store: store, logger: logger}
	e.snapshot.Store([]policy.Policy{})
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// WithMetrics attaches a metrics recorder; nil is a valid no-op recorder.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

var _ policy.Engine = (*Engine)(nil)

// Reload re-reads the active policy set from the store and atomically
// publishes it. Safe to call concurrently with Evaluate.
func (e *Engine) Reload(ctx context.Context) error {
	active, err := e.store.FindActive(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.snapshot.Store(active)
	e.mu.Unlock()
	e.metrics.SetActivePolicies(len(active))
	e.logger.Info("policy engine reloaded", "active_policies", len(active))
	return nil
}

func (e *Engine) current() []policy.Policy {
	return e.snapshot.Load().([]policy.Policy)
}

// Add inserts p into the in-memory view. No-op if p is not active.
func (e *Engine) Add(p policy.Policy) {
	if p.Status != policy.StatusActive {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.current()
	next := make([]policy.Policy, 0, len(cur)+1)
	replaced := false
	for _, existing := range cur {
		if existing.Metadata.ID == p.Metadata.ID {
			next = append(next, p)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, p)
	}
	e.snapshot.Store(next)
	e.metrics.SetActivePolicies(len(next))
}

// Remove drops id from the in-memory view.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.current()
	next := make([]policy.Policy, 0, len(cur))
	for _, p := range cur {
		if p.Metadata.ID != id {
			next = append(next, p)
		}
	}
	e.snapshot.Store(next)
	e.metrics.SetActivePolicies(len(next))
}

// Update is an unconditional put: if p is active it is upserted, otherwise
// any existing entry for its id is dropped (a policy leaving the active
// status falls out of the engine's view).
func (e *Engine) Update(p policy.Policy) {
	if p.Status != policy.StatusActive {
		e.Remove(p.Metadata.ID)
		return
	}
	e.Add(p)
}

// List returns the current in-memory active-policy view, priority-sorted.
func (e *Engine) List() []policy.Policy {
	return sortedByPriority(e.current())
}

func sortedByPriority(in []policy.Policy) []policy.Policy {
	out := make([]policy.Policy, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.Priority > out[j].Metadata.Priority
	})
	return out
}

// Evaluate runs req against the selected policy set and returns the
// aggregated decision.
func (e *Engine) Evaluate(ctx context.Context, req policy.EvaluationRequest) (policy.EvaluationResult, error) {
	start := time.Now()

	enriched := enrichContext(req.Context)

	policies := e.selectPolicies(req.Policies)

	result := policy.EvaluationResult{
		Decision: policy.DecisionAllow,
	}
	matchedPolicies := newDedupSet()
	matchedRules := newDedupSet()
	modifications := map[string]any{}
	var traces []policy.TraceEntry

outer:
	for _, p := range policies {
		for _, rule := range p.Rules {
			if !rule.Enabled {
				continue
			}
			if err := ctx.Err(); err != nil {
				return policy.EvaluationResult{}, apperr.Wrap(apperr.KindEvaluation, "evaluation cancelled", err).WithRequestID(req.RequestID)
			}

			evalResult, err := condition.Evaluate(rule.Condition, enriched)
			if err != nil {
				return policy.EvaluationResult{}, apperr.Wrap(apperr.KindEvaluation, "condition evaluation failed for rule "+rule.ID, err).WithRequestID(req.RequestID)
			}

			if req.Trace {
				traces = append(traces, policy.TraceEntry{
					PolicyID:            p.Metadata.ID,
					RuleID:              rule.ID,
					ConditionEvaluation: evalResult.Result,
					FinalDecision:       rule.Action.Decision,
					Timestamp:           time.Now().UTC(),
				})
			}

			if !evalResult.Result {
				continue
			}

			matchedPolicies.add(p.Metadata.ID)
			matchedRules.add(rule.ID)

			switch rule.Action.Decision {
			case policy.DecisionDeny:
				result.Decision = policy.DecisionDeny
				result.Reason = rule.Action.Reason
				break outer
			case policy.DecisionModify:
				if result.Decision != policy.DecisionDeny {
					result.Decision = policy.DecisionModify
					result.Reason = rule.Action.Reason
					for k, v := range rule.Action.Modifications {
						modifications[k] = v
					}
				}
			case policy.DecisionWarn:
				if result.Decision == policy.DecisionAllow {
					result.Decision = policy.DecisionWarn
					result.Reason = rule.Action.Reason
				}
			case policy.DecisionAllow:
				// match recorded above; no state change.
			}
		}
	}

	result.Allowed = result.Decision != policy.DecisionDeny
	result.MatchedPolicies = matchedPolicies.values()
	result.MatchedRules = matchedRules.values()
	if len(modifications) > 0 {
		result.Modifications = modifications
	}
	result.EvaluationTimeMs = float64(time.Since(start)) / float64(time.Millisecond)
	if req.Trace && len(traces) > 0 {
		result.Trace = &traces[0]
	}
	return result, nil
}

// Simulate runs evaluation in dry-run, traced mode. Dry-run effects (no
// audit write, no cache write) are enforced by the decision API, not here.
func (e *Engine) Simulate(ctx context.Context, req policy.EvaluationRequest) (policy.EvaluationResult, error) {
	req.DryRun = true
	req.Trace = true
	return e.Evaluate(ctx, req)
}

// selectPolicies resolves req.Policies (if non-empty, silently dropping
// unknown ids) or all active policies, then sorts by priority descending
// with original order breaking ties.
func (e *Engine) selectPolicies(requested []string) []policy.Policy {
	cur := e.current()
	if len(requested) == 0 {
		return sortedByPriority(cur)
	}

	byID := make(map[string]policy.Policy, len(cur))
	for _, p := range cur {
		byID[p.Metadata.ID] = p
	}
	selected := make([]policy.Policy, 0, len(requested))
	for _, id := range requested {
		if p, ok := byID[id]; ok {
			selected = append(selected, p)
		}
	}
	return sortedByPriority(selected)
}

// enrichContext returns a shallow-overlaid copy of ctx with derived llm
// fields populated; the caller's context is never mutated.
func enrichContext(ctx map[string]any) map[string]any {
	out := policy.EvaluationContext(ctx).Clone()

	llm, ok := out["llm"].(map[string]any)
	if !ok {
		return map[string]any(out)
	}
	llmCopy := make(map[string]any, len(llm)+4)
	for k, v := range llm {
		llmCopy[k] = v
	}

	prompt, _ := llmCopy["prompt"].(string)
	model, _ := llmCopy["model"].(string)
	provider, _ := llmCopy["provider"].(string)

	if prompt != "" {
		estimate := primitives.Estimate(prompt, model)
		llmCopy["estimatedTokens"] = estimate.Tokens

		matches := primitives.DetectPII(prompt)
		llmCopy["containsPII"] = len(matches) > 0
		types := primitives.Types(matches)
		piiTypes := make([]string, len(types))
		for i, t := range types {
			piiTypes[i] = string(t)
		}
		llmCopy["piiTypes"] = piiTypes

		if provider != "" && model != "" {
			promptTokens := estimate.Tokens
			completionTokens := 500
			if mt := maxTokensOf(llmCopy["maxTokens"]); mt > 0 {
				completionTokens = mt
			}
			amount, currency := primitives.Cost(provider, model, promptTokens, completionTokens)
			llmCopy["estimatedCost"] = map[string]any{
				"amount":   amount,
				"currency": string(currency),
			}
		}
	}

	out["llm"] = llmCopy
	return map[string]any(out)
}

// maxTokensOf accepts both int (set programmatically) and float64 (set via
// encoding/json decode of an untyped map) representations.
func maxTokensOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

type dedupSet struct {
	seen  map[string]bool
	order []string
}

func newDedupSet() *dedupSet {
	return &dedupSet{seen: make(map[string]bool)}
}

func (d *dedupSet) add(v string) {
	if v == "" || d.seen[v] {
		return
	}
	d.seen[v] = true
	d.order = append(d.order, v)
}

func (d *dedupSet) values() []string {
	return d.order
}
