// Package policy contains the domain types for policy documents, the
// decision they produce, and the ports the engine (C5), store (C7), and
// audit log (C8) are built against.
package policy

import (
	"time"

	"github.com/sentinelpdp/policy-engine/internal/domain/condition"
)

// Decision is the closed set of outcomes a rule's action can produce.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionDeny   Decision = "deny"
	DecisionWarn   Decision = "warn"
	DecisionModify Decision = "modify"
)

// Status is the policy lifecycle state (spec 4.9). Only Active policies
// are visible to the engine.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

// Metadata identifies a policy document. (Namespace, Name, Version) is the
// durable-store uniqueness key; ID is the stable identifier callers address.
type Metadata struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version" yaml:"version"`
	Namespace   string   `json:"namespace" yaml:"namespace"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority    int      `json:"priority" yaml:"priority"`
}

// Action is what a matching rule produces.
type Action struct {
	Decision      Decision       `json:"decision" yaml:"decision"`
	Reason        string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Modifications map[string]any `json:"modifications,omitempty" yaml:"modifications,omitempty"`
}

// Rule is one entry in a policy's declared, order-significant rule list.
type Rule struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool           `json:"enabled" yaml:"enabled"`
	Condition   condition.Node `json:"condition" yaml:"condition"`
	Action      Action         `json:"action" yaml:"action"`
}

// Policy is a complete, parsed/validated policy document.
type Policy struct {
	Metadata  Metadata  `json:"metadata" yaml:"metadata"`
	Rules     []Rule    `json:"rules" yaml:"rules"`
	Status    Status    `json:"status" yaml:"status"`
	CreatedBy string    `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// TraceEntry records one rule evaluation when trace=true.
type TraceEntry struct {
	PolicyID            string    `json:"policyId"`
	RuleID              string    `json:"ruleId"`
	ConditionEvaluation bool      `json:"conditionEvaluation"`
	FinalDecision       Decision  `json:"finalDecision"`
	Timestamp           time.Time `json:"timestamp"`
}

// EvaluationRequest is the input to Evaluate/Simulate.
type EvaluationRequest struct {
	RequestID string
	Context   map[string]any
	Policies  []string
	Trace     bool
	DryRun    bool
	UseCache  bool
	UserID    string
	TeamID    string
	ProjectID string
}

// EvaluationResult is the aggregated outcome of evaluating a request
// against the active policy set (spec 4.4 "Aggregation").
type EvaluationResult struct {
	Decision         Decision
	Allowed          bool
	Reason           string
	MatchedPolicies  []string
	MatchedRules     []string
	Modifications    map[string]any
	EvaluationTimeMs float64
	Trace            *TraceEntry
	Cached           bool
}
