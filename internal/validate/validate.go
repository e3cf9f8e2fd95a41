// Package validate implements the policy schema validator (C3): structural
// checks over a parsed policy.Policy, returning {valid, errors[]} rather
// than an error a caller must unwrap.
package validate

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/sentinelpdp/policy-engine/internal/domain/condition"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

var comparisonOperators = map[condition.Operator]bool{
	condition.OpEq: true, condition.OpNe: true,
	condition.OpGt: true, condition.OpGte: true, condition.OpLt: true, condition.OpLte: true,
	condition.OpIn: true, condition.OpNotIn: true,
	condition.OpContains: true, condition.OpNotContains: true,
	condition.OpMatches: true,
}

var validDecisions = map[policy.Decision]bool{
	policy.DecisionAllow: true, policy.DecisionDeny: true,
	policy.DecisionWarn: true, policy.DecisionModify: true,
}

var validStatuses = map[policy.Status]bool{
	policy.StatusDraft: true, policy.StatusActive: true, policy.StatusDeprecated: true,
}

// Result is the non-throwing outcome of Validate.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var structValidator = validator.New()

// metadataCheck mirrors spec 4.2's "metadata has required id/name/version/namespace".
type metadataCheck struct {
	ID        string `validate:"required"`
	Name      string `validate:"required"`
	Version   string `validate:"required"`
	Namespace string `validate:"required"`
}

// Validate checks p's structural schema (spec 4.2's Validator) and never
// panics or returns a Go error for a malformed policy — malformed input
// is reported as Result.Errors.
func Validate(p policy.Policy) Result {
	var errs []string

	check := metadataCheck{
		ID:        p.Metadata.ID,
		Name:      p.Metadata.Name,
		Version:   p.Metadata.Version,
		Namespace: p.Metadata.Namespace,
	}
	if err := structValidator.Struct(check); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			errs = append(errs, fmt.Sprintf("metadata.%s: %s", fe.Field(), fe.Tag()))
		}
	}

	if !validStatuses[p.Status] {
		errs = append(errs, fmt.Sprintf("status: must be one of draft|active|deprecated, got %q", p.Status))
	}

	if len(p.Rules) == 0 {
		errs = append(errs, "rules: must not be empty")
	}
	for i, r := range p.Rules {
		prefix := fmt.Sprintf("rules[%d]", i)
		if r.ID == "" {
			errs = append(errs, prefix+".id: required")
		}
		if !validDecisions[r.Action.Decision] {
			errs = append(errs, fmt.Sprintf("%s.action.decision: must be one of allow|deny|warn|modify, got %q", prefix, r.Action.Decision))
		}
		if r.Action.Decision != policy.DecisionModify && len(r.Action.Modifications) > 0 {
			errs = append(errs, fmt.Sprintf("%s.action.modifications: only permitted when decision is %q, got %q", prefix, policy.DecisionModify, r.Action.Decision))
		}
		errs = append(errs, validateCondition(r.Condition, prefix+".condition")...)
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// validateCondition recursively checks the discriminated shape: logical
// nodes carry Conditions and no Field/Value; comparison nodes carry Field
// and may carry Value.
func validateCondition(node condition.Node, path string) []string {
	var errs []string

	switch {
	case condition.IsLogical(node.Operator):
		if node.Field != "" || node.Value != nil {
			errs = append(errs, fmt.Sprintf("%s: logical operator %q must not set field/value", path, node.Operator))
		}
		if node.Operator != condition.OpNot && len(node.Conditions) == 0 {
			// and/or with no children are valid per spec (empty ⇒ true/false);
			// not with no children defaults to true, also valid.
		}
		for i, child := range node.Conditions {
			errs = append(errs, validateCondition(child, fmt.Sprintf("%s.conditions[%d]", path, i))...)
		}

	case comparisonOperators[node.Operator]:
		if node.Field == "" {
			errs = append(errs, fmt.Sprintf("%s: comparison operator %q requires a field", path, node.Operator))
		}
		if len(node.Conditions) != 0 {
			errs = append(errs, fmt.Sprintf("%s: comparison operator %q must not set conditions", path, node.Operator))
		}

	default:
		errs = append(errs, fmt.Sprintf("%s: unknown operator %q", path, node.Operator))
	}

	return errs
}
