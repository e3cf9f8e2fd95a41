// Package parser turns an authored YAML or JSON policy document into a
// policy.Policy with spec 4.2's defaults filled in.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
	"github.com/sentinelpdp/policy-engine/internal/domain/condition"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

// rawDocument mirrors the authored shape before defaults are applied;
// Condition is left as map[string]any so it round-trips through YAML or
// JSON without a custom unmarshaler, then is re-decoded into condition.Node.
type rawDocument struct {
	Metadata *rawMetadata `json:"metadata" yaml:"metadata"`
	Rules    []rawRule    `json:"rules" yaml:"rules"`
	Status   string       `json:"status" yaml:"status"`
}

type rawMetadata struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version" yaml:"version"`
	Namespace   string   `json:"namespace" yaml:"namespace"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags" yaml:"tags"`
	Priority    *int     `json:"priority" yaml:"priority"`
}

type rawRule struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Enabled     *bool          `json:"enabled" yaml:"enabled"`
	Condition   map[string]any `json:"condition" yaml:"condition"`
	Action      rawAction      `json:"action" yaml:"action"`
}

type rawAction struct {
	Decision      string         `json:"decision" yaml:"decision"`
	Reason        string         `json:"reason" yaml:"reason"`
	Modifications map[string]any `json:"modifications" yaml:"modifications"`
}

// Parse accepts either YAML or JSON bytes (format is sniffed, not declared)
// and produces a Policy with defaults filled, per spec 4.2.
func Parse(data []byte) (policy.Policy, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return policy.Policy{}, apperr.New(apperr.KindParse, "empty policy document")
	}

	var raw rawDocument
	if err := decode(data, &raw); err != nil {
		return policy.Policy{}, apperr.Wrap(apperr.KindParse, "malformed policy document", err)
	}

	if raw.Metadata == nil {
		return policy.Policy{}, apperr.New(apperr.KindParse, "policy document missing metadata")
	}
	if raw.Rules == nil {
		return policy.Policy{}, apperr.New(apperr.KindParse, "policy document missing rule array")
	}

	return toPolicy(raw)
}

// decode sniffs JSON (document starts with '{' once trimmed) vs YAML;
// yaml.v3 can decode JSON too, but keeping them separate matches error
// messages callers expect from each format.
func decode(data []byte, out *rawDocument) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		return json.Unmarshal(data, out)
	}
	return yaml.Unmarshal(data, out)
}

func toPolicy(raw rawDocument) (policy.Policy, error) {
	now := time.Now().UTC()

	meta := policy.Metadata{
		ID:          raw.Metadata.ID,
		Name:        raw.Metadata.Name,
		Version:     raw.Metadata.Version,
		Namespace:   raw.Metadata.Namespace,
		Description: raw.Metadata.Description,
		Tags:        raw.Metadata.Tags,
	}
	if meta.Version == "" {
		meta.Version = "1.0.0"
	}
	if meta.Namespace == "" {
		meta.Namespace = "default"
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	if raw.Metadata.Priority != nil {
		meta.Priority = *raw.Metadata.Priority
	}

	rules := make([]policy.Rule, 0, len(raw.Rules))
	for i, r := range raw.Rules {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("rule-%d", i)
		}
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("Rule %d", i)
		}
		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}

		cond, err := decodeCondition(r.Condition)
		if err != nil {
			return policy.Policy{}, apperr.Wrap(apperr.KindParse, fmt.Sprintf("rule %q has an invalid condition", id), err)
		}

		rules = append(rules, policy.Rule{
			ID:          id,
			Name:        name,
			Description: r.Description,
			Enabled:     enabled,
			Condition:   cond,
			Action: policy.Action{
				Decision:      policy.Decision(r.Action.Decision),
				Reason:        r.Action.Reason,
				Modifications: r.Action.Modifications,
			},
		})
	}

	status := policy.Status(raw.Status)
	if status == "" {
		status = policy.StatusActive
	}

	return policy.Policy{
		Metadata:  meta,
		Rules:     rules,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// decodeCondition re-marshals the generic map into JSON and decodes it into
// a condition.Node tree, so nested "conditions" arrays recurse correctly
// regardless of whether the source document was YAML or JSON.
func decodeCondition(raw map[string]any) (condition.Node, error) {
	if raw == nil {
		return condition.Node{}, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return condition.Node{}, err
	}
	var node condition.Node
	if err := json.Unmarshal(b, &node); err != nil {
		return condition.Node{}, err
	}
	return node, nil
}
