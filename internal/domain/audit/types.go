// Package audit contains the append-only evaluation record (C8) and the
// store port it is persisted through.
package audit

import (
	"strings"
	"time"

	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

// sensitiveKeywords lists substrings that indicate a sensitive context key.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey", "prompt",
}

// RedactSensitiveContext returns a copy of ctx with the values of sensitive
// keys masked at any depth of nested maps before it is persisted, per spec section 8's side-channel
// constraint that raw prompts/PII never reach durable audit storage.
func RedactSensitiveContext(ctx map[string]any) map[string]any {
	if len(ctx) == 0 {
		return ctx
	}
	redacted := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if isSensitiveKey(k) {
			redacted[k] = "***REDACTED***"
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			redacted[k] = RedactSensitiveContext(sub)
			continue
		}
		redacted[k] = v
	}
	return redacted
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Record is a single append-only log entry: one non-dry-run evaluation.
type Record struct {
	ID                string
	RequestID         string
	PolicyIDs         []string
	MatchedPolicyIDs  []string
	MatchedRuleIDs    []string
	Decision          policy.Decision
	Allowed           bool
	Reason            string
	Context           map[string]any
	Modifications     map[string]any
	EvaluationTimeMs  float64
	Trace             *policy.TraceEntry
	Cached            bool
	CreatedAt         time.Time
	UserID            string
	TeamID            string
	ProjectID         string
}
