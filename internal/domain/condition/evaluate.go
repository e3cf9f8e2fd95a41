package condition

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
)

// Result is the outcome of evaluating a condition tree against a context.
type Result struct {
	Result           bool
	EvaluationTimeMs float64
	Details          string
}

// Evaluate is the pure entry point: it never mutates cond or ctx, and
// always reports EvaluationTimeMs, even when it returns an error.
func Evaluate(cond Node, ctx any) (Result, error) {
	start := time.Now()
	ok, details, err := eval(cond, ctx)
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	return Result{Result: ok, EvaluationTimeMs: elapsed, Details: details}, err
}

func eval(node Node, ctx any) (bool, string, error) {
	switch node.Operator {
	case OpAnd:
		for _, child := range node.Conditions {
			ok, _, err := eval(child, ctx)
			if err != nil {
				return false, string(OpAnd), err
			}
			if !ok {
				return false, string(OpAnd), nil
			}
		}
		return true, string(OpAnd), nil

	case OpOr:
		for _, child := range node.Conditions {
			ok, _, err := eval(child, ctx)
			if err != nil {
				return false, string(OpOr), err
			}
			if ok {
				return true, string(OpOr), nil
			}
		}
		return false, string(OpOr), nil

	case OpNot:
		if len(node.Conditions) == 0 {
			return true, string(OpNot), nil
		}
		ok, _, err := eval(node.Conditions[0], ctx)
		if err != nil {
			return false, string(OpNot), err
		}
		return !ok, string(OpNot), nil

	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpContains, OpNotContains, OpMatches:
		return evalComparison(node, ctx)

	default:
		return false, string(node.Operator), apperr.New(apperr.KindEvaluation, fmt.Sprintf("unknown operator %q", node.Operator))
	}
}

func evalComparison(node Node, ctx any) (bool, string, error) {
	fieldValue := lookup(ctx, node.Field)
	details := string(node.Operator)

	switch node.Operator {
	case OpEq:
		return equalValues(fieldValue, node.Value), details, nil
	case OpNe:
		return !equalValues(fieldValue, node.Value), details, nil

	case OpGt:
		return compareOrdered(fieldValue, node.Value) > 0, details, nil
	case OpGte:
		return compareOrdered(fieldValue, node.Value) >= 0, details, nil
	case OpLt:
		return compareOrdered(fieldValue, node.Value) < 0, details, nil
	case OpLte:
		return compareOrdered(fieldValue, node.Value) <= 0, details, nil

	case OpIn:
		list, ok := node.Value.([]any)
		if !ok {
			return false, details, nil
		}
		return listContains(list, fieldValue), details, nil
	case OpNotIn:
		list, ok := node.Value.([]any)
		if !ok {
			return true, details, nil
		}
		return !listContains(list, fieldValue), details, nil

	case OpContains:
		return containsValue(fieldValue, node.Value), details, nil
	case OpNotContains:
		return !containsValue(fieldValue, node.Value), details, nil

	case OpMatches:
		pattern, ok := node.Value.(string)
		if !ok {
			return false, details, nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, details, nil
		}
		return re.MatchString(toStringCoerce(fieldValue)), details, nil
	}

	return false, details, nil
}

func listContains(list []any, needle any) bool {
	for _, item := range list {
		if equalValues(item, needle) {
			return true
		}
	}
	return false
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return stringsContains(h, toStringCoerce(needle))
	case []any:
		return listContains(h, needle)
	case map[string]any:
		for _, v := range h {
			if equalValues(v, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func stringsContains(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n := len(needle)
	if n == 0 {
		return 0
	}
	for i := 0; i+n <= len(haystack); i++ {
		if haystack[i:i+n] == needle {
			return i
		}
	}
	return -1
}

// equalValues implements spec 4.3's eq semantics: absent-vs-absent and
// null-vs-null compare as documented, objects/arrays compare structurally
// via canonical JSON, everything else falls back to numeric or string
// coercion.
func equalValues(a, b any) bool {
	aUndef, bUndef := isUndefined(a), isUndefined(b)
	if aUndef || bUndef {
		return aUndef && bUndef
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return false
		}
		return canonicalJSON(av) == canonicalJSON(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok {
			return false
		}
		return canonicalJSON(av) == canonicalJSON(bv)
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
	}
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn
		}
	}
	return toStringCoerce(a) == toStringCoerce(b)
}

// compareOrdered implements gt/gte/lt/lte's coerce-to-number-else-lexical
// rule, returning <0, 0, >0 like strings.Compare.
func compareOrdered(a, b any) int {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	as, bs := toStringCoerce(a), toStringCoerce(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toStringCoerce(v any) string {
	if isUndefined(v) || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	default:
		if n, ok := toNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// canonicalJSON produces a deterministic serialization for structural
// equality: encoding/json already sorts map keys, but slice-of-map
// ordering inside values is otherwise left as authored.
func canonicalJSON(v any) string {
	b, err := json.Marshal(normalizeForJSON(v))
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// normalizeForJSON returns a copy of v with nested maps and slices rebuilt
// recursively; all other values are returned unchanged.
func normalizeForJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = normalizeForJSON(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeForJSON(item)
		}
		return out
	default:
		return val
	}
}
