package condition

import (
	"testing"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
)

func ctxFixture() map[string]any {
	return map[string]any{
		"user": map[string]any{
			"role":  "admin",
			"roles": []any{"admin", "viewer"},
			"team":  map[string]any{"id": "t1"},
		},
		"request": map[string]any{
			"tokens": 150.0,
		},
	}
}

func TestEmptyAndIsTrue(t *testing.T) {
	res, err := Evaluate(Node{Operator: OpAnd}, ctxFixture())
	if err != nil || !res.Result {
		t.Fatalf("expected empty and to be true, got %+v err=%v", res, err)
	}
}

func TestEmptyOrIsFalse(t *testing.T) {
	res, err := Evaluate(Node{Operator: OpOr}, ctxFixture())
	if err != nil || res.Result {
		t.Fatalf("expected empty or to be false, got %+v err=%v", res, err)
	}
}

func TestNotNegatesFirstChild(t *testing.T) {
	cond := Node{Operator: OpNot, Conditions: []Node{
		{Operator: OpEq, Field: "user.role", Value: "admin"},
	}}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil || res.Result {
		t.Fatalf("expected negation to be false, got %+v err=%v", res, err)
	}
}

func TestEqMissingFieldIsUndefinedNotNull(t *testing.T) {
	cond := Node{Operator: OpEq, Field: "user.missing", Value: nil}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Result {
		t.Fatalf("expected undefined != null")
	}
}

func TestGtNumericCoercion(t *testing.T) {
	cond := Node{Operator: OpGt, Field: "request.tokens", Value: 100}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil || !res.Result {
		t.Fatalf("expected 150 > 100, got %+v err=%v", res, err)
	}
}

func TestGtLexicalFallback(t *testing.T) {
	cond := Node{Operator: OpGt, Field: "user.role", Value: "aaa"}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil || !res.Result {
		t.Fatalf("expected lexical admin > aaa, got %+v err=%v", res, err)
	}
}

func TestInRequiresList(t *testing.T) {
	cond := Node{Operator: OpIn, Field: "user.role", Value: "not-a-list"}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil || res.Result {
		t.Fatalf("expected non-list value to yield false for in, got %+v", res)
	}
}

func TestNotInNonListYieldsTrue(t *testing.T) {
	cond := Node{Operator: OpNotIn, Field: "user.role", Value: "not-a-list"}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil || !res.Result {
		t.Fatalf("expected non-list value to yield true for not_in, got %+v", res)
	}
}

func TestContainsOnList(t *testing.T) {
	cond := Node{Operator: OpContains, Field: "user.roles", Value: "viewer"}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil || !res.Result {
		t.Fatalf("expected roles to contain viewer, got %+v", res)
	}
}

func TestMatchesInvalidRegexIsFalseNotError(t *testing.T) {
	cond := Node{Operator: OpMatches, Field: "user.role", Value: "("}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil {
		t.Fatalf("expected no error for invalid regex, got %v", err)
	}
	if res.Result {
		t.Fatalf("expected invalid regex to yield false")
	}
}

func TestUnknownOperatorIsEvaluationError(t *testing.T) {
	cond := Node{Operator: "bogus", Field: "user.role", Value: "admin"}
	_, err := Evaluate(cond, ctxFixture())
	if err == nil {
		t.Fatal("expected an error for unknown operator")
	}
	kind, ok := apperr.KindOf(err)
	if !ok || kind != apperr.KindEvaluation {
		t.Fatalf("expected EvaluationError kind, got %v", err)
	}
}

func TestStructuralEqualityOnObjects(t *testing.T) {
	cond := Node{Operator: OpEq, Field: "user.team", Value: map[string]any{"id": "t1"}}
	res, err := Evaluate(cond, ctxFixture())
	if err != nil || !res.Result {
		t.Fatalf("expected structural equality to match, got %+v err=%v", res, err)
	}
}

func TestEvaluationTimeObservedOnError(t *testing.T) {
	cond := Node{Operator: "bogus"}
	res, err := Evaluate(cond, ctxFixture())
	if err == nil {
		t.Fatal("expected error")
	}
	if res.EvaluationTimeMs < 0 {
		t.Fatalf("expected non-negative evaluation time, got %f", res.EvaluationTimeMs)
	}
}
