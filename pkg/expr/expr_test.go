package expr

import (
	"errors"
	"testing"

	"github.com/dagline/dagline/pkg/models"
	"github.com/dagline/dagline/pkg/vars"
)

func scope() *vars.Scope {
	return &vars.Scope{
		Input: map[string]interface{}{"age": 42, "name": "ada"},
		Results: map[string]*models.NodeResult{
			"trigger": {
				NodeID: "trigger",
				Output: map[string]interface{}{"triggerType": "manual"},
			},
		},
	}
}

func mustEval(t *testing.T, src string) bool {
	t.Helper()
	got, err := Evaluate(src, scope())
	if err != nil {
		t.Fatalf("Evaluate(%q) error: %v", src, err)
	}
	return got
}

func TestEvaluate_EmptyIsUnconditionallyTrue(t *testing.T) {
	if !mustEval(t, "") {
		t.Fatal("expected empty expression to evaluate true")
	}
	if !mustEval(t, "   ") {
		t.Fatal("expected blank expression to evaluate true")
	}
}

func TestEvaluate_Comparisons(t *testing.T) {
	cases := map[string]bool{
		"input.age > 10":                    true,
		"input.age >= 42":                   true,
		"input.age < 10":                    false,
		"trigger.triggerType == \"manual\"": true,
		"trigger.triggerType != \"manual\"": false,
	}
	for src, want := range cases {
		if got := mustEval(t, src); got != want {
			t.Errorf("Evaluate(%q) = %v, want %v", src, got, want)
		}
	}
}

func TestEvaluate_LogicalOperators(t *testing.T) {
	if !mustEval(t, "input.age > 10 && trigger.triggerType == \"manual\"") {
		t.Fatal("expected conjunction to be true")
	}
	if mustEval(t, "input.age < 10 || false") {
		t.Fatal("expected disjunction to be false")
	}
	if mustEval(t, "!true") {
		t.Fatal("expected negation of true to be false")
	}
}

func TestEvaluate_Arithmetic(t *testing.T) {
	if !mustEval(t, "(1 + 2) * 3 == 9") {
		t.Fatal("expected arithmetic grouping to hold")
	}
	if !mustEval(t, "10 % 3 == 1") {
		t.Fatal("expected modulo to hold")
	}
}

func TestEvaluate_Truthiness(t *testing.T) {
	if mustEval(t, "0") {
		t.Fatal("zero should be falsy")
	}
	if !mustEval(t, "1") {
		t.Fatal("nonzero should be truthy")
	}
	if mustEval(t, "\"\"") {
		t.Fatal("empty string should be falsy")
	}
	if mustEval(t, "null") {
		t.Fatal("null should be falsy")
	}
}

func TestEvaluate_MissingPathIsNilNotError(t *testing.T) {
	if mustEval(t, "input.ghost") {
		t.Fatal("missing path should resolve to nil (falsy), not truthy")
	}
}

func TestEvaluate_SecurityViolation(t *testing.T) {
	cases := []string{
		"input.age.constructor",
		"process.env",
		"Function(\"x\")",
	}
	for _, src := range cases {
		_, err := Evaluate(src, scope())
		if !errors.Is(err, ErrSecurity) {
			t.Errorf("Evaluate(%q) error = %v, want ErrSecurity", src, err)
		}
	}
}

func TestEvaluate_DisallowedCharacter(t *testing.T) {
	_, err := Evaluate("input.age; rm -rf", scope())
	if !errors.Is(err, ErrSecurity) {
		t.Fatalf("expected ErrSecurity for disallowed character, got %v", err)
	}
}

func TestEvaluate_ParseError(t *testing.T) {
	_, err := Evaluate("input.age ==", scope())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestASTCache_ReusesParsedExpression(t *testing.T) {
	c := newASTCache(4)
	n1, err := c.parse("input.age > 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n2, err := c.parse("input.age > 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.len() != 1 {
		t.Fatalf("expected one cached entry, got %d", c.len())
	}
	_ = n1
	_ = n2
}

func TestASTCache_Eviction(t *testing.T) {
	c := newASTCache(2)
	c.parse("input.age > 1")
	c.parse("input.age > 2")
	c.parse("input.age > 3")
	if c.len() != 2 {
		t.Fatalf("expected capacity-bounded length 2, got %d", c.len())
	}
	if _, ok := c.get("input.age > 1"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
}
