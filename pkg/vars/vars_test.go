package vars

import (
	"errors"
	"testing"

	"github.com/dagline/dagline/pkg/models"
)

func sampleScope() *Scope {
	return &Scope{
		Input:  map[string]interface{}{"name": "ada", "count": 3},
		Global: map[string]interface{}{"env": "prod"},
		System: map[string]interface{}{"executionId": "exec-1"},
		Results: map[string]*models.NodeResult{
			"A": {
				NodeID: "A",
				Status: models.NodeResultSuccess,
				Output: map[string]interface{}{
					"message": "hello",
					"items":   []interface{}{"x", "y", "z"},
				},
			},
		},
	}
}

func TestResolveString_PlainText(t *testing.T) {
	r := NewResolver(sampleScope(), false)
	got, err := r.ResolveString("no tokens here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "no tokens here" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveString_SingleTokenPreservesType(t *testing.T) {
	r := NewResolver(sampleScope(), false)
	got, err := r.ResolveString("{{input.count}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected typed int 3, got %v (%T)", got, got)
	}
}

func TestResolveString_EmbeddedTokenStringifies(t *testing.T) {
	r := NewResolver(sampleScope(), false)
	got, err := r.ResolveString("hi {{input.name}}, count={{input.count}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hi ada, count=3" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveString_NodeOutputScope(t *testing.T) {
	r := NewResolver(sampleScope(), false)
	got, err := r.ResolveString("{{A.message}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveString_SequenceIndex(t *testing.T) {
	r := NewResolver(sampleScope(), false)
	got, err := r.ResolveString("{{A.items.1}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "y" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveString_MissingNonStrictIsEmpty(t *testing.T) {
	r := NewResolver(sampleScope(), false)
	got, err := r.ResolveString("{{A.missing}}")
	if err != nil {
		t.Fatalf("unexpected error in non-strict mode: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty string, got %v", got)
	}
}

func TestResolveString_MissingStrictErrors(t *testing.T) {
	r := NewResolver(sampleScope(), true)
	_, err := r.ResolveString("{{A.missing}}")
	if !errors.Is(err, models.ErrUnresolvedVariable) {
		t.Fatalf("expected ErrUnresolvedVariable, got %v", err)
	}
}

func TestResolveString_UnknownScopeNonStrict(t *testing.T) {
	r := NewResolver(sampleScope(), false)
	got, err := r.ResolveString("{{ghost.field}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty string for unknown scope, got %v", got)
	}
}

func TestResolveMap_RecursesAndPreservesNonStringLeaves(t *testing.T) {
	r := NewResolver(sampleScope(), false)
	in := map[string]interface{}{
		"greeting": "{{input.name}}",
		"nested": map[string]interface{}{
			"n":    "{{input.count}}",
			"flag": true,
		},
		"list": []interface{}{"{{A.message}}", 42},
	}
	out, err := r.ResolveMap(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["greeting"] != "ada" {
		t.Fatalf("greeting = %v", out["greeting"])
	}
	nested := out["nested"].(map[string]interface{})
	if nested["n"] != 3 {
		t.Fatalf("nested.n = %v (%T), want typed 3", nested["n"], nested["n"])
	}
	if nested["flag"] != true {
		t.Fatalf("nested.flag = %v", nested["flag"])
	}
	list := out["list"].([]interface{})
	if list[0] != "hello" || list[1] != 42 {
		t.Fatalf("list = %v", list)
	}
}

func TestHasTokens(t *testing.T) {
	if !HasTokens("x={{a.b}}") {
		t.Fatal("expected HasTokens true")
	}
	if HasTokens("no tokens") {
		t.Fatal("expected HasTokens false")
	}
}
