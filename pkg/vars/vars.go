// Package vars resolves {{path}} template tokens against a layered
// binding scope: input, global, system, and per-node outputs.
package vars

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/dagline/dagline/pkg/models"
)

// tokenPattern matches {{ path }} with optional surrounding whitespace.
var tokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Scope supplies the four binding namespaces a path's first segment
// selects: "input", "global", "system", or a completed node's ID.
type Scope struct {
	Input   map[string]interface{}
	Global  map[string]interface{}
	System  map[string]interface{}
	Results map[string]*models.NodeResult // nodeID -> result, output used for lookups
}

// NewScope builds a Scope from an execution context.
func NewScope(ec *models.ExecutionContext, system map[string]interface{}) *Scope {
	return &Scope{
		Input:   ec.Input,
		Global:  ec.Globals,
		System:  system,
		Results: ec.Results,
	}
}

// Resolver resolves templates in strings and recursively in maps,
// honoring strict/non-strict error policy (spec §4.2).
type Resolver struct {
	scope  *Scope
	strict bool
}

// NewResolver builds a Resolver. strict=true fails resolution with
// models.ErrUnresolvedVariable when any path is missing; strict=false
// substitutes the empty string and never errors.
func NewResolver(scope *Scope, strict bool) *Resolver {
	return &Resolver{scope: scope, strict: strict}
}

// WithScope returns a copy of the resolver bound to a different scope,
// preserving its strict/non-strict policy — for callers (e.g. END's
// per-key output aggregation) that need to resolve against a narrower
// view of the execution's results than the full scope.
func (r *Resolver) WithScope(scope *Scope) *Resolver {
	return &Resolver{scope: scope, strict: r.strict}
}

// Resolve dispatches on the dynamic type of data: strings go through
// ResolveString, maps/slices recurse leaf-wise, everything else passes
// through unchanged.
func (r *Resolver) Resolve(data interface{}) (interface{}, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case string:
		return r.ResolveString(v)
	case map[string]interface{}:
		return r.resolveMap(v)
	case []interface{}:
		return r.resolveSlice(v)
	default:
		return data, nil
	}
}

// ResolveMap applies Resolve to every string leaf of m, recursing into
// nested maps and slices and leaving non-string leaves untouched.
func (r *Resolver) ResolveMap(m map[string]interface{}) (map[string]interface{}, error) {
	return r.resolveMap(m)
}

func (r *Resolver) resolveMap(m map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		resolved, err := r.Resolve(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func (r *Resolver) resolveSlice(s []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(s))
	for i, v := range s {
		resolved, err := r.Resolve(v)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = resolved
	}
	return out, nil
}

// ResolveString substitutes every {{path}} token in template with the
// string form of its resolved value. When the template is exactly one
// token, the original type of the resolved value is preserved instead
// (spec §4.2) — the return value is interface{} for that reason even
// though the common case is a string.
func (r *Resolver) ResolveString(template string) (interface{}, error) {
	if template == "" {
		return template, nil
	}

	if path, ok := soleToken(template); ok {
		value, found := r.resolvePath(path)
		if !found {
			if r.strict {
				return nil, fmt.Errorf("%w: {{%s}}", models.ErrUnresolvedVariable, path)
			}
			return "", nil
		}
		return value, nil
	}

	var firstErr error
	result := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		value, found := r.resolvePath(path)
		if !found {
			if r.strict && firstErr == nil {
				firstErr = fmt.Errorf("%w: {{%s}}", models.ErrUnresolvedVariable, path)
			}
			return ""
		}
		return stringify(value)
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// resolvePath delegates to the scope's own path lookup.
func (r *Resolver) resolvePath(path string) (interface{}, bool) {
	return r.scope.Lookup(path)
}

// Lookup splits path on its leading scope segment (input, global,
// system, or a node ID) and walks the rest against that scope's root
// value. Shared by Resolver and pkg/expr's path references, since both
// navigate the identical scope shape.
func (s *Scope) Lookup(path string) (interface{}, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}

	scopeName := segments[0]
	rest := segments[1:]

	var root interface{}
	switch scopeName {
	case "input":
		root = mapToInterface(s.Input)
	case "global":
		root = mapToInterface(s.Global)
	case "system":
		root = mapToInterface(s.System)
	default:
		result, ok := s.Results[scopeName]
		if !ok || result == nil {
			return nil, false
		}
		root = mapToInterface(result.Output)
	}

	if root == nil {
		return nil, false
	}
	return traverse(root, rest)
}

func mapToInterface(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}

// traverse walks segments into value; each segment is either a map
// key or, when purely numeric, a sequence index.
func traverse(value interface{}, segments []string) (interface{}, bool) {
	current := value
	for _, seg := range segments {
		if current == nil {
			return nil, false
		}
		if idx, err := strconv.Atoi(seg); err == nil {
			v, ok := indexSequence(current, idx)
			if !ok {
				return nil, false
			}
			current = v
			continue
		}
		v, ok := lookupField(current, seg)
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func lookupField(value interface{}, field string) (interface{}, bool) {
	if m, ok := value.(map[string]interface{}); ok {
		v, ok := m[field]
		return v, ok
	}
	// Best-effort: round-trip through JSON for struct-shaped values.
	if data, err := json.Marshal(value); err == nil {
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err == nil {
			v, ok := m[field]
			return v, ok
		}
	}
	return nil, false
}

func indexSequence(value interface{}, idx int) (interface{}, bool) {
	if idx < 0 {
		return nil, false
	}
	if s, ok := value.([]interface{}); ok {
		if idx >= len(s) {
			return nil, false
		}
		return s[idx], true
	}
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		if idx >= v.Len() {
			return nil, false
		}
		return v.Index(idx).Interface(), true
	}
	return nil, false
}

// splitPath splits a dotted path into segments; pure stdlib, no
// bracket-index syntax (spec §4.2 uses plain dotted integer segments
// for sequence indexing, not the teacher's template package's
// items[0] bracket form).
func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// soleToken reports whether template is exactly one {{path}} token
// with nothing else around it, returning the trimmed path.
func soleToken(template string) (string, bool) {
	t := strings.TrimSpace(template)
	if !strings.HasPrefix(t, "{{") || !strings.HasSuffix(t, "}}") {
		return "", false
	}
	inner := t[2 : len(t)-2]
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

func stringify(value interface{}) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}

// HasTokens reports whether s contains at least one {{...}} token.
func HasTokens(s string) bool {
	return tokenPattern.MatchString(s)
}
