// Package expr implements the restricted boolean/arithmetic expression
// grammar used for edge conditions and IF-node conditions: literals,
// path references into the same scope pkg/vars resolves against,
// arithmetic, comparison, and logical operators, with a security
// allow-list checked before parsing. It is a hand-rolled
// recursive-descent evaluator, not a general-purpose expression
// library, by design (see the caching note in cache.go for why one is
// still worth keeping compiled ASTs around for).
package expr

import (
	"fmt"

	"github.com/dagline/dagline/pkg/vars"
)

// Evaluate parses (or reuses a cached parse of) src and evaluates it
// against scope, coercing the result to bool by truthiness. An empty
// or blank expression evaluates to true — the unconditional-edge case.
func Evaluate(src string, scope *vars.Scope) (bool, error) {
	n, err := defaultCache.parse(src)
	if err != nil {
		return false, err
	}
	v, err := eval(n, scope)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// EvaluateValue is like Evaluate but returns the raw (uncoerced)
// result, for callers that need the value rather than a boolean (none
// of the current node kinds do, but IF's "selected" output computation
// reuses the same truthiness rule via Evaluate).
func EvaluateValue(src string, scope *vars.Scope) (interface{}, error) {
	n, err := defaultCache.parse(src)
	if err != nil {
		return nil, err
	}
	return eval(n, scope)
}

func eval(n node, scope *vars.Scope) (interface{}, error) {
	switch v := n.(type) {
	case literalNode:
		return v.value, nil
	case pathNode:
		value, _ := scope.Lookup(joinSegments(v.segments))
		return value, nil
	case unaryNode:
		operand, err := eval(v.operand, scope)
		if err != nil {
			return nil, err
		}
		switch v.op {
		case "!":
			return !truthy(operand), nil
		case "-":
			f, ok := toNumber(operand)
			if !ok {
				return nil, fmt.Errorf("%w: unary '-' on non-numeric operand", ErrRuntime)
			}
			return -f, nil
		}
		return nil, fmt.Errorf("%w: unknown unary operator %q", ErrRuntime, v.op)
	case binaryNode:
		return evalBinary(v, scope)
	default:
		return nil, fmt.Errorf("%w: unknown AST node %T", ErrRuntime, n)
	}
}

func evalBinary(b binaryNode, scope *vars.Scope) (interface{}, error) {
	// Logical operators short-circuit, so the right operand is only
	// evaluated when needed.
	if b.op == "&&" {
		left, err := eval(b.left, scope)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return false, nil
		}
		right, err := eval(b.right, scope)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}
	if b.op == "||" {
		left, err := eval(b.left, scope)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return true, nil
		}
		right, err := eval(b.right, scope)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	left, err := eval(b.left, scope)
	if err != nil {
		return nil, err
	}
	right, err := eval(b.right, scope)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "+":
		// '+' also concatenates strings, matching common scripting
		// convention for log-message construction in IF/edge conditions.
		if ls, ok := left.(string); ok {
			return ls + toStringValue(right), nil
		}
		if rs, ok := right.(string); ok {
			return toStringValue(left) + rs, nil
		}
		return arith(left, right, "+")
	case "-", "*", "/", "%":
		return arith(left, right, b.op)
	case "<", "<=", ">", ">=":
		return compare(left, right, b.op)
	}
	return nil, fmt.Errorf("%w: unknown binary operator %q", ErrRuntime, b.op)
}

func arith(left, right interface{}, op string) (interface{}, error) {
	lf, lok := toNumber(left)
	rf, rok := toNumber(right)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: arithmetic '%s' requires numeric operands", ErrRuntime, op)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrRuntime)
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("%w: modulo by zero", ErrRuntime)
		}
		li, ri := int64(lf), int64(rf)
		return float64(li % ri), nil
	}
	return nil, fmt.Errorf("%w: unknown arithmetic operator %q", ErrRuntime, op)
}

func compare(left, right interface{}, op string) (interface{}, error) {
	lf, lok := toNumber(left)
	rf, rok := toNumber(right)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	ls, lsok := left.(string)
	rs, rsok := right.(string)
	if lsok && rsok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, fmt.Errorf("%w: comparison '%s' requires two numbers or two strings", ErrRuntime, op)
}

func looseEqual(left, right interface{}) bool {
	lf, lok := toNumber(left)
	rf, rok := toNumber(right)
	if lok && rok {
		return lf == rf
	}
	return fmt.Sprint(left) == fmt.Sprint(right) && sameNilness(left, right)
}

func sameNilness(left, right interface{}) bool {
	return (left == nil) == (right == nil)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// truthy implements spec §4.3's coercion rule: null/zero/empty are
// false, everything else is true.
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

func joinSegments(segments []string) string {
	out := segments[0]
	for _, s := range segments[1:] {
		out += "." + s
	}
	return out
}
