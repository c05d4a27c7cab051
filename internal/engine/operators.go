package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/tokex-dev/tokex/internal/core"
)

func evaluateCondition(cond core.Condition, claims core.ClaimSet) (bool, string) {
	// logic nodes
	if len(cond.All) > 0 {
		for _, child := range cond.All {
			if ok, reason := evaluateCondition(child, claims); !ok {
				return false, reason
			}
		}
		return true, ""
	}
	if len(cond.Any) > 0 {
		for _, child := range cond.Any {
			if ok, _ := evaluateCondition(child, claims); ok {
				return true, ""
			}
		}
		return false, "no alternative matched"
	}
	if cond.Not != nil {
		ok, _ := evaluateCondition(*cond.Not, claims)
		if ok {
			return false, "negated condition matched"
		}
		return true, ""
	}

	// leaf
	val, exists := claims[cond.Claim]

	if cond.Operator == core.OpExists {
		if !exists {
			return false, fmt.Sprintf("claim %q does not exist", cond.Claim)
		}
		return true, ""
	}
	if !exists {
		return false, fmt.Sprintf("claim %q missing", cond.Claim)
	}

	switch cond.Operator {
	case core.OpEqual:
		if !looseEqual(val, cond.Value) {
			return false, fmt.Sprintf("expected %q to equal '%v'", cond.Claim, cond.Value)
		}
		return true, ""

	case core.OpContains:
		// claim value contains the configured item,
		// e.g. "sub contains 'acme/'"
		if !contains(val, cond.Value) {
			return false, fmt.Sprintf("claim %q does not contain '%v'", cond.Claim, cond.Value)
		}
		return true, ""

	case core.OpIn:
		// claim value is a member of the configured list,
		// e.g. "ref in ['refs/heads/main', 'refs/heads/dev']"
		if !contains(cond.Value, val) {
			return false, fmt.Sprintf("claim %q not in '%v'", cond.Claim, cond.Value)
		}
		return true, ""
	}

	return false, fmt.Sprintf("unknown operator %q in condition", cond.Operator)
}

// looseEqual compares scalars across the int/float divide YAML and JSON
// decoding produce, and falls back to deep equality for composites.
func looseEqual(a, b any) bool {
	if na, aOK := toFloat(a); aOK {
		if nb, bOK := toFloat(b); bOK {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func contains(container, item any) bool {
	if str, ok := container.(string); ok {
		if subStr, ok := item.(string); ok {
			return strings.Contains(str, subStr)
		}
		return false
	}

	v := reflect.ValueOf(container)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		for i := 0; i < v.Len(); i++ {
			if looseEqual(v.Index(i).Interface(), item) {
				return true
			}
		}
	}
	return false
}
