package engine

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Helper is a pure function that rules may call from a 'where' expression.
// Helpers must not perform I/O; policy evaluation stays a pure function of
// the claim set and the fact.
type Helper struct {
	Name string
	Fn   func(args ...any) (any, error)
}

// builtinHelpers are available in every 'where' expression, in addition to
// the expr language builtins.
var builtinHelpers = []Helper{
	{
		Name: "concat",
		Fn: func(args ...any) (any, error) {
			var sb strings.Builder
			for _, arg := range args {
				s, ok := arg.(string)
				if !ok {
					return nil, fmt.Errorf("concat: argument %v is not a string", arg)
				}
				sb.WriteString(s)
			}
			return sb.String(), nil
		},
	},
	{
		Name: "claim_or",
		// claim_or(claims, "ref", "") looks up a claim with a fallback,
		// so expressions don't fail on absent optional claims.
		Fn: func(args ...any) (any, error) {
			if len(args) != 3 {
				return nil, fmt.Errorf("claim_or: want 3 arguments, got %d", len(args))
			}
			claims, ok := args[0].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("claim_or: first argument must be the claim set")
			}
			name, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("claim_or: second argument must be a claim name")
			}
			if v, present := claims[name]; present {
				return v, nil
			}
			return args[2], nil
		},
	},
}

var extraHelpers []Helper

// RegisterHelper makes an additional pure helper available to 'where'
// expressions compiled afterwards.
func RegisterHelper(h Helper) {
	extraHelpers = append(extraHelpers, h)
}

// CompileWhere compiles a rule's 'where' expression. The expression must
// produce a boolean; 'claims' and 'fact' are the two variables in scope.
func CompileWhere(code string) (*vm.Program, error) {
	opts := []expr.Option{
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
	}
	for _, h := range builtinHelpers {
		opts = append(opts, expr.Function(h.Name, h.Fn))
	}
	for _, h := range extraHelpers {
		opts = append(opts, expr.Function(h.Name, h.Fn))
	}
	return expr.Compile(code, opts...)
}
