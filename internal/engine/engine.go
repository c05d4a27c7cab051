// Package engine implements the built-in policy evaluator: an ordered
// rule list checked against one (claims, fact) pair at a time. It is
// strictly default-deny and performs no I/O; every fact a request implies
// has to be individually allowed by some rule.
package engine

import (
	"github.com/expr-lang/expr"
	"github.com/rs/zerolog/log"

	"github.com/tokex-dev/tokex/internal/core"
)

// Engine holds a fixed rule set and evaluates it. Replace the PolicyManager's
// engine to change rules; an Engine itself is immutable.
type Engine struct {
	rules []core.Rule
}

var _ core.Evaluator = (*Engine)(nil)

// New creates an Engine from validated rules (see validation.ValidateRules).
func New(rules []core.Rule) *Engine {
	return &Engine{rules: rules}
}

// Evaluate returns the first rule matching the pair, or (nil, false) if no
// rule matches. No rule means deny.
func (e *Engine) Evaluate(claims core.ClaimSet, fact core.Fact) (*core.Rule, bool) {
	for i := range e.rules {
		if matches(&e.rules[i], claims, fact) {
			return &e.rules[i], true
		}
	}
	return nil, false
}

func matches(rule *core.Rule, claims core.ClaimSet, fact core.Fact) bool {
	if rule.Match.Service != fact.Service() {
		return false
	}
	if rule.Match.Issuer != "" && rule.Match.Issuer != claims.Issuer() {
		return false
	}
	if rule.Match.Claims != nil {
		if ok, _ := evaluateCondition(*rule.Match.Claims, claims); !ok {
			return false
		}
	}
	if rule.Match.CompiledWhere != nil {
		out, err := expr.Run(rule.Match.CompiledWhere, map[string]any{
			"claims": map[string]any(claims),
			"fact":   fact.Attributes(),
		})
		if err != nil {
			// an erroring expression never grants access
			log.Warn().Err(err).Str("rule", rule.Name).Msg("error evaluating rule expression")
			return false
		}
		b, ok := out.(bool)
		if !ok || !b {
			return false
		}
	}
	return true
}
