package validation

import (
	"fmt"

	"github.com/tokex-dev/tokex/internal/core"
	"github.com/tokex-dev/tokex/internal/engine"
)

// ValidateRules checks the policy rule set at load time and pre-compiles
// 'where' expressions. knownIssuers is the set of trusted issuer URLs; a
// rule pinned to an unknown issuer could never match and is rejected as a
// configuration mistake.
func ValidateRules(rules []core.Rule, knownIssuers map[string]struct{}) ([]core.Rule, error) {
	seenNames := make(map[string]struct{})
	var validRules []core.Rule

	for i, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("rule #%d missing name", i)
		}
		if _, exists := seenNames[rule.Name]; exists {
			return nil, fmt.Errorf("rule name %q is not unique", rule.Name)
		}
		seenNames[rule.Name] = struct{}{}

		if !rule.Match.Service.Valid() {
			return nil, fmt.Errorf("rule %q has invalid match.service %q", rule.Name, rule.Match.Service)
		}
		if rule.Match.Issuer != "" {
			if _, known := knownIssuers[rule.Match.Issuer]; !known {
				return nil, fmt.Errorf("rule %q references unknown issuer %q", rule.Name, rule.Match.Issuer)
			}
		}

		if rule.Match.Claims == nil && rule.Match.Where == "" && !rule.Match.AllowEmptyClaims {
			return nil, fmt.Errorf("rule %q has neither match.claims nor match.where set, and allow_empty is false", rule.Name)
		}
		if rule.Match.Claims != nil {
			if err := rule.Match.Claims.Validate(); err != nil {
				return nil, fmt.Errorf("validating claims condition for rule %q: %w", rule.Name, err)
			}
		}
		if rule.Match.Where != "" {
			prog, err := engine.CompileWhere(rule.Match.Where)
			if err != nil {
				return nil, fmt.Errorf("compiling where expression for rule %q: %w", rule.Name, err)
			}
			rule.Match.CompiledWhere = prog
		}

		validRules = append(validRules, rule)
	}

	return validRules, nil
}
