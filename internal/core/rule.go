package core

import "github.com/expr-lang/expr/vm"

// Match defines when a Rule applies to a (claims, fact) pair.
type Match struct {
	// Service restricts the rule to facts derived from one request kind.
	// Required, so a rule can never accidentally span services.
	Service Service `yaml:"service" json:"service"`

	// Issuer optionally pins the rule to tokens from one provider
	// (matched against the 'iss' claim). Empty means any trusted issuer.
	Issuer string `yaml:"issuer" json:"issuer"`

	// Claims is a condition tree over the verified claim set.
	// Leaving this empty means no claim-based restriction. Claims and
	// Where may both be set; the rule matches only when both hold.
	Claims *Condition `yaml:"claims" json:"claims"`

	// AllowEmptyClaims must be set for a rule without Claims and Where to
	// be accepted. This is a safety measure against unintentionally
	// unrestricted rules.
	AllowEmptyClaims bool `yaml:"allow_empty" json:"allow_empty"`

	// Where is an optional expression over 'claims' and 'fact' for logic
	// the condition tree cannot express (e.g. comparing a fact field
	// against a claim, numeric bounds).
	Where string `yaml:"where" json:"where"`

	// CompiledWhere holds the pre-compiled form of Where.
	CompiledWhere *vm.Program `yaml:"-" json:"-"`
}

// Rule allows a class of (claims, fact) pairs. The rule set is
// default-deny: a fact is authorized only if some rule matches it.
type Rule struct {
	// Name is a human-readable identifier for logs/debugging.
	Name string `yaml:"name" json:"name"`

	// Description explains the intent of the rule.
	Description string `yaml:"description" json:"description"`

	// Match defines the criteria for the claim set and the fact.
	Match Match `yaml:"match" json:"match"`
}
