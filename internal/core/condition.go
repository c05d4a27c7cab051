package core

import "fmt"

// Operator defines how a claim value is compared.
type Operator string

const (
	OpEqual Operator = "equals"
	// OpContains checks that the claim value contains the given item.
	// for strings: "acme/app" contains "acme"
	// for lists: ["a", "b"] contains "b"
	OpContains Operator = "contains"
	// OpIn checks that the claim value is a member of the given list.
	OpIn Operator = "in"
	// OpExists checks claim presence regardless of value.
	OpExists Operator = "exists"
)

func (op Operator) IsValid() bool {
	switch op {
	case OpEqual, OpContains, OpIn, OpExists:
		return true
	default:
		return false
	}
}

// Condition is a single check against the claim set, or a boolean
// combination of sub-conditions.
type Condition struct {
	// Logic nodes
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
	Not *Condition  `json:"not,omitempty"`

	// Leaf node
	Claim    string   `json:"claim,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
}

func (c *Condition) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return err
	}

	// A condition can be written explicitly:
	//   { claim: repository, operator: equals, value: "acme/app" }
	// or as a shorthand:
	//   { repository: "acme/app" }
	explicit := false
	for k := range raw {
		switch k {
		case "all", "any", "not", "claim", "operator", "value":
			explicit = true
		}
	}

	if explicit {
		type plain Condition // avoid recursing into this unmarshaler
		var p plain
		if err := unmarshal(&p); err != nil {
			return err
		}
		*c = Condition(p)
		if c.Claim != "" && c.Operator == "" {
			c.Operator = OpEqual
		}
		return nil
	}

	// Shorthand form: every key is a claim name. A map value whose single
	// key is an operator selects that operator, anything else is an
	// implicit equality check.
	var children []Condition
	for k, v := range raw {
		sub := Condition{Claim: k, Operator: OpEqual, Value: v}
		if vMap, ok := v.(map[string]any); ok {
			for opKey, opVal := range vMap {
				if op := Operator(opKey); op.IsValid() {
					sub.Operator = op
					sub.Value = opVal
					break
				}
			}
		}
		children = append(children, sub)
	}

	if len(children) == 1 {
		*c = children[0]
	} else {
		// multiple shorthand keys combine as an implicit AND
		c.All = children
	}
	return nil
}

func (c *Condition) Validate() error {
	if c == nil {
		return nil
	}

	hasAll := len(c.All) > 0
	hasAny := len(c.Any) > 0
	hasNot := c.Not != nil
	hasLeaf := c.Claim != ""

	for _, sub := range c.All {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	for _, sub := range c.Any {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	if hasNot {
		if err := c.Not.Validate(); err != nil {
			return err
		}
	}
	if hasLeaf && !c.Operator.IsValid() {
		return fmt.Errorf("invalid operator %q for claim %q", c.Operator, c.Claim)
	}

	count := 0
	for _, set := range []bool{hasAll, hasAny, hasNot, hasLeaf} {
		if set {
			count++
		}
	}
	switch count {
	case 0:
		return fmt.Errorf("condition is empty; must be one of (all, any, not, leaf)")
	case 1:
		return nil
	default:
		return fmt.Errorf("condition for claim %q mixes node types (all, any, not, leaf); only one is allowed", c.Claim)
	}
}
