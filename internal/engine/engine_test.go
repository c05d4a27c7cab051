package engine

import (
	"testing"

	"github.com/expr-lang/expr/vm"

	"github.com/tokex-dev/tokex/internal/core"
)

func compile(t *testing.T, code string) *vm.Program {
	t.Helper()
	p, err := CompileWhere(code)
	if err != nil {
		t.Fatalf("CompileWhere(%q) error = %v", code, err)
	}
	return p
}

func TestEngine_Evaluate_Silo(t *testing.T) {
	where := "fact.silo == 'https://silo.example' && fact.duration <= 3600"
	rules := []core.Rule{
		{
			Name: "ci-to-silo",
			Match: core.Match{
				Service:       core.ServiceOxide,
				Issuer:        "https://issuer.example",
				Claims:        &core.Condition{Claim: "repository", Operator: core.OpEqual, Value: "acme/app"},
				Where:         where,
				CompiledWhere: compile(t, where),
			},
		},
	}
	eng := New(rules)

	claims := core.ClaimSet{
		"iss":        "https://issuer.example",
		"sub":        "repo:acme/app",
		"repository": "acme/app",
	}

	tests := []struct {
		name   string
		claims core.ClaimSet
		fact   core.Fact
		want   bool
	}{
		{
			name:   "Allowed Within Duration Bound",
			claims: claims,
			fact:   core.SiloFact{Silo: "https://silo.example", Duration: 3600},
			want:   true,
		},
		{
			name:   "Denied Above Duration Bound",
			claims: claims,
			fact:   core.SiloFact{Silo: "https://silo.example", Duration: 7200},
			want:   false,
		},
		{
			name:   "Denied Different Silo",
			claims: claims,
			fact:   core.SiloFact{Silo: "https://other.example", Duration: 60},
			want:   false,
		},
		{
			name: "Denied Wrong Issuer",
			claims: core.ClaimSet{
				"iss":        "https://evil.example",
				"repository": "acme/app",
			},
			fact: core.SiloFact{Silo: "https://silo.example", Duration: 60},
			want: false,
		},
		{
			name: "Denied Wrong Repository Claim",
			claims: core.ClaimSet{
				"iss":        "https://issuer.example",
				"repository": "acme/other",
			},
			fact: core.SiloFact{Silo: "https://silo.example", Duration: 60},
			want: false,
		},
		{
			name:   "Denied Wrong Service",
			claims: claims,
			fact:   core.RepositoryFact{Repository: "acme/app", Permission: core.Permission{Scope: "contents", Level: "read"}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := eng.Evaluate(tt.claims, tt.fact)
			if ok != tt.want {
				t.Errorf("Evaluate() = %v, want %v", ok, tt.want)
			}
			if ok && rule.Name != "ci-to-silo" {
				t.Errorf("Evaluate() matched rule %q", rule.Name)
			}
		})
	}
}

func TestEngine_Evaluate_RepositoryFacts(t *testing.T) {
	where := "fact.repository == 'acme/app' && fact.level == 'read'"
	rules := []core.Rule{
		{
			Name: "read-app",
			Match: core.Match{
				Service:       core.ServiceGitHub,
				Claims:        &core.Condition{Claim: "repository", Operator: core.OpEqual, Value: "acme/app"},
				Where:         where,
				CompiledWhere: compile(t, where),
			},
		},
	}
	eng := New(rules)

	claims := core.ClaimSet{"iss": "https://issuer.example", "repository": "acme/app"}
	read := core.Permission{Scope: "contents", Level: "read"}

	// every pair of the cross-product is decided independently; a pair
	// outside the rule stays denied even if its sibling is allowed
	if _, ok := eng.Evaluate(claims, core.RepositoryFact{Repository: "acme/app", Permission: read}); !ok {
		t.Error("expected acme/app contents:read to be allowed")
	}
	if _, ok := eng.Evaluate(claims, core.RepositoryFact{Repository: "acme/lib", Permission: read}); ok {
		t.Error("expected acme/lib contents:read to be denied")
	}
	write := core.Permission{Scope: "contents", Level: "write"}
	if _, ok := eng.Evaluate(claims, core.RepositoryFact{Repository: "acme/app", Permission: write}); ok {
		t.Error("expected acme/app contents:write to be denied")
	}
}

func TestEngine_Evaluate_DefaultDeny(t *testing.T) {
	eng := New(nil)
	claims := core.ClaimSet{"iss": "https://issuer.example", "repository": "acme/app"}

	if _, ok := eng.Evaluate(claims, core.SiloFact{Silo: "https://silo.example", Duration: 60}); ok {
		t.Error("empty rule set must deny everything")
	}
}

func TestEngine_Evaluate_FirstMatchWins(t *testing.T) {
	rules := []core.Rule{
		{
			Name:  "first",
			Match: core.Match{Service: core.ServiceOxide, AllowEmptyClaims: true},
		},
		{
			Name:  "second",
			Match: core.Match{Service: core.ServiceOxide, AllowEmptyClaims: true},
		},
	}
	eng := New(rules)

	rule, ok := eng.Evaluate(core.ClaimSet{"iss": "x"}, core.SiloFact{Silo: "s", Duration: 1})
	if !ok || rule.Name != "first" {
		t.Errorf("Evaluate() = %v, %v; want first rule", rule, ok)
	}
}

func TestEngine_Evaluate_ConcatHelper(t *testing.T) {
	// the identity provider puts "repo:<name>" in sub; the rule rebuilds
	// it from the fact with the concat helper
	where := `claims.sub == concat("repo:", fact.repository)`
	rules := []core.Rule{
		{
			Name: "sub-binding",
			Match: core.Match{
				Service:          core.ServiceGitHub,
				AllowEmptyClaims: true,
				Where:            where,
				CompiledWhere:    compile(t, where),
			},
		},
	}
	eng := New(rules)

	claims := core.ClaimSet{"iss": "https://issuer.example", "sub": "repo:acme/app"}
	perm := core.Permission{Scope: "contents", Level: "read"}

	if _, ok := eng.Evaluate(claims, core.RepositoryFact{Repository: "acme/app", Permission: perm}); !ok {
		t.Error("expected matching sub binding to be allowed")
	}
	if _, ok := eng.Evaluate(claims, core.RepositoryFact{Repository: "acme/lib", Permission: perm}); ok {
		t.Error("expected mismatching sub binding to be denied")
	}
}

func TestEngine_Evaluate_ErroringExpressionDenies(t *testing.T) {
	// claims.missing.deep errors at runtime against this claim set
	where := `claims.missing.deep == "x"`
	rules := []core.Rule{
		{
			Name: "broken",
			Match: core.Match{
				Service:          core.ServiceOxide,
				AllowEmptyClaims: true,
				Where:            where,
				CompiledWhere:    compile(t, where),
			},
		},
	}
	eng := New(rules)

	if _, ok := eng.Evaluate(core.ClaimSet{"iss": "x"}, core.SiloFact{Silo: "s", Duration: 1}); ok {
		t.Error("erroring expression must never grant access")
	}
}

func TestPolicyManager_Update(t *testing.T) {
	mgr := NewManager(nil)
	claims := core.ClaimSet{"iss": "https://issuer.example"}
	fact := core.SiloFact{Silo: "https://silo.example", Duration: 60}

	if _, ok := mgr.Evaluate(claims, fact); ok {
		t.Fatal("expected deny before rules are loaded")
	}

	mgr.Update([]core.Rule{
		{Name: "allow-all-silo", Match: core.Match{Service: core.ServiceOxide, AllowEmptyClaims: true}},
	})

	rule, ok := mgr.Evaluate(claims, fact)
	if !ok || rule.Name != "allow-all-silo" {
		t.Errorf("Evaluate() after Update = %v, %v", rule, ok)
	}
}
