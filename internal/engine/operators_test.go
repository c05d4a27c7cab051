package engine

import (
	"testing"

	"github.com/tokex-dev/tokex/internal/core"
)

func TestEvaluateCondition(t *testing.T) {
	claims := core.ClaimSet{
		"repository": "acme/app",
		"ref":        "refs/heads/main",
		"groups":     []any{"ci", "deploy"},
		"run_id":     float64(42), // JSON numbers decode as float64
	}

	tests := []struct {
		name string
		cond core.Condition
		want bool
	}{
		{
			name: "Equal Match",
			cond: core.Condition{Claim: "repository", Operator: core.OpEqual, Value: "acme/app"},
			want: true,
		},
		{
			name: "Equal Mismatch",
			cond: core.Condition{Claim: "repository", Operator: core.OpEqual, Value: "acme/lib"},
			want: false,
		},
		{
			name: "Equal Across Number Types",
			cond: core.Condition{Claim: "run_id", Operator: core.OpEqual, Value: 42}, // YAML decodes as int
			want: true,
		},
		{
			name: "Contains Substring",
			cond: core.Condition{Claim: "repository", Operator: core.OpContains, Value: "acme/"},
			want: true,
		},
		{
			name: "Contains List Member",
			cond: core.Condition{Claim: "groups", Operator: core.OpContains, Value: "deploy"},
			want: true,
		},
		{
			name: "Contains Missing List Member",
			cond: core.Condition{Claim: "groups", Operator: core.OpContains, Value: "admin"},
			want: false,
		},
		{
			name: "In List",
			cond: core.Condition{Claim: "ref", Operator: core.OpIn, Value: []any{"refs/heads/main", "refs/heads/dev"}},
			want: true,
		},
		{
			name: "Not In List",
			cond: core.Condition{Claim: "ref", Operator: core.OpIn, Value: []any{"refs/heads/dev"}},
			want: false,
		},
		{
			name: "Exists",
			cond: core.Condition{Claim: "ref", Operator: core.OpExists},
			want: true,
		},
		{
			name: "Exists Missing Claim",
			cond: core.Condition{Claim: "environment", Operator: core.OpExists},
			want: false,
		},
		{
			name: "Missing Claim Never Matches",
			cond: core.Condition{Claim: "environment", Operator: core.OpEqual, Value: ""},
			want: false,
		},
		{
			name: "All",
			cond: core.Condition{All: []core.Condition{
				{Claim: "repository", Operator: core.OpEqual, Value: "acme/app"},
				{Claim: "ref", Operator: core.OpEqual, Value: "refs/heads/main"},
			}},
			want: true,
		},
		{
			name: "All With One Failing",
			cond: core.Condition{All: []core.Condition{
				{Claim: "repository", Operator: core.OpEqual, Value: "acme/app"},
				{Claim: "ref", Operator: core.OpEqual, Value: "refs/heads/dev"},
			}},
			want: false,
		},
		{
			name: "Any",
			cond: core.Condition{Any: []core.Condition{
				{Claim: "repository", Operator: core.OpEqual, Value: "acme/lib"},
				{Claim: "repository", Operator: core.OpEqual, Value: "acme/app"},
			}},
			want: true,
		},
		{
			name: "Not",
			cond: core.Condition{Not: &core.Condition{
				Claim: "repository", Operator: core.OpEqual, Value: "acme/lib",
			}},
			want: true,
		},
		{
			name: "Not Matching",
			cond: core.Condition{Not: &core.Condition{
				Claim: "repository", Operator: core.OpEqual, Value: "acme/app",
			}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := evaluateCondition(tt.cond, claims)
			if got != tt.want {
				t.Errorf("evaluateCondition() = %v (%s), want %v", got, reason, tt.want)
			}
		})
	}
}
