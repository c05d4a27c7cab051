package core

import "context"

// Verifier validates a presented identity token and extracts its claims.
// Implementations must check, in order: structure, signature, expiry, and
// audience, each failing with its own error kind.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (ClaimSet, error)
}

// Evaluator is the policy decision procedure. It must be a pure function
// of its two inputs and default-deny: no matching rule means (nil, false).
// Any rule language or hand-written predicate satisfying this contract can
// replace the built-in engine.
type Evaluator interface {
	Evaluate(claims ClaimSet, fact Fact) (*Rule, bool)
}

// Issuer mints the actual access token for one service, consuming a
// Request that has already passed policy evaluation for every fact it
// implies. Issuers must never broaden scope beyond the request.
type Issuer interface {
	// Service returns the request kind this issuer serves.
	Service() Service

	// Issue mints a token for an authorized request.
	Issue(ctx context.Context, req Request) (*TokenArtifact, error)
}

// VisibilityResolver resolves a repository identifier to its visibility
// (public, internal or private), a fact consumed by policy evaluation.
type VisibilityResolver interface {
	Visibility(ctx context.Context, repository string) (string, error)
}
