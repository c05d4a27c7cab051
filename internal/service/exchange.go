// Package service contains the exchange orchestrator: the strictly linear
// verify → parse → decide → issue pipeline behind the exchange endpoint.
package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tokex-dev/tokex/internal/core"
	"github.com/tokex-dev/tokex/internal/issuers"
)

// ExchangeService sequences one exchange call through its stages. Every
// stage failure aborts the call with the originating error kind preserved;
// no stage recovers a lower stage's error and nothing is retried.
type ExchangeService struct {
	verifier   core.Verifier
	policies   core.Evaluator
	issuers    issuers.Registry
	visibility core.VisibilityResolver
	limits     core.Limits
}

func NewExchangeService(
	verifier core.Verifier,
	policies core.Evaluator,
	registry issuers.Registry,
	visibility core.VisibilityResolver,
	limits core.Limits,
) *ExchangeService {
	return &ExchangeService{
		verifier:   verifier,
		policies:   policies,
		issuers:    registry,
		visibility: visibility,
		limits:     limits,
	}
}

// Exchange runs one call end to end. The claim set produced by
// verification lives only for this call and is handed to the policy
// evaluator unfiltered.
func (s *ExchangeService) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	logger := log.Ctx(ctx)

	claims, err := s.verifier.Verify(ctx, req.Token)
	if err != nil {
		// unauthenticated: no policy evaluation happens past this point
		return nil, err
	}
	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("iss", claims.Issuer()).Str("sub", claims.Subject())
	})

	parsed, err := core.ParseRequest(req.Service, req.Payload, s.limits)
	if err != nil {
		return nil, err
	}

	ruleName, err := s.authorize(ctx, claims, parsed)
	if err != nil {
		return nil, err
	}

	issuer, ok := s.issuers.Get(parsed.Service())
	if !ok {
		return nil, core.E(core.KindScopeUnavailable,
			"no credentials are configured for service %q", parsed.Service())
	}
	artifact, err := issuer.Issue(ctx, parsed)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("service", string(parsed.Service())).
		Str("rule", ruleName).
		Str("fingerprint", artifact.Fingerprint).
		Time("expires_at", artifact.ExpiresAt).
		Msg("token exchanged")

	return &ExchangeResponse{Artifact: artifact, Rule: ruleName}, nil
}

// authorize submits every fact the request implies to the policy
// evaluator. A request reaches an issuer only if all of them are allowed.
func (s *ExchangeService) authorize(ctx context.Context, claims core.ClaimSet, req core.Request) (string, error) {
	switch r := req.(type) {
	case *core.SiloTokenRequest:
		fact := core.SiloFact{Silo: r.Silo, Duration: r.Duration}
		rule, ok := s.policies.Evaluate(claims, fact)
		if !ok {
			return "", core.E(core.KindPolicyDenied, "%s does not match the authorization policy", fact)
		}
		return rule.Name, nil

	case *core.InstallationTokenRequest:
		return s.authorizeInstallation(ctx, claims, r)

	default:
		return "", core.E(core.KindInternal, "unhandled request type %T", req)
	}
}

// authorizeInstallation expands the request into its cross-product of
// repositories and permissions and requires every pair to be allowed.
// There is no partial grant: a single denied pair denies the whole
// request, and a failed visibility lookup aborts it outright.
func (s *ExchangeService) authorizeInstallation(
	ctx context.Context,
	claims core.ClaimSet,
	req *core.InstallationTokenRequest,
) (string, error) {
	if s.visibility == nil {
		return "", core.E(core.KindScopeUnavailable,
			"no credentials are configured for service %q", core.ServiceGitHub)
	}
	ruleName := ""
	for _, repository := range req.Repositories {
		vis, err := s.visibility.Visibility(ctx, repository)
		if err != nil {
			return "", err
		}
		for _, permission := range req.Permissions {
			fact := core.RepositoryFact{
				Repository: repository,
				Visibility: vis,
				Permission: permission,
			}
			rule, ok := s.policies.Evaluate(claims, fact)
			if !ok {
				return "", core.E(core.KindPolicyDenied,
					"%s does not match the authorization policy", fact)
			}
			ruleName = rule.Name
		}
	}
	return ruleName, nil
}
