package core

import "fmt"

// Fact is one atomic unit submitted to the policy evaluator: either a
// whole silo request, or exactly one (repository, permission, visibility)
// triple derived from an installation request. Policies reason about one
// fact at a time instead of enumerating combinations.
type Fact interface {
	// Service is the request kind the fact was derived from, used for
	// type-tag dispatch in rules.
	Service() Service

	// Attributes exposes the fact's fields to conditions and expressions.
	Attributes() map[string]any

	fmt.Stringer
}

// SiloFact is the single fact implied by a SiloTokenRequest.
type SiloFact struct {
	Silo     string
	Duration int64
}

func (SiloFact) Service() Service { return ServiceOxide }

func (f SiloFact) Attributes() map[string]any {
	return map[string]any{
		"silo":     f.Silo,
		"duration": f.Duration,
	}
}

func (f SiloFact) String() string {
	return fmt.Sprintf("silo %s for %ds", f.Silo, f.Duration)
}

// RepositoryFact is one (repository, permission) pair of an installation
// request's cross-product, enriched with the repository's visibility.
type RepositoryFact struct {
	Repository string
	Visibility string
	Permission Permission
}

func (RepositoryFact) Service() Service { return ServiceGitHub }

func (f RepositoryFact) Attributes() map[string]any {
	return map[string]any{
		"repository": f.Repository,
		"visibility": f.Visibility,
		"scope":      f.Permission.Scope,
		"level":      f.Permission.Level,
		"permission": f.Permission.String(),
	}
}

func (f RepositoryFact) String() string {
	return fmt.Sprintf("permission %s on repository %s", f.Permission, f.Repository)
}
