package core

import (
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Service discriminates which downstream service an exchange request
// targets. The set is closed: adding a service means adding a request
// variant, a fact variant and an issuer, checked at compile time through
// exhaustive switches.
type Service string

const (
	ServiceOxide  Service = "oxide"
	ServiceGitHub Service = "github"
)

func (s Service) Valid() bool {
	switch s {
	case ServiceOxide, ServiceGitHub:
		return true
	default:
		return false
	}
}

// Request is a validated, service-tagged exchange request. Construction
// goes through ParseRequest only; invalid input never becomes a Request.
type Request interface {
	Service() Service
}

// Limits are the administrator-configured bounds applied during request
// parsing.
type Limits struct {
	// MaxDuration bounds the requested token lifetime in seconds.
	MaxDuration int64 `yaml:"max_duration"`
}

// SiloTokenRequest asks for an access token scoped to one rack silo.
type SiloTokenRequest struct {
	// Silo is the URL identifying the silo.
	Silo string

	// Duration is the requested token lifetime in seconds.
	Duration int64
}

func (*SiloTokenRequest) Service() Service { return ServiceOxide }

// Permission is one (scope, level) entry of an installation token request,
// parsed from the wire shape "scope:level".
type Permission struct {
	Scope string
	Level string
}

func (p Permission) String() string {
	return p.Scope + ":" + p.Level
}

// InstallationTokenRequest asks for a hosting-platform installation token
// narrowed to a set of repositories and permissions. All repositories
// share a single owning account; Owner holds it.
type InstallationTokenRequest struct {
	Owner        string
	Repositories []string
	Permissions  []Permission
}

func (*InstallationTokenRequest) Service() Service { return ServiceGitHub }

// RepositoryNames returns the repository names with the owner prefix
// stripped, the shape the platform API expects.
func (r *InstallationTokenRequest) RepositoryNames() []string {
	names := make([]string, 0, len(r.Repositories))
	for _, repo := range r.Repositories {
		_, name, _ := strings.Cut(repo, "/")
		names = append(names, name)
	}
	return names
}

type siloPayload struct {
	Silo     string `mapstructure:"silo"`
	Duration int64  `mapstructure:"duration"`
}

type installationPayload struct {
	Repositories []string `mapstructure:"repositories"`
	Permissions  []string `mapstructure:"permissions"`
}

// ParseRequest validates the untrusted service-specific portion of an
// exchange payload and builds the typed Request variant. Validation here
// is purely structural; claims are never consulted. Every failure is a
// client-input error (KindRequest), never an authorization decision.
func ParseRequest(service string, payload map[string]any, limits Limits) (Request, error) {
	switch Service(service) {
	case ServiceOxide:
		var p siloPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		return parseSiloRequest(p, limits)
	case ServiceGitHub:
		var p installationPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		return parseInstallationRequest(p)
	default:
		return nil, E(KindRequest, "unsupported service %q", service)
	}
}

func decodePayload(payload map[string]any, dest any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      dest,
		ErrorUnused: true,
		// JSON decoding hands us float64 for every number
		WeaklyTypedInput: true,
	})
	if err != nil {
		return E(KindInternal, "creating payload decoder: %v", err)
	}
	if err := decoder.Decode(payload); err != nil {
		return E(KindRequest, "invalid request payload: %v", err)
	}
	return nil
}

func parseSiloRequest(p siloPayload, limits Limits) (*SiloTokenRequest, error) {
	if p.Silo == "" {
		return nil, E(KindRequest, "missing required field 'silo'")
	}
	if p.Duration <= 0 {
		return nil, E(KindRequest, "duration must be positive, got %d", p.Duration)
	}
	if limits.MaxDuration > 0 && p.Duration > limits.MaxDuration {
		return nil, E(KindRequest, "duration %d exceeds the configured maximum of %d seconds",
			p.Duration, limits.MaxDuration)
	}
	return &SiloTokenRequest{Silo: p.Silo, Duration: p.Duration}, nil
}

func parseInstallationRequest(p installationPayload) (*InstallationTokenRequest, error) {
	if len(p.Repositories) == 0 {
		return nil, E(KindRequest, "at least one repository is required")
	}
	if len(p.Permissions) == 0 {
		return nil, E(KindRequest, "at least one permission is required")
	}

	// All repositories must belong to a single owning account, since the
	// issued token assumes the role of one app installation.
	owner := ""
	for _, repo := range p.Repositories {
		repoOwner, name, ok := strings.Cut(repo, "/")
		if !ok || repoOwner == "" || name == "" || strings.Contains(name, "/") {
			return nil, E(KindRequest, "repository %q is not in the 'owner/name' format", repo)
		}
		if owner != "" && owner != repoOwner {
			return nil, E(KindRequest, "repositories belong to different owners (%q and %q)", owner, repoOwner)
		}
		owner = repoOwner
	}

	seen := make(map[string]struct{}, len(p.Permissions))
	perms := make([]Permission, 0, len(p.Permissions))
	for _, raw := range p.Permissions {
		scope, level, ok := strings.Cut(raw, ":")
		if !ok || scope == "" {
			return nil, E(KindRequest, "permission %q is not in the 'scope:level' format", raw)
		}
		if level != "read" && level != "write" {
			return nil, E(KindRequest, "permission %q has invalid level %q (want 'read' or 'write')", raw, level)
		}
		if _, dup := seen[scope]; dup {
			return nil, E(KindRequest, "permission scope %q is requested multiple times", scope)
		}
		seen[scope] = struct{}{}
		perms = append(perms, Permission{Scope: scope, Level: level})
	}

	return &InstallationTokenRequest{
		Owner:        owner,
		Repositories: p.Repositories,
		Permissions:  perms,
	}, nil
}
