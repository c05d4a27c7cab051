package issuers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v80/github"
	"github.com/rs/zerolog/log"

	"github.com/tokex-dev/tokex/internal/api/middleware"
	"github.com/tokex-dev/tokex/internal/audit"
	"github.com/tokex-dev/tokex/internal/config"
	"github.com/tokex-dev/tokex/internal/core"
)

// InstallationIssuer mints installation tokens for the hosting platform:
// it signs a short-lived app assertion, locates the app installation for
// the request's owning account, and exchanges the assertion for a token
// narrowed to exactly the requested repositories and permissions.
//
// It also resolves repository visibility, reusing the same app identity.
type InstallationIssuer struct {
	clientID      string
	privateKey    []byte
	serverBaseURL string
}

var _ core.Issuer = (*InstallationIssuer)(nil)

func NewInstallationIssuer(cfg config.GitHubAppConfig) (*InstallationIssuer, error) {
	keyBytes := []byte(cfg.PrivateKey.Value())
	if cfg.PrivateKeyPath != "" {
		contents, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, core.E(core.KindInternal, "reading github app private key: %v", err)
		}
		keyBytes = contents
	}
	// fail at startup, not on the first exchange call
	if _, err := jwt.ParseRSAPrivateKeyFromPEM(keyBytes); err != nil {
		return nil, core.E(core.KindInternal, "parsing github app private key: %v", err)
	}

	return &InstallationIssuer{
		clientID:      cfg.ClientID,
		privateKey:    keyBytes,
		serverBaseURL: cfg.Server,
	}, nil
}

func (g *InstallationIssuer) Service() core.Service { return core.ServiceGitHub }

func (g *InstallationIssuer) Issue(ctx context.Context, req core.Request) (*core.TokenArtifact, error) {
	ireq, ok := req.(*core.InstallationTokenRequest)
	if !ok {
		return nil, core.E(core.KindInternal, "installation issuer received a %s request", req.Service())
	}
	logger := log.Ctx(ctx)

	client, err := g.appClient(ctx)
	if err != nil {
		return nil, err
	}

	installationID, err := findInstallation(ctx, client, ireq.Owner)
	if err != nil {
		return nil, err
	}

	perms, err := installationPermissions(ireq.Permissions)
	if err != nil {
		return nil, err
	}

	opts := &github.InstallationTokenOptions{
		Repositories: ireq.RepositoryNames(),
		Permissions:  perms,
	}
	token, _, err := client.Apps.CreateInstallationToken(ctx, installationID, opts)
	if err != nil {
		if statusOf(err) == http.StatusUnprocessableEntity || statusOf(err) == http.StatusForbidden {
			// authorized by policy, but the installation's own grant
			// cannot cover the requested scope
			return nil, core.E(core.KindScopeUnavailable,
				"installation for %q cannot grant the requested scope: %v", ireq.Owner, err)
		}
		return nil, core.E(core.KindUpstreamRejected, "creating installation token: %v", err)
	}

	value := token.GetToken()
	logger.Debug().
		Int64("installation_id", installationID).
		Int("repositories", len(opts.Repositories)).
		Time("expires_at", token.GetExpiresAt().Time).
		Msg("installation token issued")

	return &core.TokenArtifact{
		AccessToken: value,
		ExpiresAt:   token.GetExpiresAt().Time,
		Fingerprint: audit.Fingerprint(value),
		Metadata: map[string]any{
			"installation": installationID,
			"repositories": opts.Repositories,
			"permissions":  token.GetPermissions(),
		},
	}, nil
}

// Visibility fetches the visibility of one repository using the app
// identity. Any failure is a hard error: callers cannot tell "not
// visible" apart from "lookup failed", so nothing is guessed.
func (g *InstallationIssuer) Visibility(ctx context.Context, repository string) (string, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok {
		return "", core.E(core.KindInternal, "repository %q is not in the 'owner/name' format", repository)
	}
	client, err := g.appClient(ctx)
	if err != nil {
		return "", err
	}
	repo, _, err := client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", core.E(core.KindProviderUnavailable,
			"fetching visibility of repository %q: %v", repository, err)
	}
	return repo.GetVisibility(), nil
}

// appClient authenticates as the app itself with a freshly signed
// assertion, valid for five minutes with the issue time skewed slightly
// into the past to tolerate clock drift.
func (g *InstallationIssuer) appClient(ctx context.Context) (*github.Client, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(g.privateKey)
	if err != nil {
		return nil, core.E(core.KindInternal, "parsing github app private key: %v", err)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Add(-10 * time.Second).Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"iss": g.clientID,
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return nil, core.E(core.KindInternal, "signing github app assertion: %v", err)
	}

	client := github.NewClient(nil).WithAuthToken(assertion)
	if g.serverBaseURL != "" {
		// uploads are never used, any syntactically valid URL will do
		client, err = client.WithEnterpriseURLs(g.serverBaseURL, g.serverBaseURL)
		if err != nil {
			return nil, core.E(core.KindInternal, "creating enterprise client: %v", err)
		}
	}
	client.UserAgent = audit.UserAgent(middleware.CorrelationCtx(ctx), string(core.ServiceGitHub))
	return client, nil
}

// findInstallation locates the app installation for the owning account,
// checking organizations first and falling back to user accounts.
func findInstallation(ctx context.Context, client *github.Client, owner string) (int64, error) {
	installation, _, err := client.Apps.FindOrganizationInstallation(ctx, owner)
	if err == nil {
		return installation.GetID(), nil
	}
	if statusOf(err) != http.StatusNotFound {
		return 0, core.E(core.KindUpstreamRejected, "looking up installation for %q: %v", owner, err)
	}

	installation, _, err = client.Apps.FindUserInstallation(ctx, owner)
	if err == nil {
		return installation.GetID(), nil
	}
	if statusOf(err) == http.StatusNotFound {
		return 0, core.E(core.KindScopeUnavailable, "the app is not installed for %q", owner)
	}
	return 0, core.E(core.KindUpstreamRejected, "looking up installation for %q: %v", owner, err)
}

// installationPermissions converts parsed (scope, level) pairs into the
// platform client's permissions struct via its own JSON field names.
// A scope with no matching struct field must fail here: plain
// unmarshalling would drop it and the minted token would silently be
// narrower than what the caller asked for and policy approved.
func installationPermissions(perms []core.Permission) (*github.InstallationPermissions, error) {
	byScope := make(map[string]string, len(perms))
	for _, p := range perms {
		byScope[p.Scope] = p.Level
	}
	data, err := json.Marshal(byScope)
	if err != nil {
		return nil, core.E(core.KindInternal, "marshalling permissions: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out github.InstallationPermissions
	if err := dec.Decode(&out); err != nil {
		return nil, core.E(core.KindRequest, "permissions do not map to platform scopes: %v", err)
	}
	return &out, nil
}

func statusOf(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}
