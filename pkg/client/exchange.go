package client

import (
	"context"

	"github.com/tokex-dev/tokex/internal/api"
	"github.com/tokex-dev/tokex/internal/core"
)

// ExchangeOptions carries the service-specific part of an exchange
// request. Exactly one of the per-service field groups should be set,
// matching the Service discriminator.
type ExchangeOptions struct {
	// Service selects the downstream service ("oxide" or "github").
	Service string

	// Silo and Duration apply to service "oxide".
	Silo     string
	Duration int64

	// Repositories and Permissions apply to service "github".
	// Permissions use the "scope:level" form, e.g. "contents:read".
	Repositories []string
	Permissions  []string
}

// Exchange presents an identity token to the server and requests a
// downstream access token for it.
func (c *Client) Exchange(
	ctx context.Context,
	identityToken string,
	opts ExchangeOptions,
) (*core.TokenArtifact, string, error) {
	payload := map[string]any{
		"jwt":     identityToken,
		"service": opts.Service,
	}
	switch opts.Service {
	case string(core.ServiceOxide):
		payload["silo"] = opts.Silo
		payload["duration"] = opts.Duration
	case string(core.ServiceGitHub):
		payload["repositories"] = opts.Repositories
		payload["permissions"] = opts.Permissions
	}

	var result core.TokenArtifact
	correlation, err := c.post(ctx, c.url().
		setPath(api.ExchangeRoute).
		build(), payload, &result)
	if err != nil {
		return nil, correlation, err
	}
	return &result, correlation, nil
}
