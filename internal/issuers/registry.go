// Package issuers holds the per-service token issuers. The service set is
// closed: adding one is a compile-time change here and in the request
// model, not a runtime plugin discovery.
package issuers

import (
	"net/http"

	"github.com/tokex-dev/tokex/internal/config"
	"github.com/tokex-dev/tokex/internal/core"
)

// Registry maps the service tag to its issuer. A service without
// configured credentials is simply absent.
type Registry map[core.Service]core.Issuer

// Get returns the issuer for a service.
func (r Registry) Get(service core.Service) (core.Issuer, bool) {
	iss, ok := r[service]
	return iss, ok
}

// Build constructs the issuers for every configured service. The
// installation issuer is returned separately as well, because it doubles
// as the repository-visibility source.
func Build(cfg config.ServicesConfig, httpClient *http.Client) (Registry, *InstallationIssuer, error) {
	registry := make(Registry)

	if len(cfg.Oxide) > 0 {
		registry[core.ServiceOxide] = NewSiloIssuer(cfg.Oxide, httpClient)
	}

	var installation *InstallationIssuer
	if cfg.GitHub != nil {
		iss, err := NewInstallationIssuer(*cfg.GitHub)
		if err != nil {
			return nil, nil, err
		}
		registry[core.ServiceGitHub] = iss
		installation = iss
	}

	return registry, installation, nil
}
