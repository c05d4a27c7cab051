// Package idp verifies identity tokens from trusted OpenID-Connect
// providers. It owns the only mutable state on the verification path: the
// per-provider key-set cache.
package idp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/tokex-dev/tokex/internal/config"
	"github.com/tokex-dev/tokex/internal/core"
)

// ErrUntrustedIssuer is returned when a token names an issuer that is not
// configured as a trusted provider.
var ErrUntrustedIssuer = errors.New("issuer is not a trusted provider")

// DefaultStaleAfter is the staleness window after which a cached key set
// is refreshed on the next lookup. There is no background refresh: a
// provider that never rotates keys and is never asked for an unknown kid
// is fetched at most once per window, and only when actually used.
const DefaultStaleAfter = 15 * time.Minute

// KeyResolver resolves (issuer, kid) to a verification key. Key sets are
// fetched lazily via the provider's discovery metadata, cached per
// provider, and replaced wholesale on refresh. A kid miss triggers exactly
// one refresh and one retry; concurrent refreshes for the same provider
// are coalesced.
type KeyResolver struct {
	client     *http.Client
	staleAfter time.Duration
	group      singleflight.Group

	// fixed at construction, values carry their own locks
	providers map[string]*providerKeys
}

type providerKeys struct {
	name      string
	issuerURL string

	mu        sync.RWMutex
	keys      jwk.Set
	fetchedAt time.Time
}

type ResolverOption func(*KeyResolver)

// WithHTTPClient sets the client used for discovery and key-set fetches.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *KeyResolver) { r.client = c }
}

// WithStaleAfter overrides the key-set staleness window.
func WithStaleAfter(d time.Duration) ResolverOption {
	return func(r *KeyResolver) { r.staleAfter = d }
}

// NewKeyResolver creates a resolver for the configured trusted providers.
// The cache starts empty; nothing is fetched until the first lookup.
func NewKeyResolver(providers []config.ProviderConfig, opts ...ResolverOption) *KeyResolver {
	r := &KeyResolver{
		client:     http.DefaultClient,
		staleAfter: DefaultStaleAfter,
		providers:  make(map[string]*providerKeys, len(providers)),
	}
	for _, p := range providers {
		r.providers[p.IssuerURL] = &providerKeys{
			name:      p.Name,
			issuerURL: p.IssuerURL,
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the raw verification key for (issuer, kid).
// Failure modes are distinct: ErrUntrustedIssuer for unknown issuers,
// KindKeyNotFound when the provider's current key set has no such kid, and
// KindProviderUnavailable when the key set could not be fetched at all.
func (r *KeyResolver) Resolve(ctx context.Context, issuer, kid string) (any, error) {
	p, ok := r.providers[issuer]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUntrustedIssuer, issuer)
	}

	p.mu.RLock()
	keys, fetchedAt := p.keys, p.fetchedAt
	p.mu.RUnlock()

	if keys != nil && time.Since(fetchedAt) < r.staleAfter {
		if raw, err := exportKey(keys, kid); err == nil {
			return raw, nil
		}
		// kid miss on a fresh set: the provider may have rotated since the
		// fetch, refresh once and retry below
	}

	keys, err := r.refresh(ctx, p)
	if err != nil {
		return nil, err
	}
	raw, err := exportKey(keys, kid)
	if err != nil {
		return nil, core.E(core.KindKeyNotFound, "key %q not found in key set of %s", kid, issuer)
	}
	return raw, nil
}

// refresh fetches the provider's key set, coalescing concurrent callers
// onto a single upstream fetch. The fetch itself is detached from the
// caller's context so an abandoned call does not kill a shared in-flight
// refresh.
func (r *KeyResolver) refresh(ctx context.Context, p *providerKeys) (jwk.Set, error) {
	ch := r.group.DoChan(p.issuerURL, func() (any, error) {
		keys, err := r.fetch(context.WithoutCancel(ctx), p)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.keys = keys
		p.fetchedAt = time.Now()
		p.mu.Unlock()
		return keys, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(jwk.Set), nil
	}
}

func (r *KeyResolver) fetch(ctx context.Context, p *providerKeys) (jwk.Set, error) {
	ctx = oidc.ClientContext(ctx, r.client)

	provider, err := oidc.NewProvider(ctx, p.issuerURL)
	if err != nil {
		return nil, core.E(core.KindProviderUnavailable,
			"fetching discovery metadata for provider %q: %v", p.name, err)
	}

	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil || meta.JWKSURI == "" {
		return nil, core.E(core.KindProviderUnavailable,
			"discovery metadata for provider %q has no usable jwks_uri", p.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.JWKSURI, nil)
	if err != nil {
		return nil, core.E(core.KindProviderUnavailable,
			"building key set request for provider %q: %v", p.name, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, core.E(core.KindProviderUnavailable,
			"fetching key set for provider %q: %v", p.name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, core.E(core.KindProviderUnavailable,
			"key set endpoint of provider %q returned status %d", p.name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.E(core.KindProviderUnavailable,
			"reading key set of provider %q: %v", p.name, err)
	}
	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, core.E(core.KindProviderUnavailable,
			"parsing key set of provider %q: %v", p.name, err)
	}
	return keys, nil
}

func exportKey(keys jwk.Set, kid string) (any, error) {
	key, found := keys.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("kid %q not in set", kid)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("exporting key %q: %w", kid, err)
	}
	return raw, nil
}
