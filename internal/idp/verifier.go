package idp

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tokex-dev/tokex/internal/core"
)

// supportedAlgs are the signing algorithms accepted for identity tokens.
// Symmetric algorithms are excluded: provider keys come from a public key
// set, and accepting HMAC would let a public key double as a shared secret.
var supportedAlgs = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// Verifier validates identity tokens: structure, signature (via the key
// resolver), expiry and audience, in that order, each with its own error
// kind. The audience is checked here, centrally and unconditionally, so
// policy rules never need to re-check which deployment a token was meant
// for. No other claim is interpreted; the full claim set is returned for
// policy evaluation.
type Verifier struct {
	resolver *KeyResolver
	audience string
	now      func() time.Time
}

var _ core.Verifier = (*Verifier)(nil)

func NewVerifier(resolver *KeyResolver, audience string) *Verifier {
	return &Verifier{
		resolver: resolver,
		audience: audience,
		now:      time.Now,
	}
}

func (v *Verifier) Verify(ctx context.Context, rawToken string) (core.ClaimSet, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithoutClaimsValidation(), // expiry and audience are checked below, in spec order
		jwt.WithValidMethods(supportedAlgs),
	)

	_, err := parser.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, core.E(core.KindInvalidSignature, "token header has no key id")
		}
		iss, _ := claims["iss"].(string)
		if iss == "" {
			return nil, core.E(core.KindInvalidSignature, "token has no issuer claim")
		}
		key, err := v.resolver.Resolve(ctx, iss, kid)
		if errors.Is(err, ErrUntrustedIssuer) {
			return nil, core.Wrap(core.KindInvalidSignature, err)
		}
		return key, err
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	nowTime := v.now()
	exp, _ := claims.GetExpirationTime()
	if exp == nil {
		return nil, core.E(core.KindExpired, "token has no expiry")
	}
	if !nowTime.Before(exp.Time) {
		return nil, core.E(core.KindExpired, "token expired at %s", exp.Time.UTC().Format(time.RFC3339))
	}
	if nbf, _ := claims.GetNotBefore(); nbf != nil && nowTime.Before(nbf.Time) {
		return nil, core.E(core.KindExpired, "token not valid before %s", nbf.Time.UTC().Format(time.RFC3339))
	}

	// The audience must contain exactly the configured value; a token with
	// additional audiences was not minted for this deployment alone.
	aud, _ := claims.GetAudience()
	if len(aud) != 1 || aud[0] != v.audience {
		return nil, core.E(core.KindAudienceMismatch, "token audience does not match this deployment")
	}

	return core.ClaimSet(claims), nil
}

// classifyParseError maps golang-jwt errors onto the error taxonomy.
// Kinds attached by the key resolver pass through unchanged.
func classifyParseError(err error) error {
	var kerr *core.Error
	if errors.As(err, &kerr) {
		return kerr
	}
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return core.Wrap(core.KindMalformed, err)
	}
	return core.Wrap(core.KindInvalidSignature, err)
}
