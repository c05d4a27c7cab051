package idp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tokex-dev/tokex/internal/core"
)

const testAudience = "https://exchange.example"

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	raw, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return raw
}

func baseClaims(issuer string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":        issuer,
		"sub":        "repo:acme/app",
		"aud":        testAudience,
		"exp":        time.Now().Add(5 * time.Minute).Unix(),
		"iat":        time.Now().Unix(),
		"repository": "acme/app",
	}
}

func TestVerifier_Verify(t *testing.T) {
	p := newTestProvider(t)
	key := p.addKey(t, "kid1")
	v := NewVerifier(p.resolver(), testAudience)

	raw := signToken(t, key, "kid1", baseClaims(p.issuer()))

	claims, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got := claims.Subject(); got != "repo:acme/app" {
		t.Errorf("Subject() = %q, want %q", got, "repo:acme/app")
	}
	if got := claims.Issuer(); got != p.issuer() {
		t.Errorf("Issuer() = %q, want %q", got, p.issuer())
	}
	// claims are returned unfiltered for policy evaluation
	if _, ok := claims["repository"]; !ok {
		t.Error("claim set is missing the repository claim")
	}
}

func TestVerifier_Verify_Failures(t *testing.T) {
	p := newTestProvider(t)
	key := p.addKey(t, "kid1")
	v := NewVerifier(p.resolver(), testAudience)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	tests := []struct {
		name     string
		token    func(t *testing.T) string
		wantKind core.Kind
	}{
		{
			name:     "Malformed",
			token:    func(t *testing.T) string { return "not-a-token" },
			wantKind: core.KindMalformed,
		},
		{
			name: "Unsigned Algorithm None",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodNone, baseClaims(p.issuer()))
				raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
				if err != nil {
					t.Fatalf("signing token: %v", err)
				}
				return raw
			},
			wantKind: core.KindInvalidSignature,
		},
		{
			name: "Wrong Signing Key",
			token: func(t *testing.T) string {
				return signToken(t, otherKey, "kid1", baseClaims(p.issuer()))
			},
			wantKind: core.KindInvalidSignature,
		},
		{
			name: "Missing Key ID",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims(p.issuer()))
				raw, err := token.SignedString(key)
				if err != nil {
					t.Fatalf("signing token: %v", err)
				}
				return raw
			},
			wantKind: core.KindInvalidSignature,
		},
		{
			name: "Untrusted Issuer",
			token: func(t *testing.T) string {
				claims := baseClaims("https://evil.example")
				return signToken(t, key, "kid1", claims)
			},
			wantKind: core.KindInvalidSignature,
		},
		{
			name: "Unknown Key ID",
			token: func(t *testing.T) string {
				return signToken(t, key, "kid-rotated-away", baseClaims(p.issuer()))
			},
			wantKind: core.KindKeyNotFound,
		},
		{
			name: "Expired",
			token: func(t *testing.T) string {
				claims := baseClaims(p.issuer())
				claims["exp"] = time.Now().Add(-time.Minute).Unix()
				return signToken(t, key, "kid1", claims)
			},
			wantKind: core.KindExpired,
		},
		{
			name: "No Expiry",
			token: func(t *testing.T) string {
				claims := baseClaims(p.issuer())
				delete(claims, "exp")
				return signToken(t, key, "kid1", claims)
			},
			wantKind: core.KindExpired,
		},
		{
			name: "Not Yet Valid",
			token: func(t *testing.T) string {
				claims := baseClaims(p.issuer())
				claims["nbf"] = time.Now().Add(time.Hour).Unix()
				return signToken(t, key, "kid1", claims)
			},
			wantKind: core.KindExpired,
		},
		{
			name: "Audience Mismatch",
			token: func(t *testing.T) string {
				claims := baseClaims(p.issuer())
				claims["aud"] = "https://other-deployment.example"
				return signToken(t, key, "kid1", claims)
			},
			wantKind: core.KindAudienceMismatch,
		},
		{
			name: "Multiple Audiences",
			token: func(t *testing.T) string {
				claims := baseClaims(p.issuer())
				claims["aud"] = []string{testAudience, "https://other.example"}
				return signToken(t, key, "kid1", claims)
			},
			wantKind: core.KindAudienceMismatch,
		},
		{
			name: "Missing Audience",
			token: func(t *testing.T) string {
				claims := baseClaims(p.issuer())
				delete(claims, "aud")
				return signToken(t, key, "kid1", claims)
			},
			wantKind: core.KindAudienceMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token(t))
			if err == nil {
				t.Fatal("Verify() expected error")
			}
			if kind := core.KindOf(err); kind != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v (err: %v)", kind, tt.wantKind, err)
			}
		})
	}
}

func TestVerifier_Verify_ProviderDown(t *testing.T) {
	p := newTestProvider(t)
	key := p.addKey(t, "kid1")
	v := NewVerifier(p.resolver(), testAudience)
	raw := signToken(t, key, "kid1", baseClaims(p.issuer()))

	p.srv.Close()

	_, err := v.Verify(context.Background(), raw)
	if kind := core.KindOf(err); kind != core.KindProviderUnavailable {
		t.Errorf("KindOf() = %v, want %v", kind, core.KindProviderUnavailable)
	}
}
