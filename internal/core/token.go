package core

import "time"

// TokenArtifact is the result of a successful token issuance.
type TokenArtifact struct {
	// AccessToken is the actual secret token string. It must never be
	// logged; use Fingerprint for traceability.
	AccessToken string `json:"access_token"`

	// ExpiresAt indicates when this token becomes invalid.
	ExpiresAt time.Time `json:"expires_at"`

	// Fingerprint is a non-reversible identifier of the token for logs.
	Fingerprint string `json:"-"`

	// Metadata contains extra issuer-specific information
	// (e.g. the installation id the token was minted for).
	Metadata map[string]any `json:"-"`
}
