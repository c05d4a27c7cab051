// Package audit provides the pieces an external audit trail needs:
// token fingerprints for logs (tokens themselves are never logged) and a
// User-Agent that lets downstream services correlate our outbound calls.
package audit

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/tokex-dev/tokex/internal/buildinfo"
)

// Fingerprint returns a non-reversible identifier for a token value.
func Fingerprint(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// UserAgent tags an outbound call with the broker version, the exchange
// call's correlation id and the target service.
func UserAgent(correlationID string, service string) string {
	return fmt.Sprintf("tokex/%s (correlation_id=%s; service=%s)",
		buildinfo.Version, correlationID, service)
}
