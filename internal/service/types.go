package service

import "github.com/tokex-dev/tokex/internal/core"

// ExchangeRequest is the transport-agnostic form of one exchange call.
type ExchangeRequest struct {
	// Token is the raw identity token presented by the caller.
	Token string

	// Service discriminates the target downstream service.
	Service string

	// Payload holds the service-specific request fields, still untrusted.
	Payload map[string]any
}

// ExchangeResponse is the successful outcome of one exchange call.
type ExchangeResponse struct {
	Artifact *core.TokenArtifact

	// Rule names the policy rule that authorized the request (for silo
	// requests) or the last pair of the cross-product (for installation
	// requests). Informational, used for logging.
	Rule string
}
