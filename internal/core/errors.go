package core

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of a failed exchange.
// Kinds are part of the API contract: they are surfaced verbatim to the
// caller and are never downgraded to a different kind on the way up.
type Kind string

const (
	// Input errors. Caused by the client, rejected without side effects.

	KindMalformed Kind = "malformed"
	KindRequest   Kind = "invalid_request"

	// Authentication errors. The caller could not be identified;
	// no policy evaluation happens for these.

	KindInvalidSignature Kind = "invalid_signature"
	KindExpired          Kind = "expired"
	KindAudienceMismatch Kind = "audience_mismatch"
	KindKeyNotFound      Kind = "key_not_found"

	// Authorization errors. The caller was identified but not entitled.

	KindPolicyDenied Kind = "policy_denied"

	// Upstream errors. The request may have been legitimate but could not
	// be completed against a downstream or provider service.

	KindProviderUnavailable Kind = "provider_unavailable"
	KindUpstreamRejected    Kind = "upstream_rejected"
	KindScopeUnavailable    Kind = "scope_unavailable"

	KindInternal Kind = "internal"
)

// Error carries a Kind alongside the underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new kinded error from a format string.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error. If err already carries a
// kind, it is preserved: the first classification wins.
func Wrap(kind Kind, err error) *Error {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
