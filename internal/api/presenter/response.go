package presenter

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tokex-dev/tokex/internal/api/middleware"
	"github.com/tokex-dev/tokex/internal/core"
)

type ErrorResponse struct {
	Error         string    `json:"error"`
	Kind          core.Kind `json:"kind"`
	CorrelationID string    `json:"correlation_id"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

// Err writes an error response, mapping the error's kind to an HTTP
// status. Internal errors are not echoed back to the caller.
func Err(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)

	msg := err.Error()
	if kind == core.KindInternal {
		log.Ctx(r.Context()).Error().Err(err).Msg("internal error")
		msg = "internal server error"
	}

	resp := ErrorResponse{
		Error:         msg,
		Kind:          kind,
		CorrelationID: middleware.CorrelationCtx(r.Context()),
	}
	JSON(w, r, resp, statusOf(kind))
}

func statusOf(kind core.Kind) int {
	switch kind {
	case core.KindMalformed, core.KindRequest:
		return http.StatusBadRequest
	case core.KindInvalidSignature, core.KindExpired, core.KindAudienceMismatch, core.KindKeyNotFound:
		return http.StatusUnauthorized
	case core.KindPolicyDenied:
		return http.StatusForbidden
	case core.KindScopeUnavailable:
		return http.StatusUnprocessableEntity
	case core.KindProviderUnavailable, core.KindUpstreamRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
