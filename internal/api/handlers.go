package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tokex-dev/tokex/internal/api/presenter"
	"github.com/tokex-dev/tokex/internal/buildinfo"
	"github.com/tokex-dev/tokex/internal/core"
	"github.com/tokex-dev/tokex/internal/service"
)

// handleHealth responds with a simple OK status to indicate the server is healthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleAbout responds with service information including version and commit hash.
func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, buildinfo.GetBuildInfo(), http.StatusOK)
}

// DecodePayload decodes the exchange payload into a raw map. The
// identity token and service discriminator are peeled off here; the
// remaining fields stay untyped until the request model validates them
// against the declared service.
func DecodePayload(r *http.Request) (jwt, svc string, payload map[string]any, err error) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return "", "", nil, errors.New("unsupported content type")
		}
	}

	payload = make(map[string]any)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return "", "", nil, errors.New("empty request body")
		}
		return "", "", nil, err
	}
	if dec.More() {
		return "", "", nil, errors.New("extra data in request body")
	}

	jwt, _ = payload["jwt"].(string)
	svc, _ = payload["service"].(string)
	delete(payload, "jwt")
	delete(payload, "service")
	return jwt, svc, payload, nil
}

// handleExchange processes token exchange requests.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	jwt, svc, payload, err := DecodePayload(r)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to decode exchange payload")
		presenter.Err(w, r, core.Wrap(core.KindRequest, err))
		return
	}
	if jwt == "" {
		logger.Warn().Msg("missing identity token in exchange payload")
		presenter.Err(w, r, core.E(core.KindRequest, "missing jwt field"))
		return
	}

	result, err := s.exchange.Exchange(ctx, service.ExchangeRequest{
		Token:   jwt,
		Service: svc,
		Payload: payload,
	})
	if err != nil {
		logger.Warn().Err(err).Str("kind", string(core.KindOf(err))).Msg("exchange failed")
		presenter.Err(w, r, err)
		return
	}

	presenter.JSON(w, r, result.Artifact, http.StatusCreated)
}
