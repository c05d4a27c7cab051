package api

import (
	"net/http"

	"github.com/tokex-dev/tokex/internal/api/middleware"
	"github.com/tokex-dev/tokex/internal/service"
)

type Server struct {
	exchange *service.ExchangeService
}

func NewServer(exchange *service.ExchangeService) *Server {
	return &Server{exchange: exchange}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)

	// exchange route
	mux.HandleFunc("POST "+ExchangeRoute, s.handleExchange)

	return middleware.Recover(
		middleware.CorrelationID(
			middleware.Logging(
				mux)))
}
