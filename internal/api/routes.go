// Package api provides HTTP handlers and routing for the command service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
	limiter  *RateLimiter
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		limiter:  NewRateLimiter(h.config.RateLimitRPS, h.config.RateLimitBurst),
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Command compilation and management
	api.HandleFunc("/servers/{serverId}/commands", s.handlers.CreateCommand).Methods("POST")
	api.HandleFunc("/servers/{serverId}/commands", s.handlers.ListCommands).Methods("GET")
	api.HandleFunc("/servers/{serverId}/commands/{id}", s.handlers.GetCommand).Methods("GET")
	api.HandleFunc("/servers/{serverId}/commands/{id}", s.handlers.UpdateCommand).Methods("PUT")
	api.HandleFunc("/servers/{serverId}/commands/{id}", s.handlers.DeleteCommand).Methods("DELETE")

	// Reload log, consumed by the bot worker
	api.HandleFunc("/servers/{serverId}/reload-events", s.handlers.ReloadEvents).Methods("GET")
	api.HandleFunc("/servers/{serverId}/reload-events/stream", s.handlers.StreamReloadEvents).Methods("GET")

	// Store diagnostics
	api.HandleFunc("/store/info", s.handlers.StoreInfo).Methods("GET")
	api.HandleFunc("/store/selfcheck", s.handlers.StoreSelfCheck).Methods("GET")

	// Apply middleware
	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
	s.router.Use(s.limiter.Handler)
}
