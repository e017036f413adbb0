// Package api exposes the portfolio over HTTP: snapshot and trade views
// read from the shared state store, a manual refresh trigger, preference
// and address updates, and a change-event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/store"
)

// RefreshTrigger runs a refresh on behalf of an API caller
type RefreshTrigger interface {
	RefreshNow(ctx context.Context) (*service.RefreshResult, error)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	store      store.Store
	refresh    RefreshTrigger
	config     *ServerConfig
	logger     *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, st store.Store, refresh RefreshTrigger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		store:   st,
		refresh: refresh,
		config:  config,
		logger:  logging.GetGlobalLogger().WithField("component", "api_server"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/portfolio", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")
	api.HandleFunc("/preferences", s.handleGetPreferences).Methods("GET")
	api.HandleFunc("/preferences", s.handlePutPreferences).Methods("PUT")
	api.HandleFunc("/address", s.handlePutAddress).Methods("PUT")
	api.HandleFunc("/events", s.handleEvents).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-tracker",
	})
}

// Handler returns the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
