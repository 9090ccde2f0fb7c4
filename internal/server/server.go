// Package server exposes the engine to the external viewer: spectrum
// series for rendering, ranked matches and batch reports. The engine never
// calls back into the viewer; it only serves prepared data.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/batch"
	"github.com/specmatch/specmatch/internal/binning"
	"github.com/specmatch/specmatch/internal/config"
	"github.com/specmatch/specmatch/internal/events"
	"github.com/specmatch/specmatch/internal/library"
	"github.com/specmatch/specmatch/internal/logger"
)

// Server serves the viewer-facing HTTP API
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	index      *library.Index
	comparator *batch.Comparator
	binCfg     binning.Config
	router     *mux.Router
	server     *http.Server
	hub        *events.Hub
	limiter    *clientLimiter
}

// New creates a new API server instance
func New(cfg *config.Config, log *logger.Logger, index *library.Index, comparator *batch.Comparator) (*Server, error) {
	normMode, err := binning.ParseMode(cfg.Binning.Normalization)
	if err != nil {
		return nil, fmt.Errorf("invalid binning config: %w", err)
	}
	binCfg := binning.Config{
		MassMin:       cfg.Binning.MassMin,
		MassMax:       cfg.Binning.MassMax,
		BinWidth:      cfg.Binning.BinWidth,
		Normalization: normMode,
	}
	if err := binCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid binning config: %w", err)
	}

	hub := events.NewHub(log.WithComponent("events").Logger)
	router := mux.NewRouter()

	server := &Server{
		config:     cfg,
		logger:     log.WithComponent("server"),
		index:      index,
		comparator: comparator,
		binCfg:     binCfg,
		router:     router,
		hub:        hub,
		limiter:    newClientLimiter(cfg.Server.RateLimit),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// WebSocket endpoint for viewer progress events
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/spectra", s.handleListSpectra).Methods("GET")
	api.HandleFunc("/spectra/{id}", s.handleGetSpectrum).Methods("GET")
	api.HandleFunc("/spectra/{id}/matches", s.handleMatches).Methods("GET")
	api.HandleFunc("/compare", s.handleCompare).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting API server",
		zap.Int("port", s.config.Server.Port),
		zap.String("library", s.index.Name()),
		zap.Int("spectra", s.index.Len()))

	go s.hub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Hub returns the event hub for broadcasting engine events
func (s *Server) Hub() *events.Hub {
	return s.hub
}
