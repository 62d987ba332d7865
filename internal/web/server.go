// Package web exposes the registry and resolver over HTTP for the
// labeling UI and the enrichment pipeline.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-tracker/internal/config"
	"github.com/kozaktomas/face-tracker/internal/registry"
	"github.com/kozaktomas/face-tracker/internal/resolver"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	store      registry.Store
	resolver   *resolver.Resolver
}

// NewServer creates a new web server over the given registry store.
func NewServer(cfg *config.Config, store registry.Store) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		router: r,
		store:  store,
		resolver: resolver.New(store, resolver.Config{
			Dim:            cfg.Embedding.Dim,
			Eps:            cfg.Cluster.Eps,
			MinSamples:     cfg.Cluster.MinSamples,
			MatchThreshold: cfg.Registry.MatchThreshold,
			DedupeIoU:      cfg.Cluster.DedupeIoU,
		}),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(time.Minute))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
