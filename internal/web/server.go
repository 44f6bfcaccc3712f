// Package web wires the HTTP API on top of the recognition pipeline.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/session"
	"github.com/facegate/facegate/internal/web/middleware"
)

// Server represents the web server.
type Server struct {
	config      *config.Config
	router      *chi.Mux
	httpServer  *http.Server
	coordinator *session.Coordinator
	store       database.Store
	vision      session.FaceSource
	cache       *identity.Cache
}

// NewServer creates a new web server.
func NewServer(cfg *config.Config, port int, host string, coordinator *session.Coordinator, store database.Store, vision session.FaceSource, cache *identity.Cache) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:      cfg,
		router:      r,
		coordinator: coordinator,
		store:       store,
		vision:      vision,
		cache:       cache,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// no write timeout, websocket streams stay open indefinitely
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
