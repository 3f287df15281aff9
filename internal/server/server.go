package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/hazem-soussi-HA/hazoom/internal/backend"
	"github.com/hazem-soussi-HA/hazoom/internal/config"
	"github.com/hazem-soussi-HA/hazoom/internal/hub"
	"github.com/hazem-soussi-HA/hazoom/internal/memory"
	"github.com/hazem-soussi-HA/hazoom/internal/ratelimit"
)

// Deps are the services the HTTP API is built on.
type Deps struct {
	Config   *config.Config
	Backends *backend.Manager
	Store    *memory.Store
	Index    *memory.Index
	System   backend.SystemSource
}

// Server is the HAZoom HTTP API server.
type Server struct {
	cfg  *config.Config
	deps Deps
	hub  *hub.Hub
	http *http.Server
}

// New creates a new Server.
func New(deps Deps) *Server {
	cfg := deps.Config
	s := &Server{
		cfg:  cfg,
		deps: deps,
		hub:  hub.New(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.http = &http.Server{
		Addr: cfg.Addr(),
		Handler: chain(mux,
			withRecovery,
			withLogging,
			withSecurityHeaders,
			withCORS(cfg.AllowedOrigins),
			withBasePath(cfg.BasePath),
			withTrailingSlash,
			withRateLimit(ratelimit.NewKeyed(cfg.RateLimit.RequestsPerMinute)),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Hub returns the websocket hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Start starts the server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	log.Printf("HAZoom server listening on %s", s.http.Addr)
	log.Printf("Database: %s", s.cfg.DatabasePath)
	log.Printf("Ollama: %s", s.cfg.OllamaURL)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
