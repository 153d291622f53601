package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/shortkit/redirector/internal/geo"
	"github.com/shortkit/redirector/internal/metrics"
	"github.com/shortkit/redirector/internal/service"
)

// Server represents the HTTP server
type Server struct {
	handler *Handler
	server  *http.Server
	port    string
}

// NewServer creates a new HTTP server
func NewServer(redirector service.RedirectService, locator geo.Locator, m *metrics.Metrics, port string, verbose bool) *Server {
	handler := NewHandler(redirector, locator, m)

	mux := http.NewServeMux()

	// Administrative and observability endpoints
	mux.HandleFunc("/urls/", handler.RefreshCache)
	mux.HandleFunc("/metrics/stats", handler.Stats)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", handler.Health)

	// Redirect endpoint (catch-all)
	mux.HandleFunc("/", handler.Redirect)

	// Wrap with middlewares
	var finalHandler http.Handler = mux
	if verbose {
		finalHandler = WithLogging(finalHandler)
	}
	finalHandler = WithRequestID(finalHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		handler: handler,
		server:  server,
		port:    port,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Server starting on port %s", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Server shutting down...")
	return s.server.Shutdown(ctx)
}

// Handler returns the server handler (useful for testing)
func (s *Server) Handler() *Handler {
	return s.handler
}
