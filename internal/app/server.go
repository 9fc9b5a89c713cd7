package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markdave123-py/iatidocs/internal/api/handlers"
	"github.com/markdave123-py/iatidocs/internal/core/ingestion_engine"
	"github.com/markdave123-py/iatidocs/internal/metrics"
)

// Server exposes run progress, health and metrics while a run executes.
type Server struct {
	httpServer *http.Server
}

// NewRouter builds and wires all routes.
func NewRouter(ing ingestion_engine.Ingestor) http.Handler {
	docHandler := handlers.NewDocumentHandler(ing)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", handlers.Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/progress", docHandler.GetProgress)
		api.Get("/documents", docHandler.GetDocuments)
	})

	return r
}

func NewServer(port string, ing ingestion_engine.Ingestor) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + port,
		Handler:           NewRouter(ing),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
