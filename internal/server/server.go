// Package server exposes the ingestion pipeline over HTTP: the bulk import
// endpoint, job status queries and a health probe.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/propertydigital/pdimport/internal/ingest"
	"github.com/propertydigital/pdimport/internal/resolve"
	"github.com/propertydigital/pdimport/pkg/core"
)

// Server hosts the import API.
type Server struct {
	service  *ingest.Service
	jobs     core.JobStore
	records  core.RecordStore
	resolver *resolve.Resolver
	port     int
	logger   *slog.Logger
}

// Config holds configuration for the import server.
type Config struct {
	Service  *ingest.Service
	Jobs     core.JobStore
	Records  core.RecordStore
	Resolver *resolve.Resolver
	Port     int
	Logger   *slog.Logger
}

// NewServer creates a new import server instance.
func NewServer(cfg Config) *Server {
	return &Server{
		service:  cfg.Service,
		jobs:     cfg.Jobs,
		records:  cfg.Records,
		resolver: cfg.Resolver,
		port:     cfg.Port,
		logger:   cfg.Logger,
	}
}

// Routes builds the HTTP handler. Split from Serve so tests can drive the
// mux directly.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Post("/api/massive-import", s.handleMassiveImport)
	r.Get("/api/jobs", s.handleListJobs)
	r.Get("/api/jobs/{jobID}", s.handleGetJob)
	r.Get("/health", s.handleHealth)

	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting import server", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down import server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
