// Package server provides the HTTP API for the recommender.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/config"
	"github.com/hyperjump/shelf/internal/metrics"
	"github.com/hyperjump/shelf/internal/recommender"
)

// Inbox is the record inbox as seen by the API.
type Inbox interface {
	Directories() []string
}

// Server is the HTTP server for the recommender API.
type Server struct {
	recommender *recommender.Recommender
	inbox       Inbox
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	config      *config.ServerConfig
	logger      *zap.Logger
	server      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithInbox exposes the watched inbox directories.
func WithInbox(in Inbox) Option {
	return func(s *Server) { s.inbox = in }
}

// WithMetrics records HTTP metrics and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(rec *recommender.Recommender, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		recommender: rec,
		config:      cfg,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(s.metrics.Middleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/recommend", s.handleRecommend)
		r.Post("/search", s.handleSearchBooks)
		r.Post("/books/{id}/similar", s.handleSimilar)
		r.Post("/authors/{author}/books", s.handleAuthor)
		r.Post("/series/{series}/books", s.handleSeries)
		r.Get("/titles", s.handleFindByTitle)

		r.Post("/records", s.handleAddRecords)
		r.Get("/records/{id}", s.handleGetRecord)
		r.Put("/records/{id}", s.handleUpdateRecord)
		r.Delete("/records/{id}", s.handleRemoveRecord)

		r.Post("/index/save", s.handleSaveIndex)
		r.Post("/index/load", s.handleLoadIndex)
		r.Post("/index/rebuild", s.handleRebuildIndex)
		r.Put("/index/cache", s.handleResizeCache)

		r.Get("/stats/genres", s.handlePopularGenres)
		r.Get("/stats/authors", s.handlePopularAuthors)
		r.Get("/stats/top-rated", s.handleTopRated)
		r.Get("/status", s.handleStatus)
		r.Get("/inbox", s.handleInbox)
	})
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
