// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Queries is the registry surface the HTTP layer exposes.
type Queries interface {
	Create(ctx context.Context, d models.QueryDraft) (models.Query, error)
	Update(ctx context.Context, id string, d models.QueryDraft) (models.Query, error)
	Archive(ctx context.Context, id string) (models.ArchivedQuery, error)
	Remove(ctx context.Context, id string) error
	RemoveArchived(ctx context.Context, id string) error
	SetPublic(ctx context.Context, id string, public bool) (models.ArchivedQuery, error)

	LookupActive(id string) (models.Query, bool)
	LookupArchived(id string) (models.ArchivedQuery, bool)
	ListActive() []models.Query
	ListArchived() []models.ArchivedQuery
	ListPublicArchived() []models.ArchivedQuery

	TopPosts(ctx context.Context, queryID string, limit int) ([]models.ScoredPost, error)
	TopPostsActive(ctx context.Context, id string, limit int) ([]models.ScoredPost, error)
	TopPostsArchived(ctx context.Context, id string, limit int) ([]models.ScoredPost, error)
	TopPostsAllActive(ctx context.Context, limit int) ([]models.ScoredPost, error)
	TopPostsAllArchived(ctx context.Context, limit int) ([]models.ScoredPost, error)
	TopPostsAllPublic(ctx context.Context, limit int) ([]models.ScoredPost, error)
}

// Pinger backs the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AppName      string
	AppVersion   string
}

type Server struct {
	config  *Config
	queries Queries
	ready   Pinger
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
	router  chi.Router
	http    *http.Server
}

func New(config *Config, queries Queries, ready Pinger, log logger.Logger) *Server {
	log = log.WithFields(map[string]interface{}{"component": "http"})
	s := &Server{
		config:  config,
		queries: queries,
		ready:   ready,
		errors:  apperrors.NewErrorHandler(log),
		logger:  log,
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         config.Address,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleStatus)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/query", func(r chi.Router) {
		r.Post("/new", s.handleCreate)

		r.Route("/archive/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetArchived)
			r.Post("/remove", s.handleRemoveArchived)
			r.Post("/public", s.handleSetPublic)
			r.Get("/tweets", s.handleArchivedPosts)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetActive)
			r.Post("/update", s.handleUpdate)
			r.Post("/remove", s.handleRemove)
			r.Post("/archive", s.handleArchive)
			r.Get("/tweets", s.handleActivePosts)
		})
	})

	r.Get("/posts/by-query/{id}", s.handleQueryPosts)

	r.Route("/queries", func(r chi.Router) {
		r.Get("/active/list", s.handleListActive)
		r.Get("/archive/list", s.handleListArchived)
		r.Get("/archive/public/list", s.handleListPublic)
		r.Get("/active/list/tweets", s.handleAllActivePosts)
		r.Get("/archive/list/tweets", s.handleAllArchivedPosts)
		r.Get("/archive/public/list/tweets", s.handleAllPublicPosts)
	})

	s.router = r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.config.Address})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		})
	})
}
