package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/engine"
	"codeberg.org/d-buckner/notifyicon/internal/notify"
	"codeberg.org/d-buckner/notifyicon/internal/render"
	"codeberg.org/d-buckner/notifyicon/internal/resolver"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
	"codeberg.org/d-buckner/notifyicon/internal/rulesync"
	"codeberg.org/d-buckner/notifyicon/internal/store"
	"codeberg.org/d-buckner/notifyicon/internal/system"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RuleEngine is the part of the engine the API drives.
type RuleEngine interface {
	Resolve(in resolver.Input) resolver.Decision
	Rules() *rules.RuleSet
	Submit(ev engine.Event) error
	SyncNow(ctx context.Context) (rulesync.Result, error)
	Status() engine.Status
}

var _ RuleEngine = (*engine.Engine)(nil)

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	engine    RuleEngine
	blobs     store.BlobStore
	history   store.SyncHistory
	hub       *notify.Hub
	views     *render.Registry
	refresher *render.Refresher
	monitor   *system.Monitor
	port      int
	http      *http.Server
	logger    *slog.Logger
}

// ServerConfig holds the server's collaborators
type ServerConfig struct {
	Engine    RuleEngine
	Blobs     store.BlobStore
	History   store.SyncHistory // optional
	Hub       *notify.Hub
	Views     *render.Registry
	Refresher *render.Refresher // optional; view updates trigger a refresh when set
	Monitor   *system.Monitor   // optional
	Port      int
	// AllowedOrigins for CORS; defaults to local development origins
	AllowedOrigins []string
}

// NewServer creates a new HTTP server
func NewServer(cfg ServerConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		engine:    cfg.Engine,
		blobs:     cfg.Blobs,
		history:   cfg.History,
		hub:       cfg.Hub,
		views:     cfg.Views,
		refresher: cfg.Refresher,
		monitor:   cfg.Monitor,
		port:      cfg.Port,
		logger:    logger,
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	s.setupMiddleware(origins)
	s.setupRoutes()
	return s
}

// Router exposes the handler, for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// requestLogger logs each request through slog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting HTTP server", "addr", addr)

	s.http = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
