package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/cmdbox/internal/engine"
	"github.com/michaelbrown/cmdbox/internal/metrics"
	"github.com/michaelbrown/cmdbox/internal/storage"
)

// Server is the HTTP server for the cmdbox API and web UI.
type Server struct {
	engine   *engine.Engine
	store    storage.Store // nil when history is disabled
	metrics  *metrics.Collector
	logger   *slog.Logger
	sessions *SessionManager
	router   chi.Router
	http     *http.Server
}

// New creates a new Server. store and collector may be nil.
func New(eng *engine.Engine, store storage.Store, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		engine:   eng,
		store:    store,
		metrics:  collector,
		logger:   logger,
		sessions: NewSessionManager(collector),
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.countRequests)

	r.Get("/healthz", handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		// Execution
		r.Post("/exec", s.handleExec)
		r.Post("/cd", s.handleChangeDir)
		r.Get("/cwd", s.handleCwd)
		r.Post("/sandbox/reset", s.handleSandboxReset)

		// Tutorial
		r.Get("/tutorial", s.handleTutorialStatus)
		r.Post("/tutorial/start", s.handleTutorialStart)
		r.Post("/tutorial/submit", s.handleTutorialSubmit)
		r.Post("/tutorial/reset", s.handleTutorialReset)

		// History
		r.Get("/history", s.handleListHistory)
		r.Get("/history/{id}", s.handleGetHistory)
		r.Delete("/history", s.handleClearHistory)

		// WebSocket (no JSON content-type)
		r.Get("/terminal", s.handleTerminal)
	})

	// SPA fallback
	r.Handle("/*", spaHandler())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// countRequests records every response by route pattern and status.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status)
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("cmdbox server starting", "url", "http://localhost"+addr, "root", s.engine.Workspace().Root())
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.sessions.CloseAll()

	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
