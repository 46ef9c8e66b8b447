// Package web provides the HTTP API for the import service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/RosterImport/internal/config"
	"github.com/JonMunkholm/RosterImport/internal/core"
	mw "github.com/JonMunkholm/RosterImport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the import service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	metrics http.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. metrics may be nil, in which case no metrics
// route is mounted.
func NewServer(service *core.Service, cfg *config.Config, metrics http.Handler) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		metrics: metrics,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, s.metrics)
	}

	general := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
	heavy := newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute)

	s.router.Route("/import", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		if s.cfg.Rate.Enabled {
			r.Use(general.middleware)
		}

		// Light requests share the general request timeout. Uploads and
		// commits are bounded by the parse and commit timeouts instead.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/entities", s.handleListEntities)
			r.Get("/template", s.handleDownloadTemplate)
			r.Get("/status", s.handleImportStatus)

			r.Get("/sessions/{id}", s.handleGetSession)
			r.Put("/sessions/{id}/selection", s.handleUpdateSelection)
			r.Post("/sessions/{id}/autocorrect", s.handleAutoCorrect)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
		})

		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(heavy.middleware)
			}
			r.Post("/sessions", s.handleCreateSession)
			r.Post("/sessions/{id}/commit", s.handleCommit)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses. The API serves
// JSON and workbooks only, so the CSP forbids every resource type.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}
