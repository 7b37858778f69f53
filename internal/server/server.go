// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer for the local HTTP API. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// The server does not build its dependencies. The composition root
// (cmd/codepocket via the cli package) opens the stores, builds the sync
// engine and the services, and hands them over in Deps. The same services
// also back the CLI commands and the inbox watcher.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/codepocket/internal/auth"
	"github.com/sakif/codepocket/internal/handler"
	"github.com/sakif/codepocket/internal/middleware"
	"github.com/sakif/codepocket/internal/service"
)

// Config holds server configuration.
type Config struct {
	Addr string
	// SecureCookie marks the session cookie Secure. Set it when the API sits
	// behind HTTPS.
	SecureCookie bool
	// ShutdownTimeout bounds how long in-flight requests get on shutdown.
	ShutdownTimeout time.Duration
}

// Deps are the already-built collaborators the routes need.
type Deps struct {
	Snippets *service.SnippetService
	Auth     *service.AuthService
	Tokens   *auth.TokenService
	Accounts handler.AccountSource
	Sync     handler.SyncEngine
}

// Server represents the HTTP server and its router.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
}

// New creates a Server and registers every route.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(deps)
	return s
}

// Handler returns the root handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /auth/token                 → log in with a GitHub token
// POST   /auth/logout                → disconnect from GitHub
// GET    /healthz                    → liveness
//
// Session required (Bearer JWT or token cookie):
// GET    /api/me                     → GitHub profile
// GET    /api/snippets               → list (?q=, ?language=)
// POST   /api/snippets               → create
// GET    /api/snippets/languages     → distinct languages
// POST   /api/snippets/capture       → capture from the extension
// POST   /api/snippets/import        → import a JSON export
// GET    /api/snippets/export        → download a JSON export
// GET    /api/snippets/{id}          → get one
// PUT    /api/snippets/{id}          → edit
// DELETE /api/snippets/{id}          → delete
// GET    /api/sync/status            → session + auto-sync state
// POST   /api/sync/upload            → manual push
// POST   /api/sync/download?mode=    → manual pull (merge|replace)
// PUT    /api/sync/auto              → toggle auto-sync
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: the logger reads it
// 2. RealIP
// 3. Logger
// 4. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	snippetHandler := handler.NewSnippetHandler(deps.Snippets, s.logger)
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Accounts, deps.Tokens, s.config.SecureCookie, s.logger)
	syncHandler := handler.NewSyncHandler(deps.Sync, s.logger)

	s.router.Get(middleware.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.HandleToken)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Tokens))

		r.Get("/me", authHandler.HandleMe)

		r.Route("/snippets", func(r chi.Router) {
			r.Get("/", snippetHandler.HandleList)
			r.Post("/", snippetHandler.HandleCreate)
			// Static segments are registered before {id}; chi prefers them.
			r.Get("/languages", snippetHandler.HandleLanguages)
			r.Post("/capture", snippetHandler.HandleCapture)
			r.Post("/import", snippetHandler.HandleImport)
			r.Get("/export", snippetHandler.HandleExport)
			r.Get("/{id}", snippetHandler.HandleGet)
			r.Put("/{id}", snippetHandler.HandleUpdate)
			r.Delete("/{id}", snippetHandler.HandleDelete)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.HandleStatus)
			r.Post("/upload", syncHandler.HandleUpload)
			r.Post("/download", syncHandler.HandleDownload)
			r.Put("/auto", syncHandler.HandleAutoSync)
		})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new connections
// 2. Wait for in-flight requests to finish (ShutdownTimeout)
//
// The caller owns the stores and the sync engine and closes them after
// Start returns. Signal handling lives with the caller too
// (signal.NotifyContext in the serve command).
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // uploads wait on GitHub
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.config.Addr),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
