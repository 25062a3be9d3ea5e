package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/resumly/resumly/internal/autosave"
	"github.com/resumly/resumly/internal/handler"
	"github.com/resumly/resumly/internal/openapi"
	"github.com/resumly/resumly/internal/server/middleware"
	"github.com/resumly/resumly/internal/service"
	"github.com/resumly/resumly/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       int    // requests per minute per IP, 0 disables
	APIKeyHeader    string // header carrying the key, default X-API-Key

	// TLS termination; both must be set to enable.
	TLSCertFile string
	TLSKeyFile  string

	// Auto-save tuning for editing sessions; zero values take the
	// coordinator defaults.
	AutosaveDebounce  time.Duration
	AutosaveSavedHold time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		RateLimit:       300,
	}
}

// Server is the top-level HTTP server for Resumly. It owns the chi router,
// the record store, and the auth, key, and rotation services.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	auth       *service.Auth
	keys       *service.Keys
	rotator    *service.Rotator
	sessions   *handler.EditSessions
	httpServer *http.Server
	logger     *slog.Logger
}

// New wires routes and middleware and returns a server ready to listen.
func New(cfg Config, st *store.Store, auth *service.Auth, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		auth:     auth,
		keys:     service.NewKeys(st),
		rotator:  service.NewRotator(st),
		sessions: handler.NewEditSessions(st, autosave.Options{
			Debounce:  cfg.AutosaveDebounce,
			SavedHold: cfg.AutosaveSavedHold,
		}),
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.RateLimit > 0 {
		r.Use(middleware.RateLimit(s.cfg.RateLimit))
	}

	// Health checks and API document, unauthenticated.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", openapi.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// Management API, session-authenticated except login.
		r.Route("/system", func(r chi.Router) {
			sysHandler := handler.NewSystemHandler(s.store, s.auth)
			keysHandler := handler.NewKeysHandler(s.keys, s.rotator)
			resumesHandler := handler.NewResumesHandler(s.store, s.sessions)

			r.Post("/session", sysHandler.Login)
			r.Delete("/session", sysHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Session(s.auth))

				r.Get("/me", sysHandler.Me)

				// Resume pages and the auto-save editing session
				r.Get("/resume", resumesHandler.List)
				r.Post("/resume", resumesHandler.Create)
				r.Get("/resume/{resumeId}", resumesHandler.Get)
				r.Put("/resume/{resumeId}", resumesHandler.Update)
				r.Delete("/resume/{resumeId}", resumesHandler.Delete)
				r.Patch("/resume/{resumeId}/fields", resumesHandler.PatchFields)
				r.Post("/resume/{resumeId}/save", resumesHandler.SaveNow)
				r.Get("/resume/{resumeId}/save", resumesHandler.SaveStatus)
				r.Delete("/resume/{resumeId}/session", resumesHandler.CloseSession)

				// API key lifecycle
				r.Get("/key", keysHandler.List)
				r.Post("/key", keysHandler.Create)
				r.Get("/key/{keyId}", keysHandler.Get)
				r.Patch("/key/{keyId}", keysHandler.Update)
				r.Delete("/key/{keyId}", keysHandler.Delete)
				r.Post("/key/{keyId}/rotate", keysHandler.Rotate)
				r.Post("/key/{keyId}/revoke", keysHandler.Revoke)
				r.Get("/key/{keyId}/usage", keysHandler.Usage)
			})
		})

		// Read API for LLM clients, API-key authenticated.
		r.Route("/resumes", func(r chi.Router) {
			r.Use(middleware.KeyAuth(s.auth, s.cfg.APIKeyHeader))

			resumesHandler := handler.NewResumesHandler(s.store, s.sessions)
			r.Get("/", resumesHandler.PublicList)
			r.Get("/{slug}", resumesHandler.PublicGet)
		})
	})

	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz reports 200 when the record store answers a ping, 503
// otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded: " + err.Error()
		httpStatus = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{"status": status})
}

// ListenAndServe starts the server and blocks until SIGINT or SIGTERM,
// then drains in-flight requests, closes open editing sessions, and shuts
// down the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			s.logger.Info("server starting", "addr", addr, "tls", true)
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			s.logger.Info("server starting", "addr", addr)
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.sessions.CloseAll()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
