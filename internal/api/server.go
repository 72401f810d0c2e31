package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/challenge-bot/internal/chat"
	"github.com/terra-clan/challenge-bot/internal/config"
	"github.com/terra-clan/challenge-bot/internal/health"
	"github.com/terra-clan/challenge-bot/internal/models"
	"github.com/terra-clan/challenge-bot/internal/storage"
)

// CatalogView is the read side of the challenge catalog
type CatalogView interface {
	Levels() []models.LevelSummary
	Challenges(level int) []*models.Challenge
	Languages() []models.LanguageInfo
	Count() int
}

// Sessions exposes the running challenge sessions
type Sessions interface {
	List() []models.SessionInfo
	Get(id string) (models.SessionInfo, bool)
	Cancel(ctx context.Context, id string) error
}

// StatsReader reads compile counters
type StatsReader interface {
	CompilationStats(ctx context.Context) ([]models.CompilationStats, error)
}

// Deps are the components the API serves from
type Deps struct {
	Catalog  CatalogView
	Sessions Sessions
	Journal  storage.Repository
	Stats    StatsReader
	Health   *health.Registry
	Hub      *chat.Hub
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	deps           Deps
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		config:         cfg,
		deps:           deps,
		authMiddleware: NewAuthMiddleware(cfg),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// The websocket outlives any request timeout
	r.With(s.authMiddleware.Authenticate, s.authMiddleware.RequirePermission(models.PermChat)).
		Get("/ws/chat", s.handleChatWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(s.authMiddleware.Authenticate)

		r.Route("/catalog", func(r chi.Router) {
			r.Use(s.authMiddleware.RequirePermission(models.PermCatalogRead))
			r.Get("/levels", s.handleListLevels)
			r.Get("/levels/{level}/challenges", s.handleListChallenges)
			r.Get("/languages", s.handleListLanguages)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/", s.handleGetSession)
				r.With(s.authMiddleware.RequirePermission(models.PermSessionsWrite)).Delete("/", s.handleCancelSession)
			})
		})

		r.Route("/compilations", func(r chi.Router) {
			r.Use(s.authMiddleware.RequirePermission(models.PermCompilationsRead))
			r.Get("/", s.handleListCompilations)
			r.Get("/stats", s.handleCompilationStats)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Run serves the API until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// No WriteTimeout: websocket connections stay open.
	srv := &http.Server{
		Addr:        s.config.Address(),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
