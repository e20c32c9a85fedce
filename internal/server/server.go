// Package server sets up the HTTP server, router, and all route definitions.
//
// It is the composition root: New opens the database, restores the engine
// from it, seeds questions and demo people, and wires handlers to routes.
//
//	config.Config → sqlite.DB ─┬→ service.Engine (journal = db) → handlers
//	                           └→ service.AuthService (credentials = db)
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/people-match/internal/auth"
	"github.com/sakif/people-match/internal/config"
	"github.com/sakif/people-match/internal/handler"
	"github.com/sakif/people-match/internal/metrics"
	"github.com/sakif/people-match/internal/middleware"
	sqliteRepo "github.com/sakif/people-match/internal/repository/sqlite"
	"github.com/sakif/people-match/internal/seed"
	"github.com/sakif/people-match/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it on shutdown.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	engine   *service.Engine
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tokens   *auth.TokenService // nil when auth is disabled
}

// New opens the database, rebuilds the engine from it and sets up routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.New(s.registry)

	if err := s.setupEngine(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.AuthEnabled() {
		s.tokens, err = auth.NewTokenService(cfg.JWTSecret, auth.DefaultTokenTTL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating token service: %w", err)
		}
	} else {
		logger.Warn("JWT_SECRET not set, authentication is disabled")
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupEngine restores the persisted population, then seeds.
func (s *Server) setupEngine(ctx context.Context) error {
	matchPolicy, err := service.ParseMatchPolicy(s.config.MatchPolicy)
	if err != nil {
		return err
	}
	regPolicy, err := service.ParseRegistrationPolicy(s.config.RegistrationPolicy)
	if err != nil {
		return err
	}

	s.engine = service.NewEngine(service.Options{
		Journal:            s.db,
		MatchPolicy:        matchPolicy,
		RegistrationPolicy: regPolicy,
		Metrics:            s.metrics,
		Logger:             s.logger,
	})

	snap, err := s.db.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted state: %w", err)
	}
	if err := s.engine.Restore(ctx, snap); err != nil {
		return fmt.Errorf("restoring engine: %w", err)
	}

	if s.config.SeedQuestions {
		questions, err := seed.DefaultQuestions()
		if err != nil {
			return fmt.Errorf("loading seed questions: %w", err)
		}
		if err := s.engine.SeedQuestions(ctx, questions); err != nil {
			return fmt.Errorf("seeding questions: %w", err)
		}
	}

	if s.config.SeedDemo {
		added, err := seed.ApplyDemo(ctx, s.engine)
		if err != nil {
			return fmt.Errorf("seeding demo people: %w", err)
		}
		if added > 0 {
			s.logger.Info("demo people registered", slog.Int("count", added))
		}
	}

	s.engine.ReportPopulation()
	return nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET  /                              → home page (HTML)
// POST /register /answer /skip /ask   → home page forms
// POST /api/register  /api/login      → accounts
// GET  /api/me                        → signed-in user (auth only)
// POST /api/users                     → register or merge a profile
// GET  /api/users/{name}              → one user
// GET  /api/questions[/next|/status]  → pool, next question, per-user status
// POST /api/questions/answer|skip|ask|ask-existing
// POST /api/search                    → filter search
// GET  /api/match/check               → best match
// GET  /auth/github/login|callback    → GitHub sign-in (when configured)
// POST /auth/logout
// GET  /metrics  /healthz
//
// With auth enabled, every route that changes a user runs behind
// RequireAuth and the handlers check the token names that user.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	authOn := s.tokens != nil
	requireAuth := func(r chi.Router) chi.Router { return r }
	optionalAuth := requireAuth
	if authOn {
		requireAuth = func(r chi.Router) chi.Router { return r.With(auth.RequireAuth(s.tokens)) }
		optionalAuth = func(r chi.Router) chi.Router { return r.With(auth.OptionalAuth(s.tokens)) }
	}

	// === Page Routes ===
	home, err := handler.NewHomeHandler(s.engine, authOn, s.logger)
	if err != nil {
		return fmt.Errorf("creating home handler: %w", err)
	}
	s.router.Group(func(r chi.Router) {
		r = optionalAuth(r)
		r.Get("/", home.HandleHome)
		r.Post("/register", home.HandleRegister)
		r.Post("/answer", home.HandleAnswer)
		r.Post("/skip", home.HandleSkip)
		r.Post("/ask", home.HandleAsk)
	})

	// === Accounts ===
	accounts := service.NewAuthService(s.engine.Registry, s.db, s.tokens, auth.NewPasswordService(), s.logger)
	var github handler.GitHubAuthenticator
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}
	ttl := auth.DefaultTokenTTL
	if s.tokens != nil {
		ttl = s.tokens.TTL()
	}
	authHandler := handler.NewAuthHandler(accounts, s.engine.Registry, github, ttl, s.logger)

	s.router.Post("/auth/logout", authHandler.HandleLogout)
	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	// === API Routes ===
	people := handler.NewPeopleHandler(s.engine, authOn, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.HandleSignUp)
		r.Post("/login", authHandler.HandleLogin)

		r.Get("/users/{name}", people.HandleGetUser)
		r.Get("/questions", people.HandleListQuestions)
		r.Get("/questions/next", people.HandleNextQuestion)
		r.Get("/questions/status", people.HandleQuestionStatus)
		r.Post("/search", people.HandleSearch)
		r.Get("/match/check", people.HandleMatchCheck)

		r.Group(func(r chi.Router) {
			r = requireAuth(r)
			if authOn {
				r.Get("/me", authHandler.HandleMe)
			}
			r.Post("/users", people.HandleRegisterProfile)
			r.Post("/questions/answer", people.HandleAnswer)
			r.Post("/questions/skip", people.HandleSkip)
			r.Post("/questions/ask", people.HandleAsk)
			r.Post("/questions/ask-existing", people.HandleAskExisting)
		})
	})

	// === Operations ===
	promHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.engine.ReportPopulation()
		promHandler.ServeHTTP(w, r)
	})
	s.router.Get("/healthz", s.handleHealth)

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Handler exposes the router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Engine exposes the matching engine. Used by tests.
func (s *Server) Engine() *service.Engine {
	return s.engine
}

// Close releases the database. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("match_policy", string(s.engine.Matches.Policy())),
			slog.Bool("auth", s.tokens != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
