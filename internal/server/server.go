// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects storage, services,
// handlers, middleware and background jobs, and decides:
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config → sqlstore.Store ─┬→ services → handlers → routes
//	         redis (opt.) ───┴→ realtime.Hub, rate limiter
//
// This is the "composition root": all dependencies are wired in New, rather
// than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/estudogame/internal/auth"
	"github.com/sakif/estudogame/internal/config"
	"github.com/sakif/estudogame/internal/handler"
	"github.com/sakif/estudogame/internal/middleware"
	"github.com/sakif/estudogame/internal/realtime"
	"github.com/sakif/estudogame/internal/repository/sqlstore"
	"github.com/sakif/estudogame/internal/scheduler"
	"github.com/sakif/estudogame/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database pool and the Redis client. Close releases
// both; Start calls it during graceful shutdown.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	store     *sqlstore.Store
	redis     *redis.Client // nil without REDIS_URL
	hub       *realtime.Hub
	scheduler *scheduler.Scheduler
	metrics   *middleware.Metrics
}

// New opens the database (and Redis, when configured) and wires every
// component.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := sqlstore.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: middleware.NewMetrics(),
	}

	if cfg.RedisURL != "" {
		if err := s.connectRedis(); err != nil {
			store.Close()
			return nil, err
		}
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) connectRedis() error {
	opts, err := redis.ParseURL(s.config.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("connecting to redis: %w", err)
	}

	s.redis = rdb
	s.logger.Info("redis connected", slog.String("addr", opts.Addr))
	return nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /api/health                   → health probe
//	POST   /api/auth/register            → create account
//	POST   /api/auth/login               → password login
//	GET    /api/auth/github/login        → GitHub OAuth redirect (optional)
//	GET    /api/auth/github/callback     → GitHub OAuth completion (optional)
//	GET    /api/auth/verify              → current account            [auth]
//	GET    /api/users/profile            → profile + stats            [auth]
//	PUT    /api/users/profile            → update name / avatar       [auth]
//	GET    /api/challenges               → qualifying challenges      [auth]
//	POST   /api/challenges               → create challenge           [auth]
//	GET    /api/challenges/{id}          → challenge detail           [auth]
//	POST   /api/challenges/{id}/join     → join                       [auth]
//	GET    /api/challenges/{id}/ranking  → leaderboard                [auth]
//	GET    /api/challenges/{id}/live     → websocket leaderboard      [token query]
//	GET    /api/study-sessions           → paginated log              [auth]
//	POST   /api/study-sessions           → log session                [auth]
//	GET    /api/study-sessions/export    → .xlsx download             [auth]
//	PUT    /api/study-sessions/{id}      → edit subject / notes       [auth]
//	DELETE /api/study-sessions/{id}      → delete session             [auth]
//	GET    /metrics                      → Prometheus exposition
//	GET    /*                            → static frontend (optional)
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique id per request, used in logs and 5xx reports
//  2. RealIP: client IP from proxy headers, used by the rate limiter
//  3. Logger: one structured line per request
//  4. Recoverer: panics become 500 instead of crashing the process
//  5. Metrics: Prometheus counters and latency histogram
//  6. CORS: browser frontend on another origin
//  7. RateLimit: per-client budget, 429 when exhausted
//
// The request timeout wraps every route except the websocket, which is
// long-lived by nature.
func (s *Server) setupRoutes() error {
	cfg := s.config
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var limiter middleware.Limiter
	if s.redis != nil {
		limiter = middleware.NewRedisLimiterFromRate(s.redis, cfg.RateLimitRPS, cfg.RateLimitBurst)
	} else {
		limiter = middleware.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	r.Use(middleware.RateLimit(limiter, s.metrics, s.logger))

	// === Auth primitives ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordServiceWithCost(cfg.BcryptCost)

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}

	// === Services ===
	// The store implements every repository interface and the ledger;
	// services only ever see those interfaces.
	challengeService := service.NewChallengeService(s.store, nil, s.logger)
	s.hub = realtime.NewHub(challengeService, s.redis, s.logger)
	if err := s.metrics.Registry().Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "estudogame",
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Live ranking websockets open on this instance.",
	}, func() float64 { return float64(s.hub.Connections()) })); err != nil {
		return fmt.Errorf("registering realtime metrics: %w", err)
	}
	accounting := service.NewAccountingService(s.store, s.hub, nil, s.logger)
	authService := service.NewAuthService(s.store, tokens, passwords, nil, s.logger)
	accountService := service.NewAccountService(s.store, nil, s.logger)
	sessionService := service.NewSessionService(s.store, accounting, s.logger)

	s.scheduler = scheduler.New(challengeService, cfg.ExpiryInterval, s.logger)

	// === Handlers ===
	rs := handler.NewResponder(s.logger, cfg.IsDevelopment())
	authHandler := handler.NewAuthHandler(authService, github, rs, s.logger)
	accountHandler := handler.NewAccountHandler(accountService, rs)
	challengeHandler := handler.NewChallengeHandler(challengeService, s.hub, tokens, rs, s.logger)
	sessionHandler := handler.NewSessionHandler(sessionService, rs, s.logger)
	healthHandler := handler.NewHealthHandler(s.store)

	r.NotFound(rs.NotFound)
	r.MethodNotAllowed(rs.MethodNotAllowed)

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/challenges/{id}/live", challengeHandler.HandleLive)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

			r.Get("/health", healthHandler.HandleHealth)
			r.Post("/auth/register", authHandler.HandleRegister)
			r.Post("/auth/login", authHandler.HandleLogin)
			if authHandler.GitHubEnabled() {
				r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
				r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
			}

			// Protected routes: RequireAuth answers 401 before any handler runs.
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(tokens))

				r.Get("/auth/verify", authHandler.HandleVerify)

				r.Get("/users/profile", accountHandler.HandleGetProfile)
				r.Put("/users/profile", accountHandler.HandleUpdateProfile)

				r.Get("/challenges", challengeHandler.HandleList)
				r.Post("/challenges", challengeHandler.HandleCreate)
				r.Get("/challenges/{id}", challengeHandler.HandleGet)
				r.Post("/challenges/{id}/join", challengeHandler.HandleJoin)
				r.Get("/challenges/{id}/ranking", challengeHandler.HandleRanking)

				r.Get("/study-sessions", sessionHandler.HandleList)
				r.Post("/study-sessions", sessionHandler.HandleCreate)
				r.Get("/study-sessions/export", sessionHandler.HandleExport)
				r.Put("/study-sessions/{id}", sessionHandler.HandleUpdate)
				r.Delete("/study-sessions/{id}", sessionHandler.HandleDelete)
			})
		})
	})

	// === Static Files ===
	// GET /css/style.css → serves {StaticDir}/css/style.css
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and Redis connections.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// Start runs the background jobs and the HTTP server, and handles graceful
// shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the scheduler and the realtime subscription
//  4. Close Redis and the database
func (s *Server) Start() error {
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.hub.Start(ctx); err != nil {
		return fmt.Errorf("starting realtime hub: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer s.scheduler.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.Bool("redis", s.redis != nil),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
