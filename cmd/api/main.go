package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/background"
	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/config"
	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/metrics"
	middlewareCustom "github.com/BradenHooton/warden/internal/middleware"
	"github.com/BradenHooton/warden/internal/repositories"
	"github.com/BradenHooton/warden/internal/routes"
	"github.com/BradenHooton/warden/internal/services"
	"github.com/BradenHooton/warden/internal/store"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("state_backend", cfg.State.Backend),
		slog.String("hash_algorithm", string(cfg.Hash.Algorithm)),
	)

	// Initialize database
	db, err := database.NewConnection(context.Background(), &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.Migrate(migrateCtx, db.Pool, logger)
	cancel()
	if err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	database.RegisterPoolMetrics(registry, db.Stats)

	clk := clock.Real{}
	healthChecks := map[string]handlers.HealthChecker{"database": db}

	// Shared attempt and rate window state
	var (
		keyed   store.KeyedStore
		sweeper store.Sweeper
	)
	switch cfg.State.Backend {
	case config.StateBackendRedis:
		redisClient, err := store.NewRedisClient(context.Background(), cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()

		redisStore := store.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
		keyed = redisStore
		healthChecks["state"] = redisStore
	default:
		memoryStore := store.NewMemoryStore(clk, cfg.State.ShardCount)
		keyed = memoryStore
		sweeper = memoryStore
	}

	// Security services
	auditLogger := pkglogger.NewAuditLogger(logger)

	tracker, err := services.NewAttemptTracker(keyed, clk, services.LockoutConfig{
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		LockoutDuration:   cfg.Lockout.Duration,
		FailureRetention:  cfg.Lockout.FailureRetention,
	}, logger, m)
	if err != nil {
		logger.Error("invalid lockout configuration", slog.Any("error", err))
		os.Exit(1)
	}

	limits, err := rateLimits(cfg.RateLimit)
	if err != nil {
		logger.Error("invalid rate limit configuration", slog.Any("error", err))
		os.Exit(1)
	}
	limiter, err := services.NewRateLimitService(keyed, clk, limits, logger, m)
	if err != nil {
		logger.Error("failed to create rate limiter", slog.Any("error", err))
		os.Exit(1)
	}

	evaluator, err := pkgauth.NewStrengthEvaluator(cfg.Strength)
	if err != nil {
		logger.Error("invalid password strength policy", slog.Any("error", err))
		os.Exit(1)
	}

	hasher, err := pkgauth.NewHasher(cfg.Hash)
	if err != nil {
		logger.Error("invalid password hashing configuration", slog.Any("error", err))
		os.Exit(1)
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:      cfg.Auth.TimingDelayBase,
		RandomDelay:    cfg.Auth.TimingDelayRandom,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	tokenManager, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, clk)
	if err != nil {
		logger.Error("failed to create token manager", slog.Any("error", err))
		os.Exit(1)
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	accountRepo := repositories.NewAccountRepository(db)
	authService, err := services.NewAuthService(accountRepo, hasher, evaluator, tracker, limiter, timingDelay, clk, logger, auditLogger, m)
	if err != nil {
		logger.Error("failed to create auth service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, tokenManager, ipConfig, logger)
	healthHandler := handlers.NewHealthHandler(healthChecks, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.GlobalRateLimit(middlewareCustom.GlobalRateLimitConfig{
		PerDay:   cfg.RateLimit.DefaultDaily,
		PerHour:  cfg.RateLimit.DefaultHourly,
		IPConfig: ipConfig,
	}))
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, healthHandler, tokenManager,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start sweeper for backends without native expiry
	var cleanupManager *background.CleanupManager
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	if sweeper != nil {
		cleanupManager = background.NewCleanupManager(sweeper, logger, m, cfg.State.SweepInterval)
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	logger.Info("server stopped gracefully")
}

// rateLimits parses the per-endpoint-class limits
func rateLimits(cfg config.RateLimitConfig) (map[services.EndpointClass]services.RateLimit, error) {
	raw := map[services.EndpointClass]string{
		services.EndpointLogin:         cfg.Login,
		services.EndpointRegister:      cfg.Register,
		services.EndpointPasswordReset: cfg.PasswordReset,
	}

	limits := make(map[services.EndpointClass]services.RateLimit, len(raw))
	for class, value := range raw {
		limit, err := services.ParseRateLimit(value)
		if err != nil {
			return nil, fmt.Errorf("%s rate limit: %w", class, err)
		}
		limits[class] = limit
	}
	return limits, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
