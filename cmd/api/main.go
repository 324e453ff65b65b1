// Package main is the entrypoint for the starterkit API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/starterkit/starterkit/internal/cache"
	"github.com/starterkit/starterkit/internal/config"
	"github.com/starterkit/starterkit/internal/events"
	"github.com/starterkit/starterkit/internal/handler"
	"github.com/starterkit/starterkit/internal/metrics"
	"github.com/starterkit/starterkit/internal/middleware"
	"github.com/starterkit/starterkit/internal/migrate"
	"github.com/starterkit/starterkit/internal/repository"
	"github.com/starterkit/starterkit/internal/server"
	"github.com/starterkit/starterkit/internal/service"
	"github.com/starterkit/starterkit/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, err := repository.New(ctx, cfg.DatabaseURL,
		repository.WithMaxConns(cfg.DBMaxConns),
		repository.WithMinConns(cfg.DBMinConns),
		repository.WithMaxConnLifetime(cfg.DBMaxConnLifetime),
	)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		migrator, err := migrate.New(repo.Pool(), migrations.FS, cfg.MigrationsTable, logger)
		if err != nil {
			repo.Close()
			return err
		}
		if err := migrator.Up(ctx); err != nil {
			repo.Close()
			logger.Error("failed to apply migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			return err
		}
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.WithPoolSize(cfg.RedisPoolSize))
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return err
	}
	logger.Info("connected to Redis")

	metricsRecorder := metrics.NewInMemory()

	// A nil *events.Publisher must not reach the service as a non-nil interface.
	var publisher service.EventPublisher
	var eventPublisher *events.Publisher
	if cfg.EventsEnabled {
		eventPublisher = events.NewPublisher(cacheClient.Client(), logger, metricsRecorder)
		publisher = eventPublisher
	}

	userService := service.NewUserService(repo, cacheClient, publisher, metricsRecorder, logger)

	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	userHandler := handler.NewUserHandler(userService, logger)
	echoHandler := handler.NewEchoHandler()
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)

	r := setupRouter(h, healthHandler, userHandler, echoHandler, metricsHandler, cacheClient, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// LIFO: events drain first, then Redis closes, then Postgres.
	srv.OnShutdown("postgres", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return cacheClient.Close()
	})
	if eventPublisher != nil {
		srv.OnShutdown("user-events", eventPublisher.Drain)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"auto_migrate", cfg.AutoMigrate,
		"events_enabled", cfg.EventsEnabled,
		"rate_limit_enabled", cfg.RateLimitEnabled,
	)

	return srv.Run(ctx)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	userHandler *handler.UserHandler,
	echoHandler *handler.EchoHandler,
	metricsHandler *handler.MetricsHandler,
	limiter middleware.RateLimiter,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	r.Get("/", h.Info)
	r.Get("/health", healthHandler.Health)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	r.Get("/api/string", echoHandler.Get)
	r.Post("/api/string", echoHandler.Post)

	createLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: limiter,
		Enabled: cfg.RateLimitEnabled,
		Scope:   "users_create",
		RPS:     cfg.RateLimitCreateRPS,
		Burst:   cfg.RateLimitCreateBurst,
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Get("/", userHandler.List)
		r.With(createLimit).Post("/", userHandler.Create)
		r.Get("/{id}", userHandler.Get)
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
