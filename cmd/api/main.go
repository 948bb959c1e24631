// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/whisperme/whisper-api/internal/account"
	"github.com/whisperme/whisper-api/internal/admin"
	"github.com/whisperme/whisper-api/internal/auth"
	"github.com/whisperme/whisper-api/internal/call"
	"github.com/whisperme/whisper-api/internal/channel"
	"github.com/whisperme/whisper-api/internal/config"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/events"
	"github.com/whisperme/whisper-api/internal/favorite"
	"github.com/whisperme/whisper-api/internal/health"
	"github.com/whisperme/whisper-api/internal/ledger"
	"github.com/whisperme/whisper-api/internal/middleware"
	"github.com/whisperme/whisper-api/internal/payment"
	"github.com/whisperme/whisper-api/internal/profile"
	"github.com/whisperme/whisper-api/internal/server"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized", "algorithm", "ES256")

	var publisher events.Publisher = events.Nop{}
	var broker *events.AMQPPublisher
	if cfg.AMQP.Enabled {
		broker, err = events.NewAMQPPublisher(cfg.AMQP, logger)
		if err != nil {
			return err
		}
		publisher = broker
		logger.Info("event broker connected", "exchange", cfg.AMQP.Exchange)
	}

	ledgerRepo := ledger.NewRepository(db.DB)
	accountRepo := account.NewRepository(db.DB)
	accountSvc := account.NewService(db.DB, accountRepo, ledgerRepo)
	accountHandler := account.NewHandler(accountSvc)

	profileRepo := profile.NewRepository(db.DB)
	profileSvc := profile.NewService(db.DB, profileRepo,
		func(tx core.DBTX) profile.AccountFlags {
			return account.NewRepository(tx)
		},
	)
	profileHandler := profile.NewHandler(profileSvc)

	favoriteSvc := favorite.NewService(favorite.NewRepository(db.DB), profileRepo)
	favoriteHandler := favorite.NewHandler(favoriteSvc)

	authRepo := auth.NewRepository(db.DB)
	authSvc := auth.NewService(
		authRepo,
		jwtManager,
		accountSvc,
		auth.NewRedisBlacklist(redis.Client),
	)
	authHandler := auth.NewHandler(authSvc)

	settings, err := call.SettingsFromConfig(cfg.Call)
	if err != nil {
		return err
	}

	callManager := call.NewManager(call.Options{
		Store:    call.NewStore(db.DB),
		Settings: settings,
		Events:   publisher,
		Logger:   logger,
	})
	callHandler := call.NewHandler(callManager)

	hub := channel.NewHub(cfg.Channel, logger)
	hub.SetLifecycle(call.NewPresenceBridge(callManager))
	callManager.SetNotifier(hub)

	tokenIssuer, err := channel.NewTokenIssuer(cfg.Channel)
	if err != nil {
		return err
	}
	channelHandler := channel.NewHandler(hub, tokenIssuer, call.AppError)

	paymentSvc, err := payment.NewService(
		payment.NewStore(db.DB),
		cfg.Payment,
		publisher,
		logger,
	)
	if err != nil {
		return err
	}
	paymentHandler := payment.NewHandler(paymentSvc)

	locker := core.NewLocker(redis.Client, uuid.New().String())
	supervisor := call.NewSupervisor(callManager, locker, cfg.Supervisor, logger)

	supervisorCtx, stopSupervisor := context.WithCancel(ctx)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Run(supervisorCtx)
	}()

	deps := []health.Dependency{
		{Name: "database", Checker: db},
		{Name: "redis", Checker: redis},
	}
	if broker != nil {
		deps = append(deps, health.Dependency{
			Name:     "broker",
			Checker:  broker,
			Optional: true,
		})
	}
	healthHandler := health.NewHandler(deps...)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:      db.Stats,
		RedisStats:   redis.PoolStats,
		DBPing:       db.Ping,
		RedisPing:    redis.Ping,
		LiveChannels: hub.LiveSessions,
		Calls:        callManager,
		Sweeper:      supervisor,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing(core.Tracer("http")))
	router.Use(middleware.Logger(logger))
	limiter := middleware.NewLimiter(redis.Client, logger)
	router.Use(limiter.Middleware(middleware.GlobalPolicy(cfg.RateLimit)))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(authSvc)
	adminOnly := middleware.RequireAdmin

	initiateLimit := limiter.Middleware(middleware.CallInitiatePolicy(cfg.RateLimit))

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)
		accountHandler.RegisterRoutes(r, authenticator)
		profileHandler.RegisterRoutes(r, authenticator)
		favoriteHandler.RegisterRoutes(r, authenticator)
		paymentHandler.RegisterRoutes(r, authenticator)
		callHandler.RegisterRoutes(r, authenticator, initiateLimit,
			channelHandler.SessionRoutes)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		stopSupervisor()
		<-supervisorDone
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	stopSupervisor()
	<-supervisorDone
	hub.Shutdown()
	callManager.Close()

	if broker != nil {
		if err := broker.Close(); err != nil {
			logger.Error("broker close error", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
