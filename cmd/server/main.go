package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/actuation"
	"github.com/seu-repo/energy-core/internal/adapter/cache"
	"github.com/seu-repo/energy-core/internal/adapter/clock"
	"github.com/seu-repo/energy-core/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/energy-core/internal/adapter/http/fiber/middleware"
	"github.com/seu-repo/energy-core/internal/adapter/queue"
	"github.com/seu-repo/energy-core/internal/adapter/storage/memory"
	"github.com/seu-repo/energy-core/internal/adapter/storage/postgres"
	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/internal/service/calculator"
	"github.com/seu-repo/energy-core/internal/service/dispatch"
	"github.com/seu-repo/energy-core/internal/service/health"
	"github.com/seu-repo/energy-core/internal/service/jobs"
	"github.com/seu-repo/energy-core/internal/service/pricing"
	"github.com/seu-repo/energy-core/internal/service/proposal"
	"github.com/seu-repo/energy-core/internal/service/topology"
	"github.com/seu-repo/energy-core/pkg/config"
)

const (
	serviceName    = "energy-core"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Initialize Logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting Energy Core",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
		zap.String("environment", cfg.App.Environment),
	)

	if err := cfg.ResolveSecrets(); err != nil {
		logger.Fatal("Failed to resolve secrets from Vault", zap.Error(err))
	}

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(cfg.OpenTelemetry.ServiceName, serviceVersion,
			cfg.OpenTelemetry.Jaeger.Endpoint, cfg.OpenTelemetry.Jaeger.SamplerParam)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	loc := cfg.Location()
	clk := clock.System{Location: loc}

	// 4. Initialize Store
	store, closeStore := openStore(cfg, logger)
	defer closeStore()

	// 5. Initialize Cache (Redis, in-process fallback)
	appCache := openCache(cfg, logger)
	defer appCache.Close()

	// 6. Initialize Message Queue
	messageQueue, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to connect to message queue", zap.Error(err))
	}
	defer messageQueue.Close()
	events := queue.NewPublisher(messageQueue)

	// 7. Initialize Services
	pricingService := pricing.NewService(store, appCache, clk, logger, &pricing.Config{
		CacheTTL: cfg.Cache.PricingTTL,
		Location: loc,
	})
	calc := calculator.NewService(store, pricingService, appCache, logger, &calculator.Config{
		SettingsTTL: cfg.Cache.SettingsTTL,
	})
	topologyService := topology.NewService(store, topology.NewMatcher(cfg.Matcher, logger), clk, events, logger)
	generator := proposal.NewGenerator(store, calc, clk, events, logger)
	executor := proposal.NewExecutor(store, newActuator(cfg, events, clk, logger), clk, events, logger,
		&proposal.ExecutorConfig{SettleDelay: cfg.Executor.SettleDelay})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 8. Start Background Workers
	startBackgroundWorkers(messageQueue, jobs.NewWorker(generator, executor, topologyService, events, clk, 0, logger), logger)

	// 9. Start Realtime Dispatch
	var dispatchStatus handlers.StatusSource
	var runnerDone <-chan error
	if cfg.Dispatch.Enabled {
		ctrl, done, err := startDispatch(ctx, cfg, store, appCache, messageQueue, events, clk, logger)
		if err != nil {
			logger.Error("Realtime dispatch disabled", zap.Error(err))
		} else {
			dispatchStatus = ctrl
			runnerDone = done
		}
	}

	// 10. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.NewCORS(cfg.HTTP.CORS))
	app.Use(middleware.RequestMetrics())

	healthService := health.NewService(&health.Config{
		Version: serviceVersion,
		Store:   store,
		Cache:   appCache,
		Queue:   messageQueue,
	}, logger)
	health.NewFiberHandler(healthService).RegisterRoutes(app)

	if cfg.Prometheus.Enabled {
		app.Get(cfg.Prometheus.Path, handlers.Metrics())
	}

	mirror := func(ctx context.Context) (domain.DispatchStatus, bool) {
		return dispatch.CachedStatus(ctx, appCache)
	}
	app.Get("/dispatch/status", handlers.NewDispatchHandler(dispatchStatus, mirror, logger).Status)

	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 11. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()
	if runnerDone != nil {
		if err := <-runnerDone; err != nil {
			logger.Error("Dispatch runner stopped with error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Level == "debug" || cfg.Format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(cfg *config.Config, logger *zap.Logger) (ports.Store, func()) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on exit")
		return memory.NewStore(), func() {}
	}

	db, err := postgres.NewConnection(cfg.Database, "", logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}
	return postgres.NewStore(db, logger), func() {
		if err := postgres.Close(db); err != nil {
			logger.Error("Failed to close database", zap.Error(err))
		}
	}
}

func openCache(cfg *config.Config, logger *zap.Logger) ports.Cache {
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis, serviceName, logger)
		if err == nil {
			return redisCache
		}
		logger.Warn("Redis unavailable, falling back to in-process cache", zap.Error(err))
	}
	return cache.NewLocalCache(time.Minute, logger)
}

func newActuator(cfg *config.Config, events ports.EventPublisher, clk ports.Clock, logger *zap.Logger) ports.Actuation {
	var act ports.Actuation
	switch cfg.Executor.Actuator {
	case "queue":
		act = actuation.NewQueue(events, clk, logger)
	default:
		act = actuation.NewStub(cfg.Executor.StubSuccess, rand.New(rand.NewSource(time.Now().UnixNano())), logger)
	}
	if cfg.CircuitBreaker.Enabled {
		act = actuation.NewBreaker(act, cfg.CircuitBreaker, logger)
	}
	logger.Info("Actuator ready",
		zap.String("actuator", cfg.Executor.Actuator),
		zap.Bool("circuit_breaker", cfg.CircuitBreaker.Enabled),
	)
	return act
}

// startBackgroundWorkers subscribes the job worker to its request subjects
func startBackgroundWorkers(mq queue.MessageQueue, w *jobs.Worker, logger *zap.Logger) {
	logger.Info("Starting background workers")

	subscriptions := []struct {
		subject string
		sub     func() error
	}{
		{ports.SubjectGenerateRequests, func() error { return queue.SubscribeJSON(mq, ports.SubjectGenerateRequests, w.Generate) }},
		{ports.SubjectExecuteRequests, func() error { return queue.SubscribeJSON(mq, ports.SubjectExecuteRequests, w.Execute) }},
		{ports.SubjectAcceptRequests, func() error { return queue.SubscribeJSON(mq, ports.SubjectAcceptRequests, w.Accept) }},
		{ports.SubjectRejectRequests, func() error { return queue.SubscribeJSON(mq, ports.SubjectRejectRequests, w.Reject) }},
		{ports.SubjectSyncRequests, func() error { return queue.SubscribeJSON(mq, ports.SubjectSyncRequests, w.Sync) }},
	}
	for _, s := range subscriptions {
		if err := s.sub(); err != nil {
			logger.Fatal("Failed to subscribe", zap.String("subject", s.subject), zap.Error(err))
		}
	}
}

// startDispatch builds the controller and feeds it readings and control requests from the queue
func startDispatch(
	ctx context.Context,
	cfg *config.Config,
	store ports.Store,
	c ports.Cache,
	mq queue.MessageQueue,
	events ports.EventPublisher,
	clk ports.Clock,
	logger *zap.Logger,
) (*dispatch.Controller, <-chan error, error) {
	target, err := dispatch.ResolveDemandTarget(ctx, store, cfg.Dispatch.DemandTarget, cfg.Dispatch.MeterCode)
	if err != nil {
		return nil, nil, err
	}

	ctrl := dispatch.NewController(target, clk, logger)
	if cfg.Dispatch.StorageKW > 0 {
		if err := ctrl.SetStorageStatus(cfg.Dispatch.StorageKW, cfg.Dispatch.StorageSOC); err != nil {
			return nil, nil, err
		}
	}
	ctrl.AddListener(dispatch.NewEventListener(events))

	runner := dispatch.NewRunner(ctrl, store, c, clk, logger, dispatch.RunnerConfig{
		RefreshDevices: cfg.Dispatch.RefreshDevices,
		StatusTTL:      cfg.Cache.StatusTTL,
	})
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	if err := runner.Subscribe(ctx, mq); err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe dispatch runner: %w", err)
	}

	logger.Info("Realtime dispatch started", zap.Float64("demand_target_kw", target))
	return ctrl, done, nil
}
