package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pushfleet/broadcast-engine/internal/config"
	"github.com/pushfleet/broadcast-engine/internal/handler"
	"github.com/pushfleet/broadcast-engine/internal/infra/postgresql"
	"github.com/pushfleet/broadcast-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/pushfleet/broadcast-engine/internal/infra/redis"
	"github.com/pushfleet/broadcast-engine/internal/observability"
	"github.com/pushfleet/broadcast-engine/internal/provider"
	"github.com/pushfleet/broadcast-engine/internal/repository"
	"github.com/pushfleet/broadcast-engine/internal/service"
	"github.com/pushfleet/broadcast-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.SendRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	pushProvider, err := provider.NewWebPushProvider(provider.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subscriber: cfg.VAPIDSubscriber,
	}, cfg.SendTimeout())
	if err != nil {
		logger.Fatal("web push provider initialization failed", zap.Error(err))
	}

	subscriberRepo := repository.NewGormSubscriberRepo(db)
	notificationRepo := repository.NewGormNotificationRepo(db)
	outcomeRepo := repository.NewGormOutcomeRepo(db)

	metrics := observability.NewMetrics()

	executor, err := service.NewExecutor(
		subscriberRepo,
		pushProvider,
		limiter,
		cfg.SendConcurrency,
		cfg.SendTimeout(),
		logger,
	)
	if err != nil {
		logger.Fatal("executor initialization failed", zap.Error(err))
	}
	executor.SetMetrics(metrics)

	scheduler, err := service.NewScheduler(
		notificationRepo,
		subscriberRepo,
		executor,
		cfg.BatchSize,
		cfg.LeaseTTL(),
		cfg.MaxTickFailures,
		logger,
	)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}
	scheduler.SetMetrics(metrics)

	broadcastService, err := service.NewBroadcastService(
		notificationRepo,
		subscriberRepo,
		outcomeRepo,
		cfg.PayloadMaxBytes,
		logger,
	)
	if err != nil {
		logger.Fatal("broadcast service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterSubscriptionRoutes(app, broadcastService, cfg.VAPIDPublicKey); err != nil {
		logger.Fatal("subscription routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterBroadcastRoutes(app, broadcastService, scheduler); err != nil {
		logger.Fatal("broadcast routes registration failed", zap.Error(err))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(rootCtx)

	if cfg.TickIntervalSeconds > 0 {
		runner, err := service.NewTickRunner(notificationRepo, scheduler, cfg.TickInterval(), 0, logger)
		if err != nil {
			logger.Fatal("tick runner initialization failed", zap.Error(err))
		}
		g.Go(func() error {
			return runner.Start(ctx)
		})
		logger.Info("tick runner enabled", zap.Duration("interval", cfg.TickInterval()))
	} else {
		logger.Info("tick runner disabled, expecting external ticks")
	}

	g.Go(func() error {
		logger.Info("broadcast-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
	}
}
