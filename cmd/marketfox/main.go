package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/MarketFox/app/controllers"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/billing"
	"github.com/ManuelReschke/MarketFox/internal/pkg/cache"
	"github.com/ManuelReschke/MarketFox/internal/pkg/config"
	"github.com/ManuelReschke/MarketFox/internal/pkg/database"
	"github.com/ManuelReschke/MarketFox/internal/pkg/env"
	"github.com/ManuelReschke/MarketFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MarketFox/internal/pkg/mail"
	"github.com/ManuelReschke/MarketFox/internal/pkg/metrics"
	"github.com/ManuelReschke/MarketFox/internal/pkg/router"
)

const openAPIFile = "docs/openapi.yml"

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Config] %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.AppEnv,
			AttachStacktrace: true,
		}); err != nil {
			log.Warnf("[Sentry] Failed to initialize: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	app, manager := NewApplication(cfg)
	if err := manager.Start(); err != nil {
		log.Fatalf("[JobQueue Manager] %v", err)
	}

	go func() {
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			log.Errorf("[HTTP] Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("[HTTP] Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[HTTP] Shutdown failed: %v", err)
	}
	manager.Stop()
}

// NewApplication wires storage, billing services and routes.
func NewApplication(cfg *config.Config) (*fiber.App, *jobqueue.Manager) {
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("[Database] %v", err)
	}
	if cfg.IsDev() {
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("[Database] AutoMigrate failed: %v", err)
		}
	}
	if err := database.SeedPlans(db); err != nil {
		log.Fatalf("[Database] %v", err)
	}

	m := metrics.New()
	mailer := mail.NewFromConfig(cfg)
	repos := repository.NewRepositories(db)

	var (
		store    cache.Store
		queue    *jobqueue.Queue
		enqueuer billing.Enqueuer
		stats    controllers.QueueStats
	)
	if cfg.CacheDriver == "redis" {
		client := cache.NewRedisClient(context.Background(), cfg.CacheAddr(), cfg.CachePassword)
		store = cache.NewRedisStore(client, "marketfox:")
		queue = jobqueue.NewQueue(client, mailer, m, cfg.QueueWorkers)
		enqueuer = queue
		stats = queue
	} else {
		store = cache.NewMemoryStore(64, cfg.PlanCacheTTL)
		log.Warn("[JobQueue] CACHE_DRIVER=memory, activation emails are sent inline")
	}

	svc := billing.NewFromDB(db, billing.Deps{
		Cache:    store,
		Notifier: mailer,
		Enqueuer: enqueuer,
		Activity: repos.ActivityLog,
		Metrics:  m,
	}, billing.Config{
		PlanCacheTTL:        cfg.PlanCacheTTL,
		TrialDays:           cfg.TrialDays,
		PlanDurationDays:    cfg.PlanDurationDays,
		SweepConcurrency:    cfg.SweepConcurrency,
		NotifyTimeout:       cfg.NotifyTimeout,
		CheckoutURLTemplate: cfg.CheckoutURLTemplate,
	})
	manager := jobqueue.NewManager(queue, svc.Expiration, cfg.CronSchedule)

	app := fiber.New(fiber.Config{
		AppName:      "MarketFox",
		ErrorHandler: controllers.NewErrorHandler(repos.ActivityLog),
	})
	app.Use(recover.New(), logger.New())

	if _, err := os.Stat(openAPIFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: openAPIFile,
			Path:     "v1",
		}))
	}

	router.InstallRouter(app, router.Deps{
		Config:         cfg,
		DB:             db,
		Billing:        svc,
		Repos:          repos,
		Sweeps:         manager,
		Queue:          stats,
		Metrics:        m,
		LimiterStorage: router.NewLimiterStorage(cfg),
	})
	return app, manager
}
