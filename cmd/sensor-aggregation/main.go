package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/sensor-aggregation/internal/api/http"
	"github.com/i474232898/sensor-aggregation/internal/config"
	"github.com/i474232898/sensor-aggregation/internal/metrics"
	"github.com/i474232898/sensor-aggregation/internal/scheduler"
	"github.com/i474232898/sensor-aggregation/internal/sensor"
	"github.com/i474232898/sensor-aggregation/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Raw store: MongoDB when configured, otherwise in-memory with a retention sweep.
	var (
		rawStore sensor.Store
		sweeper  scheduler.Sweeper
	)
	if cfg.MongoURI != "" {
		client, err := store.NewMongoConnection(ctx, cfg.MongoURI)
		if err != nil {
			log.Error("failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		mongoStore, err := store.NewMongoStore(ctx, client, cfg.MongoDatabase, cfg.MongoCollection, cfg.Retention)
		if err != nil {
			log.Error("failed to open readings collection", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := mongoStore.Close(); err != nil {
				log.Warn("error disconnecting from MongoDB", "error", err)
			}
		}()
		rawStore = store.NewBreaker(mongoStore, store.BreakerConfig{
			Name:                "mongo",
			ConsecutiveFailures: cfg.BreakerFailures,
			OpenTimeout:         cfg.BreakerTimeout,
			Logger:              log,
		})
		log.Info("using MongoDB store", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
	} else {
		memStore := store.NewMemoryStore(cfg.Retention)
		rawStore = memStore
		sweeper = memStore
		log.Info("using in-memory store", "retention", cfg.Retention)
	}

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Core service.
	service := sensor.NewService(rawStore,
		sensor.WithLogger(log),
		sensor.WithObserver(m),
		sensor.WithConcurrency(cfg.QueryConcurrency),
	)

	// Retention sweep for stores without server-side TTL.
	if sweeper != nil {
		sched := scheduler.New(sweeper, cfg.SweepInterval, log)
		if err := sched.Start(); err != nil {
			log.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "sensor-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler(log),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigin,
		AllowCredentials: cfg.AllowedOrigin != "*",
	}))

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "sensor-aggregation",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// API routes.
	httpapi.RegisterRoutes(app, service, httpapi.Config{
		APIKeyHash:   cfg.APIKeyHash,
		QueryTimeout: cfg.QueryTimeout,
		BaseURL:      os.Getenv("BASE_URL"),
		Logger:       log,
	})

	// Anything else is a JSON 404.
	app.Use(func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	go func() {
		log.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
			stop()
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
