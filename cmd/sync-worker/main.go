package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/mpsync/internal/app"
	"github.com/angelmondragon/mpsync/internal/dispatch"
	"github.com/angelmondragon/mpsync/pkg/config"
	"github.com/angelmondragon/mpsync/pkg/db"
	"github.com/angelmondragon/mpsync/pkg/idempotency"
	"github.com/angelmondragon/mpsync/pkg/instance"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/metrics"
	"github.com/angelmondragon/mpsync/pkg/migrate"
	"github.com/angelmondragon/mpsync/pkg/pubsub"
	"github.com/angelmondragon/mpsync/pkg/redis"
)

const serviceName = "sync-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"env": cfg.App.Env, "instance": instance.GetID()},
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	runner, err := app.NewRunner(app.RunnerParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient.DB(),
		Locks:      redisClient,
		Registerer: reg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build job runner", err)
		os.Exit(1)
	}

	dispatchMetrics := metrics.NewDispatchMetrics(reg)
	retries, err := dispatch.NewPublisher(dispatch.NewGCPPublisher(pubsubClient.SyncPublisher()), logg, dispatchMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build retry publisher", err)
		os.Exit(1)
	}

	claims, err := idempotency.NewManager(redisClient, cfg.PubSub.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to build idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := dispatch.NewConsumer(dispatch.ConsumerParams{
		Subscription: pubsubClient.SyncSubscription(),
		Runner:       runner,
		Idempotency:  claims,
		Retries:      retries,
		Logger:       logg,
		Metrics:      dispatchMetrics,
		Name:         serviceName,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build sync consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: []dependency{
			{name: "database", ping: dbClient},
			{name: "redis", ping: redisClient},
			{name: "pubsub", ping: pubsubClient},
		},
		Consumer:       consumer,
		MetricsAddr:    ":" + cfg.App.Port,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.SyncSubscription,
	})
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "sync worker shutting down gracefully")
}
