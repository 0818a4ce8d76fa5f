package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/molimor/molimor-backend/internal/cron"
	"github.com/molimor/molimor-backend/internal/notifications"
	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/metrics"
	"github.com/molimor/molimor-backend/pkg/migrate"
	"github.com/molimor/molimor-backend/pkg/outbox"
	"github.com/molimor/molimor-backend/pkg/redis"
)

const (
	serviceName   = "cron-worker"
	lockKeyFormat = "molimor:cron-worker:lock:%s"
)

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

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, metricsCollector)
	if err != nil {
		logg.Error(ctx, "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metricsCollector,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, m *metrics.CronJobMetrics) (*cron.Registry, error) {
	registry := cron.NewRegistry()
	conn := dbClient.DB()

	if cfg.Cron.OutboxRetentionDays > 0 {
		job, err := cron.NewOutboxRetentionJob(cron.RetentionJobParams{
			Logger:        logg,
			DB:            dbClient,
			Metrics:       m,
			RetentionDays: cfg.Cron.OutboxRetentionDays,
		}, outbox.NewRepository(conn))
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}

	audit, err := cron.NewDLQAuditJob(logg, outbox.NewDLQRepository(conn), m, cfg.Cron.Interval)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(audit); err != nil {
		return nil, err
	}

	if cfg.Cron.NotificationRetentionDays > 0 {
		job, err := cron.NewNotificationCleanupJob(cron.RetentionJobParams{
			Logger:        logg,
			DB:            dbClient,
			Metrics:       m,
			RetentionDays: cfg.Cron.NotificationRetentionDays,
		}, notifications.NewRepository(conn))
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
