package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/molimor/molimor-backend/api/routes"
	"github.com/molimor/molimor-backend/internal/fulfillment"
	"github.com/molimor/molimor-backend/internal/notifications"
	"github.com/molimor/molimor-backend/internal/orders"
	"github.com/molimor/molimor-backend/internal/products"
	"github.com/molimor/molimor-backend/internal/users"
	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db"
	"github.com/molimor/molimor-backend/pkg/env"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/metrics"
	"github.com/molimor/molimor-backend/pkg/migrate"
	"github.com/molimor/molimor-backend/pkg/outbox"
	"github.com/molimor/molimor-backend/pkg/redis"
	"github.com/molimor/molimor-backend/pkg/telemetry"
)

const (
	serviceName    = "api"
	serviceVersion = "1.0.0"
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

	// amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry, serviceVersion)
	if err != nil {
		logg.Error(ctx, "failed to init tracer provider", err)
		os.Exit(1)
	}
	defer shutdown(logg, "tracer provider", shutdownTracer)

	shutdownMeter, err := telemetry.InitMeterProvider(cfg.Telemetry, serviceVersion)
	if err != nil {
		logg.Error(ctx, "failed to init meter provider", err)
		os.Exit(1)
	}
	defer shutdown(logg, "meter provider", shutdownMeter)

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

	conn := dbClient.DB()
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer)
	pipeline, err := fulfillment.Bootstrap(ctx, cfg, conn, fulfillmentMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to build fulfillment pipeline", err)
		os.Exit(1)
	}

	var (
		dispatcher *fulfillment.Dispatcher
		scheduler  orders.Scheduler
		emitter    outbox.Emitter
	)
	if cfg.Fulfillment.IsOutbox() {
		emitter = outbox.NewService(outbox.NewRepository(conn), logg)
	} else {
		dispatcher, err = fulfillment.NewDispatcher(pipeline, fulfillmentMetrics, logg)
		if err != nil {
			logg.Error(ctx, "failed to create fulfillment dispatcher", err)
			os.Exit(1)
		}
		scheduler = dispatcher
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		Tx:        dbClient,
		Users:     users.NewRepository(conn),
		Outbox:    emitter,
		Scheduler: scheduler,
		Config:    cfg.Fulfillment,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(conn), products.NewRepository(conn))
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	resender, err := fulfillment.NewResender(ordersService, pipeline, dbClient, emitter, cfg.Fulfillment)
	if err != nil {
		logg.Error(ctx, "failed to create invoice resender", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":              cfg.App.Env,
		"addr":             addr,
		"fulfillment_mode": cfg.Fulfillment.Mode,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, ordersService, notificationsService, resender),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Fulfillment.DrainTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "http server shutdown", err)
	}
	if dispatcher != nil {
		if err := dispatcher.Drain(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "fulfillment runs still in flight at exit", err)
		}
	}
	logg.Info(shutdownCtx, "api server stopped")
}

func shutdown(logg *logger.Logger, name string, fn telemetry.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logg.Error(ctx, "error shutting down "+name, err)
	}
}
