package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagehaven/bookstore-backend/internal/banktransfer"
	"github.com/pagehaven/bookstore-backend/internal/confirmation"
	"github.com/pagehaven/bookstore-backend/internal/cron"
	"github.com/pagehaven/bookstore-backend/internal/fulfillment"
	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/metrics"
	"github.com/pagehaven/bookstore-backend/pkg/migrate"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
	"github.com/pagehaven/bookstore-backend/pkg/redis"
)

const lockKeyFormat = "ph:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	inventorySvc, err := inventory.NewService(inventory.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(gormDB)
	ordersSvc, err := orders.NewService(ordersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	registry := payments.NewRegistry(context.Background(), cfg, logg)
	paymentsRepo := payments.NewRepository(gormDB)

	fulfillmentSvc, err := fulfillment.NewService(fulfillment.NewRepository(gormDB), outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment service", err)
		os.Exit(1)
	}

	confirmationSvc, err := confirmation.NewService(
		registry,
		paymentsRepo,
		ordersSvc,
		ordersRepo,
		inventorySvc,
		fulfillmentSvc,
		outboxSvc,
		dbClient,
		nil,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create confirmation service", err)
		os.Exit(1)
	}

	bankTransferSvc, err := banktransfer.NewService(
		banktransfer.NewRepository(gormDB),
		paymentsRepo,
		ordersSvc,
		ordersRepo,
		inventorySvc,
		confirmationSvc,
		outboxSvc,
		dbClient,
		cfg.BankTransfer,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create bank transfer service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewBankTransferExpiryJob(cron.BankTransferExpiryJobParams{
		Logger:  logg,
		Expirer: bankTransferSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bank transfer expiry job", err)
		os.Exit(1)
	}

	retryJob, err := cron.NewFulfillmentRetryJob(cron.FulfillmentRetryJobParams{
		Logger:      logg,
		DB:          dbClient,
		Fulfillment: fulfillmentSvc,
		Orders:      ordersRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment retry job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, retryJob, retentionJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
