package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/pagehaven/bookstore-backend/api/routes"
	"github.com/pagehaven/bookstore-backend/internal/banktransfer"
	"github.com/pagehaven/bookstore-backend/internal/checkout"
	"github.com/pagehaven/bookstore-backend/internal/confirmation"
	"github.com/pagehaven/bookstore-backend/internal/fulfillment"
	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/migrate"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
	"github.com/pagehaven/bookstore-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

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

	checkoutSvc, err := checkout.NewService(checkout.NewRepository(gormDB), ordersRepo, inventorySvc, dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	registry := payments.NewRegistry(context.Background(), cfg, logg)
	paymentsRepo := payments.NewRepository(gormDB)
	paymentsSvc, err := payments.NewService(paymentsRepo, ordersSvc, registry, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	fulfillmentSvc, err := fulfillment.NewService(fulfillment.NewRepository(gormDB), outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment service", err)
		os.Exit(1)
	}

	guard, err := confirmation.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "webhooks")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
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
		guard,
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Cache:        redisClient,
			Idempotency:  redisClient,
			Checkout:     checkoutSvc,
			Orders:       ordersSvc,
			Payments:     paymentsSvc,
			BankTransfer: bankTransferSvc,
			Confirmation: confirmationSvc,
			Fulfillment:  fulfillmentSvc,
			Inventory:    inventorySvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
