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
	"github.com/rs/zerolog"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/availability"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

type services struct {
	catalog      catalog.Service
	ledger       stock.Ledger
	availability availability.Service
	checkout     checkout.Service
	orders       orders.Service
}

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

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Hooks:       []zerolog.Hook{metrics.NewLogHook(prometheus.DefaultRegisterer)},
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

	svcs, err := buildServices(cfg, logg, dbClient, redisClient, metrics.NewInventoryMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx := logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			prometheus.DefaultGatherer,
			svcs.catalog,
			svcs.ledger,
			svcs.availability,
			svcs.checkout,
			svcs.orders,
			outbox.NewDLQRepository(dbClient.DB()),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, inventoryMetrics *metrics.InventoryMetrics) (*services, error) {
	conn := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn), dbClient)
	if err != nil {
		return nil, err
	}
	ledger, err := stock.NewService(stock.ServiceParams{
		Repository: stock.NewRepository(conn),
		Tx:         dbClient,
		Catalog:    catalogSvc,
		Outbox:     outboxSvc,
		Metrics:    inventoryMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	availabilitySvc, err := availability.NewService(ledger, catalogSvc)
	if err != nil {
		return nil, err
	}
	availabilitySvc, err = availability.NewCachedService(availabilitySvc, redisClient, cfg.Inventory.AvailabilityCacheTTL, logg)
	if err != nil {
		return nil, err
	}
	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repository: ordersRepo,
		Tx:         dbClient,
		Stock:      ledger,
		Outbox:     outboxSvc,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:      dbClient,
		Orders:  ordersRepo,
		Catalog: catalogSvc,
		Stock:   ledger,
		Outbox:  outboxSvc,
		Metrics: inventoryMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		catalog:      catalogSvc,
		ledger:       ledger,
		availability: availabilitySvc,
		checkout:     checkoutSvc,
		orders:       ordersSvc,
	}, nil
}
