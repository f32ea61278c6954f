package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/settlement"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer stores.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	var (
		locker      *shared.RedisLocker
		jobHandler  *jobs.Handler
		redisClient *redis.Client
	)
	redisClient, err = cache.New(ctx, redisOpts)
	if err != nil {
		// settlements still run; they are serialised by row locks only
		logger.Warn("redis unavailable, running without distributed locks", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		locker = shared.NewRedisLocker(redisClient, cfg.LockTTL)

		jobClient := jobs.NewClient(redisOpts.AsynqOpt())
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpts.AsynqOpt())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	}

	metrics := observability.NewMetrics()

	ledgerService := ledger.NewService(stores.Ledger)
	inventoryService := inventory.NewService(stores.Inventory, stores.Idempotency)
	invoicingService := invoicing.NewService(stores.Invoicing, inventoryService)
	settlementService := settlement.NewService(stores.Settlement, invoicingService, inventoryService, ledgerService, settlement.ServiceConfig{
		SalesAccountID:    cfg.SalesAccountID,
		PurchaseAccountID: cfg.PurchaseAccountID,
		Locker:            locker,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledger.NewHandler(logger, ledgerService),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		InvoicingHandler:  invoicing.NewHandler(logger, invoicingService, settlementService),
		SettlementHandler: settlement.NewHandler(logger, settlementService, metrics),
		JobHandler:        jobHandler,
		Metrics:           metrics,
		Ready: func(ctx context.Context) error {
			if err := stores.Ping(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return redisClient.Ping(ctx).Err()
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
