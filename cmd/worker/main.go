package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	if cfg.StoreDriver == app.StoreDriverMemory {
		logger.Warn("worker started on the memory store; it sees none of the API's data")
	}

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer stores.Close()

	metrics := observability.NewMetrics()
	go serveMetrics(ctx, cfg.WorkerMetricsAddr, metrics, logger)
	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	reconcileTask, err := jobs.NewInventoryReconcileTask(time.Time{}, true)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(time.Time{})
	if err != nil {
		logger.Error("build ledger integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts.AsynqOpt(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryReconcile, Handler: jobs.NewInventoryReconcileHandler(stores.StockDrift, logger, metrics.Jobs())},
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(stores.BalanceDrift, logger, metrics.Jobs())},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
			{Spec: cfg.LedgerIntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("reconcile_cron", cfg.ReconcileCron), slog.String("ledger_cron", cfg.LedgerIntegrityCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// serveMetrics exposes the scan collectors until ctx ends. An empty addr
// disables the listener.
func serveMetrics(ctx context.Context, addr string, metrics *observability.Metrics, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker metrics listener", slog.String("addr", addr), slog.Any("error", err))
	}
}
