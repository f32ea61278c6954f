package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

// StockDriftSource finds and repairs stock balances that disagree with records.
type StockDriftSource interface {
	FindStockDrift(ctx context.Context) ([]inventory.DriftRow, error)
	ResetBalance(ctx context.Context, key inventory.StockKey, qty int64) error
}

// NewInventoryReconcileHandler returns the TaskInventoryReconcile handler.
func NewInventoryReconcileHandler(src StockDriftSource, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodeScanPayload(t)
		if err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		run := metrics.Begin(TaskInventoryReconcile)
		return run.Finish(reconcileStock(ctx, src, logger, metrics, payload.Repair))
	}
}

func reconcileStock(ctx context.Context, src StockDriftSource, logger *slog.Logger, metrics *jobmetrics.Metrics, repair bool) error {
	rows, err := src.FindStockDrift(ctx)
	if err != nil {
		return err
	}
	metrics.AddDrift(TaskInventoryReconcile, len(rows))
	for _, row := range rows {
		logger.Warn("stock balance drift",
			slog.Int64("product_id", row.Key.ProductID),
			slog.String("variant", row.Key.Variant),
			slog.Int64("warehouse_id", row.Key.WarehouseID),
			slog.Int64("balance", row.Balance),
			slog.Int64("recorded", row.Recorded))
		if !repair {
			continue
		}
		if err := src.ResetBalance(ctx, row.Key, row.Recorded); err != nil {
			return err
		}
	}
	logger.Info("inventory reconcile finished", slog.Int("drifted", len(rows)), slog.Bool("repair", repair))
	return nil
}
