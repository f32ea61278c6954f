package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
)

// BalanceDriftSource lists accounts whose balance disagrees with posted lines.
type BalanceDriftSource interface {
	FindBalanceDrift(ctx context.Context) ([]ledger.IntegrityRow, error)
}

// NewLedgerIntegrityHandler returns the TaskLedgerIntegrity handler. Drift is
// reported, never repaired.
func NewLedgerIntegrityHandler(src BalanceDriftSource, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if _, err := decodeScanPayload(t); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		run := metrics.Begin(TaskLedgerIntegrity)
		return run.Finish(checkLedger(ctx, src, logger, metrics))
	}
}

func checkLedger(ctx context.Context, src BalanceDriftSource, logger *slog.Logger, metrics *jobmetrics.Metrics) error {
	rows, err := src.FindBalanceDrift(ctx)
	if err != nil {
		return err
	}
	metrics.AddDrift(TaskLedgerIntegrity, len(rows))
	for _, row := range rows {
		logger.Error("account balance drift",
			slog.Int64("account_id", row.AccountID),
			slog.String("stored", row.Stored.String()),
			slog.String("posted", row.Posted.String()))
	}
	logger.Info("ledger integrity check finished", slog.Int("drifted", len(rows)))
	return nil
}
