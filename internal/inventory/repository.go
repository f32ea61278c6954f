package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations used by service.
// InsertRecord and DeleteRecord keep the per-key stock balance in step with the records.
type TxRepository interface {
	// LockStock locks the balance of key for the rest of the transaction and returns it.
	LockStock(ctx context.Context, key StockKey) (int64, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	GetRecord(ctx context.Context, id int64) (Record, error)
	DeleteRecord(ctx context.Context, id int64) error
	UpdateRecordCount(ctx context.Context, id, count int64) error
	StockByWarehouse(ctx context.Context, productID int64, variant string) ([]WarehouseStock, error)
	LatestPurchasePrice(ctx context.Context, productID int64, variant string) (decimal.Decimal, error)
	InsertChange(ctx context.Context, change Change) (Change, error)
	GetChange(ctx context.Context, id int64) (Change, error)
	DeleteChange(ctx context.Context, id int64) error
	InsertCommodityProfit(ctx context.Context, profit CommodityProfit) (CommodityProfit, error)
	DeleteCommodityProfits(ctx context.Context, refModule, refID string) error
}

// IdempotencyPort guards transfer codes against double submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}
