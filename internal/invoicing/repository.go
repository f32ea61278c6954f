package invoicing

import (
	"context"

	"github.com/odyssey-erp/backoffice/internal/inventory"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes invoice storage inside a unit of work. Inventory shares
// the same transaction.
type TxRepository interface {
	GetReason(ctx context.Context, id int64) (Reason, error)
	InsertPurchaseInvoice(ctx context.Context, inv PurchaseInvoice) (PurchaseInvoice, error)
	GetPurchaseInvoice(ctx context.Context, id int64) (PurchaseInvoice, error)
	UpdatePurchaseInvoice(ctx context.Context, inv PurchaseInvoice) error
	DeletePurchaseInvoice(ctx context.Context, id int64) error
	InsertSalesInvoice(ctx context.Context, inv SalesInvoice) (SalesInvoice, error)
	GetSalesInvoice(ctx context.Context, id int64) (SalesInvoice, error)
	UpdateSalesInvoice(ctx context.Context, inv SalesInvoice) error
	DeleteSalesInvoice(ctx context.Context, id int64) error
	Inventory() inventory.TxRepository
}

// StockPort is the part of the inventory service invoices drive.
type StockPort interface {
	RecordPurchaseTx(ctx context.Context, tx inventory.TxRepository, receipt inventory.Receipt) ([]inventory.Record, error)
	RevisePurchaseTx(ctx context.Context, tx inventory.TxRepository, old, next inventory.Receipt) ([]inventory.Record, error)
	CheckAvailabilityTx(ctx context.Context, tx inventory.TxRepository, demands []inventory.Demand) error
	UndoTx(ctx context.Context, tx inventory.TxRepository, changeID int64) error
}
