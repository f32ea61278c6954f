package settlement

import (
	"context"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository spans settlements, invoices, inventory and the ledger in one
// unit of work.
type TxRepository interface {
	Invoices() invoicing.TxRepository
	Ledger() ledger.TxRepository
	InsertSettlement(ctx context.Context, st Settlement) (Settlement, error)
	GetSettlement(ctx context.Context, id int64) (Settlement, error)
	UpdateSettlement(ctx context.Context, st Settlement) error
	DeleteSettlement(ctx context.Context, id int64) error
}

// Locker serialises work on one invoice across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// InvoicePort is the invoice deletion the cascade ends with.
type InvoicePort interface {
	DeleteSalesInvoiceTx(ctx context.Context, tx invoicing.TxRepository, id int64) error
	DeletePurchaseInvoiceTx(ctx context.Context, tx invoicing.TxRepository, id int64) error
}

// StockPort takes a sale's stock out.
type StockPort interface {
	ConsumeForSaleTx(ctx context.Context, tx inventory.TxRepository, sale inventory.Sale) (inventory.Change, error)
}

// LedgerPort posts and removes settlement documents.
type LedgerPort interface {
	PostTx(ctx context.Context, tx ledger.TxRepository, input ledger.DocumentInput) (ledger.Document, error)
	DeleteTx(ctx context.Context, tx ledger.TxRepository, id int64) error
}
