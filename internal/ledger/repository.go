package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes ledger operations inside a unit of work.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (Account, error)
	// AddToBalance atomically adds delta to the balance and returns the new value.
	AddToBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error)
	InsertDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	UpdateDocument(ctx context.Context, doc Document) error
	DeleteDocument(ctx context.Context, id int64) error
}
