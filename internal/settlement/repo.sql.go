package settlement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository persists settlements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx       pgx.Tx
	invoices invoicing.TxRepository
	books    ledger.TxRepository
}

// NewTxRepository binds settlement, invoice, inventory and ledger queries to
// one open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx, invoices: invoicing.NewTxRepository(tx), books: ledger.NewTxRepository(tx)}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) Invoices() invoicing.TxRepository { return r.invoices }

func (r *txRepository) Ledger() ledger.TxRepository { return r.books }

func (r *txRepository) InsertSettlement(ctx context.Context, st Settlement) (Settlement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO settlements (settlement_type, invoice_id, payment, document_id, created_at)
VALUES ($1,$2,$3,NULLIF($4::BIGINT,0),$5) RETURNING id`,
		string(st.Type), st.InvoiceID, st.Payment, st.DocumentID, st.CreatedAt).Scan(&st.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Settlement{}, shared.Conflict(string(st.Type), st.InvoiceID, "invoice already settled")
		}
		return Settlement{}, shared.Storage("insert settlement", err)
	}
	return st, nil
}

func (r *txRepository) GetSettlement(ctx context.Context, id int64) (Settlement, error) {
	var st Settlement
	err := r.tx.QueryRow(ctx, `SELECT id, settlement_type, invoice_id, payment, COALESCE(document_id, 0), created_at
FROM settlements WHERE id=$1 FOR UPDATE`, id).
		Scan(&st.ID, &st.Type, &st.InvoiceID, &st.Payment, &st.DocumentID, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settlement{}, shared.NotFound("settlement", id)
	}
	if err != nil {
		return Settlement{}, shared.Storage("get settlement", err)
	}
	return st, nil
}

func (r *txRepository) UpdateSettlement(ctx context.Context, st Settlement) error {
	tag, err := r.tx.Exec(ctx, `UPDATE settlements SET payment=$2, document_id=NULLIF($3::BIGINT,0) WHERE id=$1`,
		st.ID, st.Payment, st.DocumentID)
	if err != nil {
		return shared.Storage("update settlement", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("settlement", st.ID)
	}
	return nil
}

func (r *txRepository) DeleteSettlement(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM settlements WHERE id=$1`, id)
	if err != nil {
		return shared.Storage("delete settlement", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("settlement", id)
	}
	return nil
}
