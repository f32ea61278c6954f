package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository persists accounts and documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// IntegrityRow pairs a stored balance with the balance implied by posted documents.
type IntegrityRow struct {
	AccountID int64
	Stored    decimal.Decimal
	Posted    decimal.Decimal
}

// FindBalanceDrift lists accounts whose stored balance disagrees with their posted lines.
func (r *Repository) FindBalanceDrift(ctx context.Context) ([]IntegrityRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.balance, COALESCE(p.net, 0)
FROM accounts a
LEFT JOIN (
	SELECT l.account_id, SUM(l.debit - l.credit) AS net
	FROM accounting_document_lines l
	JOIN accounting_documents d ON d.id = l.document_id
	WHERE d.status = 'posted'
	GROUP BY l.account_id
) p ON p.account_id = a.id
WHERE a.balance <> COALESCE(p.net, 0)
ORDER BY a.id`)
	if err != nil {
		return nil, shared.Storage("query balance drift", err)
	}
	defer rows.Close()
	var out []IntegrityRow
	for rows.Next() {
		var row IntegrityRow
		if err := rows.Scan(&row.AccountID, &row.Stored, &row.Posted); err != nil {
			return nil, shared.Storage("scan balance drift", err)
		}
		out = append(out, row)
	}
	return out, shared.Storage("iterate balance drift", rows.Err())
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	var acc Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, balance, status FROM accounts WHERE id=$1`, id).
		Scan(&acc.ID, &acc.Code, &acc.Name, &acc.Type, &acc.Balance, &acc.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NotFound("account", id)
	}
	if err != nil {
		return Account{}, shared.Storage("get account", err)
	}
	return acc, nil
}

func (r *txRepository) AddToBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id=$1 RETURNING balance`, id, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, shared.NotFound("account", id)
	}
	if err != nil {
		return decimal.Zero, shared.Storage("add to balance", err)
	}
	return balance, nil
}

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO accounting_documents (date_time, description, amount, ref_module, ref_id, doc_type, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		doc.DateTime, doc.Description, doc.Amount, doc.RefModule, doc.RefID, doc.Type, string(doc.Status), doc.CreatedAt, doc.UpdatedAt).Scan(&doc.ID)
	if err != nil {
		return Document{}, shared.Storage("insert accounting document", err)
	}
	if err := r.insertLines(ctx, doc.ID, doc.Lines); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *txRepository) insertLines(ctx context.Context, docID int64, lines []Line) error {
	for idx, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO accounting_document_lines (document_id, line_no, account_id, debit, credit)
VALUES ($1,$2,$3,$4,$5)`, docID, idx, line.AccountID, line.Debit, line.Credit); err != nil {
			return shared.Storage("insert accounting document line", err)
		}
	}
	return nil
}

func (r *txRepository) GetDocument(ctx context.Context, id int64) (Document, error) {
	var doc Document
	err := r.tx.QueryRow(ctx, `SELECT id, date_time, description, amount, ref_module, ref_id, doc_type, status, created_at, updated_at
FROM accounting_documents WHERE id=$1 FOR UPDATE`, id).
		Scan(&doc.ID, &doc.DateTime, &doc.Description, &doc.Amount, &doc.RefModule, &doc.RefID, &doc.Type, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, shared.NotFound("accounting document", id)
	}
	if err != nil {
		return Document{}, shared.Storage("get accounting document", err)
	}
	rows, err := r.tx.Query(ctx, `SELECT account_id, debit, credit FROM accounting_document_lines WHERE document_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Document{}, shared.Storage("query accounting document lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.AccountID, &line.Debit, &line.Credit); err != nil {
			return Document{}, shared.Storage("scan accounting document line", err)
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc, shared.Storage("iterate accounting document lines", rows.Err())
}

func (r *txRepository) UpdateDocument(ctx context.Context, doc Document) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounting_documents SET date_time=$2, description=$3, amount=$4, ref_module=$5, ref_id=$6, doc_type=$7, status=$8, updated_at=$9
WHERE id=$1`, doc.ID, doc.DateTime, doc.Description, doc.Amount, doc.RefModule, doc.RefID, doc.Type, string(doc.Status), doc.UpdatedAt)
	if err != nil {
		return shared.Storage("update accounting document", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("accounting document", doc.ID)
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM accounting_document_lines WHERE document_id=$1`, doc.ID); err != nil {
		return shared.Storage("replace accounting document lines", err)
	}
	return r.insertLines(ctx, doc.ID, doc.Lines)
}

func (r *txRepository) DeleteDocument(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM accounting_document_lines WHERE document_id=$1`, id); err != nil {
		return shared.Storage("delete accounting document lines", err)
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM accounting_documents WHERE id=$1`, id)
	if err != nil {
		return shared.Storage("delete accounting document", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("accounting document", id)
	}
	return nil
}
