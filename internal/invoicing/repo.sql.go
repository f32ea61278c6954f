package invoicing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx        pgx.Tx
	inventory inventory.TxRepository
}

// NewTxRepository binds invoice and inventory queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx, inventory: inventory.NewTxRepository(tx)}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) Inventory() inventory.TxRepository {
	return r.inventory
}

func (r *txRepository) GetReason(ctx context.Context, id int64) (Reason, error) {
	var reason Reason
	err := r.tx.QueryRow(ctx, `SELECT id, title, operation, default_value, COALESCE(account_id, 0) FROM add_and_subtract WHERE id=$1`, id).
		Scan(&reason.ID, &reason.Title, &reason.Operation, &reason.DefaultValue, &reason.AccountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reason{}, shared.NotFound("add-and-subtract reason", id)
	}
	if err != nil {
		return Reason{}, shared.Storage("get add-and-subtract reason", err)
	}
	return reason, nil
}

func (r *txRepository) InsertPurchaseInvoice(ctx context.Context, inv PurchaseInvoice) (PurchaseInvoice, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_invoices (code, supplier_id, warehouse_id, date_time, lines, adjustments, sum, total, settlement_id, status, created_at, updated_at)
VALUES ($1,NULLIF($2::BIGINT,0),$3,$4,$5,$6,$7,$8,NULLIF($9::BIGINT,0),$10,$11,$12) RETURNING id`,
		inv.Code, inv.SupplierID, inv.WarehouseID, inv.DateTime, inv.Lines, inv.Adjustments, inv.Sum, inv.Total,
		inv.SettlementID, string(inv.Status), inv.CreatedAt, inv.UpdatedAt).Scan(&inv.ID)
	if err != nil {
		return PurchaseInvoice{}, shared.Storage("insert purchase invoice", err)
	}
	return inv, nil
}

func (r *txRepository) GetPurchaseInvoice(ctx context.Context, id int64) (PurchaseInvoice, error) {
	var inv PurchaseInvoice
	err := r.tx.QueryRow(ctx, `SELECT id, code, COALESCE(supplier_id, 0), warehouse_id, date_time, lines, adjustments, sum, total,
	COALESCE(settlement_id, 0), status, created_at, updated_at
FROM purchase_invoices WHERE id=$1 FOR UPDATE`, id).
		Scan(&inv.ID, &inv.Code, &inv.SupplierID, &inv.WarehouseID, &inv.DateTime, &inv.Lines, &inv.Adjustments, &inv.Sum, &inv.Total,
			&inv.SettlementID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseInvoice{}, shared.NotFound("purchase invoice", id)
	}
	if err != nil {
		return PurchaseInvoice{}, shared.Storage("get purchase invoice", err)
	}
	return inv, nil
}

func (r *txRepository) UpdatePurchaseInvoice(ctx context.Context, inv PurchaseInvoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_invoices SET code=$2, supplier_id=NULLIF($3::BIGINT,0), warehouse_id=$4, date_time=$5, lines=$6, adjustments=$7,
	sum=$8, total=$9, settlement_id=NULLIF($10::BIGINT,0), status=$11, updated_at=$12
WHERE id=$1`,
		inv.ID, inv.Code, inv.SupplierID, inv.WarehouseID, inv.DateTime, inv.Lines, inv.Adjustments,
		inv.Sum, inv.Total, inv.SettlementID, string(inv.Status), inv.UpdatedAt)
	if err != nil {
		return shared.Storage("update purchase invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("purchase invoice", inv.ID)
	}
	return nil
}

func (r *txRepository) DeletePurchaseInvoice(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM purchase_invoices WHERE id=$1`, id)
	if err != nil {
		return shared.Storage("delete purchase invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("purchase invoice", id)
	}
	return nil
}

func (r *txRepository) InsertSalesInvoice(ctx context.Context, inv SalesInvoice) (SalesInvoice, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_invoices (code, customer_id, date_time, lines, adjustments, sum, total, status, settlement_id, stock_change_id, created_at, updated_at)
VALUES ($1,NULLIF($2::BIGINT,0),$3,$4,$5,$6,$7,$8,NULLIF($9::BIGINT,0),NULLIF($10::BIGINT,0),$11,$12) RETURNING id`,
		inv.Code, inv.CustomerID, inv.DateTime, inv.Lines, inv.Adjustments, inv.Sum, inv.Total, string(inv.Status),
		inv.SettlementID, inv.StockChangeID, inv.CreatedAt, inv.UpdatedAt).Scan(&inv.ID)
	if err != nil {
		return SalesInvoice{}, shared.Storage("insert sales invoice", err)
	}
	return inv, nil
}

func (r *txRepository) GetSalesInvoice(ctx context.Context, id int64) (SalesInvoice, error) {
	var inv SalesInvoice
	err := r.tx.QueryRow(ctx, `SELECT id, code, COALESCE(customer_id, 0), date_time, lines, adjustments, sum, total, status,
	COALESCE(settlement_id, 0), COALESCE(stock_change_id, 0), created_at, updated_at
FROM sales_invoices WHERE id=$1 FOR UPDATE`, id).
		Scan(&inv.ID, &inv.Code, &inv.CustomerID, &inv.DateTime, &inv.Lines, &inv.Adjustments, &inv.Sum, &inv.Total, &inv.Status,
			&inv.SettlementID, &inv.StockChangeID, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesInvoice{}, shared.NotFound("sales invoice", id)
	}
	if err != nil {
		return SalesInvoice{}, shared.Storage("get sales invoice", err)
	}
	return inv, nil
}

func (r *txRepository) UpdateSalesInvoice(ctx context.Context, inv SalesInvoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET code=$2, customer_id=NULLIF($3::BIGINT,0), date_time=$4, lines=$5, adjustments=$6,
	sum=$7, total=$8, status=$9, settlement_id=NULLIF($10::BIGINT,0), stock_change_id=NULLIF($11::BIGINT,0), updated_at=$12
WHERE id=$1`,
		inv.ID, inv.Code, inv.CustomerID, inv.DateTime, inv.Lines, inv.Adjustments,
		inv.Sum, inv.Total, string(inv.Status), inv.SettlementID, inv.StockChangeID, inv.UpdatedAt)
	if err != nil {
		return shared.Storage("update sales invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("sales invoice", inv.ID)
	}
	return nil
}

func (r *txRepository) DeleteSalesInvoice(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM sales_invoices WHERE id=$1`, id)
	if err != nil {
		return shared.Storage("delete sales invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("sales invoice", id)
	}
	return nil
}
