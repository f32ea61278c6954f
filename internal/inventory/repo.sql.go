package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the inventory queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// DriftRow is a stock position whose maintained balance disagrees with its records.
type DriftRow struct {
	Key      StockKey
	Balance  int64
	Recorded int64
}

// FindStockDrift compares inventory_balances against the sum of records.
func (r *Repository) FindStockDrift(ctx context.Context) ([]DriftRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(s.product_id, b.product_id), COALESCE(s.variant, b.variant), COALESCE(s.warehouse_id, b.warehouse_id),
	COALESCE(b.qty, 0), COALESCE(s.total, 0)
FROM (
	SELECT product_id, variant, warehouse_id, SUM(count)::BIGINT AS total
	FROM inventories
	GROUP BY product_id, variant, warehouse_id
) s
FULL OUTER JOIN inventory_balances b
	ON b.product_id = s.product_id AND b.variant = s.variant AND b.warehouse_id = s.warehouse_id
WHERE COALESCE(b.qty, 0) <> COALESCE(s.total, 0)
ORDER BY 1, 2, 3`)
	if err != nil {
		return nil, shared.Storage("query stock drift", err)
	}
	defer rows.Close()
	var out []DriftRow
	for rows.Next() {
		var row DriftRow
		if err := rows.Scan(&row.Key.ProductID, &row.Key.Variant, &row.Key.WarehouseID, &row.Balance, &row.Recorded); err != nil {
			return nil, shared.Storage("scan stock drift", err)
		}
		out = append(out, row)
	}
	return out, shared.Storage("iterate stock drift", rows.Err())
}

// ResetBalance overwrites a drifted balance with the recorded sum.
func (r *Repository) ResetBalance(ctx context.Context, key StockKey, qty int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO inventory_balances (product_id, variant, warehouse_id, qty, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (product_id, variant, warehouse_id) DO UPDATE SET qty = EXCLUDED.qty, updated_at = NOW()`,
		key.ProductID, key.Variant, key.WarehouseID, qty)
	return shared.Storage("reset inventory balance", err)
}

func (r *txRepo) LockStock(ctx context.Context, key StockKey) (int64, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (product_id, variant, warehouse_id, qty, updated_at)
VALUES ($1,$2,$3,0,NOW()) ON CONFLICT (product_id, variant, warehouse_id) DO NOTHING`,
		key.ProductID, key.Variant, key.WarehouseID); err != nil {
		return 0, shared.Storage("ensure inventory balance", err)
	}
	var qty int64
	err := r.tx.QueryRow(ctx, `SELECT qty FROM inventory_balances
WHERE product_id=$1 AND variant=$2 AND warehouse_id=$3 FOR UPDATE`, key.ProductID, key.Variant, key.WarehouseID).Scan(&qty)
	if err != nil {
		return 0, shared.Storage("lock inventory balance", err)
	}
	return qty, nil
}

func (r *txRepo) addBalance(ctx context.Context, key StockKey, delta int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (product_id, variant, warehouse_id, qty, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (product_id, variant, warehouse_id) DO UPDATE SET qty = inventory_balances.qty + EXCLUDED.qty, updated_at = NOW()`,
		key.ProductID, key.Variant, key.WarehouseID, delta)
	return shared.Storage("update inventory balance", err)
}

func (r *txRepo) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventories (date_time, product_id, variant, warehouse_id, ref_module, ref_id,
	purchase_price, consumer_price, store_price, count, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		rec.DateTime, rec.ProductID, rec.Variant, rec.WarehouseID, rec.RefModule, rec.RefID,
		rec.Price.Purchase, rec.Price.Consumer, rec.Price.Store, rec.Count, rec.Status).Scan(&rec.ID)
	if err != nil {
		return Record{}, shared.Storage("insert inventory record", err)
	}
	if err := r.addBalance(ctx, rec.Key(), rec.Count); err != nil {
		return Record{}, err
	}
	return rec, nil
}

const recordColumns = `id, date_time, product_id, variant, warehouse_id, ref_module, ref_id, purchase_price, consumer_price, store_price, count, status`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.DateTime, &rec.ProductID, &rec.Variant, &rec.WarehouseID, &rec.RefModule, &rec.RefID,
		&rec.Price.Purchase, &rec.Price.Consumer, &rec.Price.Store, &rec.Count, &rec.Status)
	return rec, err
}

func (r *txRepo) GetRecord(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventories WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, shared.NotFound("inventory record", id)
	}
	if err != nil {
		return Record{}, shared.Storage("get inventory record", err)
	}
	return rec, nil
}

func (r *txRepo) DeleteRecord(ctx context.Context, id int64) error {
	var key StockKey
	var count int64
	err := r.tx.QueryRow(ctx, `DELETE FROM inventories WHERE id=$1 RETURNING product_id, variant, warehouse_id, count`, id).
		Scan(&key.ProductID, &key.Variant, &key.WarehouseID, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound("inventory record", id)
	}
	if err != nil {
		return shared.Storage("delete inventory record", err)
	}
	return r.addBalance(ctx, key, -count)
}

func (r *txRepo) UpdateRecordCount(ctx context.Context, id, count int64) error {
	var key StockKey
	var old int64
	err := r.tx.QueryRow(ctx, `SELECT product_id, variant, warehouse_id, count FROM inventories WHERE id=$1 FOR UPDATE`, id).
		Scan(&key.ProductID, &key.Variant, &key.WarehouseID, &old)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound("inventory record", id)
	}
	if err != nil {
		return shared.Storage("get inventory record", err)
	}
	if _, err := r.tx.Exec(ctx, `UPDATE inventories SET count=$2 WHERE id=$1`, id, count); err != nil {
		return shared.Storage("update inventory record", err)
	}
	return r.addBalance(ctx, key, count-old)
}

func (r *txRepo) StockByWarehouse(ctx context.Context, productID int64, variant string) ([]WarehouseStock, error) {
	rows, err := r.tx.Query(ctx, `SELECT w.id, w.retail, w.online_sales, b.qty
FROM inventory_balances b
JOIN warehouses w ON w.id = b.warehouse_id
WHERE b.product_id=$1 AND b.variant=$2
ORDER BY w.id`, productID, variant)
	if err != nil {
		return nil, shared.Storage("query stock by warehouse", err)
	}
	defer rows.Close()
	var out []WarehouseStock
	for rows.Next() {
		var row WarehouseStock
		if err := rows.Scan(&row.WarehouseID, &row.Retail, &row.OnlineSales, &row.Count); err != nil {
			return nil, shared.Storage("scan stock by warehouse", err)
		}
		out = append(out, row)
	}
	return out, shared.Storage("iterate stock by warehouse", rows.Err())
}

func (r *txRepo) LatestPurchasePrice(ctx context.Context, productID int64, variant string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT purchase_price FROM inventories
WHERE product_id=$1 AND variant=$2 AND ref_module=$3 AND count > 0
ORDER BY date_time DESC, id DESC LIMIT 1`, productID, variant, RefPurchaseInvoice).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, shared.Storage("latest purchase price", err)
	}
	return price, nil
}

type changeEntryRow struct {
	Operation   Operation `json:"operation"`
	Field       string    `json:"field,omitempty"`
	OldValue    int64     `json:"old_value,omitempty"`
	NewValue    int64     `json:"new_value,omitempty"`
	InventoryID int64     `json:"inventory_id"`
}

func (r *txRepo) InsertChange(ctx context.Context, change Change) (Change, error) {
	rows := make([]changeEntryRow, 0, len(change.Entries))
	for _, entry := range change.Entries {
		rows = append(rows, changeEntryRow(entry))
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_changes (change_type, ref_id, entries, created_at)
VALUES ($1,$2,$3,$4) RETURNING id`, string(change.Type), change.RefID, rows, change.CreatedAt).Scan(&change.ID)
	if err != nil {
		return Change{}, shared.Storage("insert inventory change", err)
	}
	return change, nil
}

func (r *txRepo) GetChange(ctx context.Context, id int64) (Change, error) {
	var change Change
	var rows []changeEntryRow
	err := r.tx.QueryRow(ctx, `SELECT id, change_type, ref_id, entries, created_at FROM inventory_changes WHERE id=$1 FOR UPDATE`, id).
		Scan(&change.ID, &change.Type, &change.RefID, &rows, &change.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Change{}, shared.NotFound("inventory change", id)
	}
	if err != nil {
		return Change{}, shared.Storage("get inventory change", err)
	}
	change.Entries = make([]ChangeEntry, 0, len(rows))
	for _, row := range rows {
		change.Entries = append(change.Entries, ChangeEntry(row))
	}
	return change, nil
}

func (r *txRepo) DeleteChange(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM inventory_changes WHERE id=$1`, id)
	if err != nil {
		return shared.Storage("delete inventory change", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("inventory change", id)
	}
	return nil
}

func (r *txRepo) InsertCommodityProfit(ctx context.Context, profit CommodityProfit) (CommodityProfit, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO commodity_profits (product_id, variant, ref_module, ref_id, inventory_id, count, amount)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		profit.ProductID, profit.Variant, profit.RefModule, profit.RefID, profit.InventoryID, profit.Count, profit.Amount).Scan(&profit.ID)
	if err != nil {
		return CommodityProfit{}, shared.Storage("insert commodity profit", err)
	}
	return profit, nil
}

func (r *txRepo) DeleteCommodityProfits(ctx context.Context, refModule, refID string) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM commodity_profits WHERE ref_module=$1 AND ref_id=$2`, refModule, refID)
	return shared.Storage("delete commodity profits", err)
}
