package inventory

import (
	"context"
	"errors"
	"maps"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRepo struct {
	warehouses map[int64]WarehouseStock
	records    map[int64]Record
	changes    map[int64]Change
	profits    map[int64]CommodityProfit
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(warehouses ...WarehouseStock) *memoryRepo {
	repo := &memoryRepo{
		warehouses: make(map[int64]WarehouseStock),
		records:    make(map[int64]Record),
		changes:    make(map[int64]Change),
		profits:    make(map[int64]CommodityProfit),
	}
	for _, w := range warehouses {
		repo.warehouses[w.WarehouseID] = w
	}
	return repo
}

// WithTx restores the previous state when fn fails.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	records, changes, profits, nextID := maps.Clone(r.records), maps.Clone(r.changes), maps.Clone(r.profits), r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.records, r.changes, r.profits, r.nextID = records, changes, profits, nextID
		return err
	}
	return nil
}

func (r *memoryRepo) stock(key StockKey) int64 {
	var total int64
	for _, rec := range r.records {
		if rec.Key() == key {
			total += rec.Count
		}
	}
	return total
}

func (tx *memoryTx) LockStock(ctx context.Context, key StockKey) (int64, error) {
	return tx.repo.stock(key), nil
}

func (tx *memoryTx) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	tx.repo.nextID++
	rec.ID = tx.repo.nextID
	tx.repo.records[rec.ID] = rec
	return rec, nil
}

func (tx *memoryTx) GetRecord(ctx context.Context, id int64) (Record, error) {
	rec, ok := tx.repo.records[id]
	if !ok {
		return Record{}, shared.NotFound("inventory record", id)
	}
	return rec, nil
}

func (tx *memoryTx) DeleteRecord(ctx context.Context, id int64) error {
	if _, ok := tx.repo.records[id]; !ok {
		return shared.NotFound("inventory record", id)
	}
	delete(tx.repo.records, id)
	return nil
}

func (tx *memoryTx) UpdateRecordCount(ctx context.Context, id, count int64) error {
	rec, ok := tx.repo.records[id]
	if !ok {
		return shared.NotFound("inventory record", id)
	}
	rec.Count = count
	tx.repo.records[id] = rec
	return nil
}

func (tx *memoryTx) StockByWarehouse(ctx context.Context, productID int64, variant string) ([]WarehouseStock, error) {
	var out []WarehouseStock
	for _, w := range tx.repo.warehouses {
		row := w
		row.Count = tx.repo.stock(StockKey{ProductID: productID, Variant: variant, WarehouseID: w.WarehouseID})
		out = append(out, row)
	}
	return out, nil
}

func (tx *memoryTx) LatestPurchasePrice(ctx context.Context, productID int64, variant string) (decimal.Decimal, error) {
	var latest Record
	for _, rec := range tx.repo.records {
		if rec.ProductID != productID || rec.Variant != variant || rec.RefModule != RefPurchaseInvoice || rec.Count <= 0 {
			continue
		}
		if rec.DateTime.After(latest.DateTime) || (rec.DateTime.Equal(latest.DateTime) && rec.ID > latest.ID) {
			latest = rec
		}
	}
	return latest.Price.Purchase, nil
}

func (tx *memoryTx) InsertChange(ctx context.Context, change Change) (Change, error) {
	tx.repo.nextID++
	change.ID = tx.repo.nextID
	tx.repo.changes[change.ID] = change
	return change, nil
}

func (tx *memoryTx) GetChange(ctx context.Context, id int64) (Change, error) {
	change, ok := tx.repo.changes[id]
	if !ok {
		return Change{}, shared.NotFound("inventory change", id)
	}
	return change, nil
}

func (tx *memoryTx) DeleteChange(ctx context.Context, id int64) error {
	delete(tx.repo.changes, id)
	return nil
}

func (tx *memoryTx) InsertCommodityProfit(ctx context.Context, profit CommodityProfit) (CommodityProfit, error) {
	tx.repo.nextID++
	profit.ID = tx.repo.nextID
	tx.repo.profits[profit.ID] = profit
	return profit, nil
}

func (tx *memoryTx) DeleteCommodityProfits(ctx context.Context, refModule, refID string) error {
	for id, p := range tx.repo.profits {
		if p.RefModule == refModule && p.RefID == refID {
			delete(tx.repo.profits, id)
		}
	}
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func purchase(t *testing.T, svc *Service, warehouseID, productID, count int64, price string) {
	t.Helper()
	_, err := svc.RecordPurchase(context.Background(), Receipt{
		RefID:       "pi-1",
		WarehouseID: warehouseID,
		Lines:       []ReceiptLine{{ProductID: productID, Count: count, Price: Price{Purchase: dec(price)}}},
	})
	require.NoError(t, err)
}

func TestRecordPurchaseAvailability(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1, Retail: true}, WarehouseStock{WarehouseID: 2, OnlineSales: true})
	svc := NewService(repo, nil)
	ctx := context.Background()

	purchase(t, svc, 1, 10, 50, "4")

	avail, err := svc.Availability(ctx, 10, "", ChannelAny)
	require.NoError(t, err)
	require.Equal(t, int64(50), avail.Total)
	require.Equal(t, []WarehouseCount{{WarehouseID: 1, Count: 50}}, avail.Warehouses)

	online, err := svc.Availability(ctx, 10, "", ChannelOnlineSales)
	require.NoError(t, err)
	require.Zero(t, online.Total)
	require.Empty(t, online.Warehouses)

	_, err = svc.Availability(ctx, 10, "", Channel("wholesale"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestConsumeForSaleIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1, Retail: true})
	svc := NewService(repo, nil)
	ctx := context.Background()
	key := StockKey{ProductID: 10, WarehouseID: 1}

	purchase(t, svc, 1, 10, 50, "4")

	change, err := svc.ConsumeForSale(ctx, Sale{RefID: "si-1", Lines: []SaleLine{{ProductID: 10, WarehouseID: 1, Count: 20, Price: dec("7")}}})
	require.NoError(t, err)
	require.Equal(t, ChangeTypeStockSales, change.Type)
	require.Len(t, change.Entries, 1)
	require.Equal(t, int64(30), repo.stock(key))
	require.Len(t, repo.profits, 1)
	for _, p := range repo.profits {
		require.True(t, p.Amount.Equal(dec("60")))
	}

	records := len(repo.records)
	_, err = svc.ConsumeForSale(ctx, Sale{RefID: "si-2", Lines: []SaleLine{{ProductID: 10, WarehouseID: 1, Count: 40, Price: dec("7")}}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, int64(10), stockErr.ProductID)
	require.Equal(t, int64(1), stockErr.WarehouseID)
	require.Equal(t, int64(40), stockErr.Requested)
	require.Equal(t, int64(30), stockErr.Available)
	require.Equal(t, int64(30), repo.stock(key))
	require.Len(t, repo.records, records)
}

func TestConsumeForSaleAggregatesLinesPerPosition(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1})
	svc := NewService(repo, nil)

	purchase(t, svc, 1, 10, 10, "4")

	_, err := svc.ConsumeForSale(context.Background(), Sale{RefID: "si-1", Lines: []SaleLine{
		{ProductID: 10, WarehouseID: 1, Count: 6, Price: dec("5")},
		{ProductID: 10, WarehouseID: 1, Count: 6, Price: dec("5")},
	}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(10), repo.stock(StockKey{ProductID: 10, WarehouseID: 1}))
}

func TestTransferUndoRoundTrip(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1}, WarehouseStock{WarehouseID: 2})
	svc := NewService(repo, nil)
	ctx := context.Background()

	purchase(t, svc, 1, 10, 20, "3")
	purchase(t, svc, 2, 10, 4, "3")
	before, err := svc.Availability(ctx, 10, "", ChannelAny)
	require.NoError(t, err)

	result, err := svc.Transfer(ctx, TransferInput{ProductID: 10, SrcWarehouse: 1, DstWarehouse: 2, Count: 5})
	require.NoError(t, err)
	require.Equal(t, int64(-5), result.Out.Count)
	require.Equal(t, int64(5), result.In.Count)
	require.Len(t, result.Change.Entries, 2)

	moved, err := svc.Availability(ctx, 10, "", ChannelAny)
	require.NoError(t, err)
	require.Equal(t, []WarehouseCount{{WarehouseID: 1, Count: 15}, {WarehouseID: 2, Count: 9}}, moved.Warehouses)

	require.NoError(t, svc.Undo(ctx, result.Change.ID))
	after, err := svc.Availability(ctx, 10, "", ChannelAny)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Empty(t, repo.changes)
}

func TestTransferValidation(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1}, WarehouseStock{WarehouseID: 2})
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Transfer(ctx, TransferInput{ProductID: 10, SrcWarehouse: 1, DstWarehouse: 1, Count: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Transfer(ctx, TransferInput{ProductID: 10, SrcWarehouse: 1, DstWarehouse: 2, Count: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Transfer(ctx, TransferInput{ProductID: 10, SrcWarehouse: 1, DstWarehouse: 2, Count: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, repo.records)
}

func TestTransferCodeIsIdempotent(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1}, WarehouseStock{WarehouseID: 2})
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := NewService(repo, idem)
	ctx := context.Background()

	purchase(t, svc, 1, 10, 3, "3")

	// a failed attempt releases the code
	_, err := svc.Transfer(ctx, TransferInput{Code: "TRF-9", ProductID: 10, SrcWarehouse: 1, DstWarehouse: 2, Count: 5})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = svc.Transfer(ctx, TransferInput{Code: "TRF-9", ProductID: 10, SrcWarehouse: 1, DstWarehouse: 2, Count: 2})
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferInput{Code: "TRF-9", ProductID: 10, SrcWarehouse: 1, DstWarehouse: 2, Count: 1})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, int64(1), repo.stock(StockKey{ProductID: 10, WarehouseID: 1}))
}

func TestUndoRechecksStockItWouldLower(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1}, WarehouseStock{WarehouseID: 2})
	svc := NewService(repo, nil)
	ctx := context.Background()

	purchase(t, svc, 1, 10, 10, "3")
	result, err := svc.Transfer(ctx, TransferInput{ProductID: 10, SrcWarehouse: 1, DstWarehouse: 2, Count: 6})
	require.NoError(t, err)
	_, err = svc.ConsumeForSale(ctx, Sale{RefID: "si-1", Lines: []SaleLine{{ProductID: 10, WarehouseID: 2, Count: 4, Price: dec("5")}}})
	require.NoError(t, err)

	err = svc.Undo(ctx, result.Change.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(2), repo.stock(StockKey{ProductID: 10, WarehouseID: 2}))
	require.Contains(t, repo.changes, result.Change.ID)
}

func TestSaleChangeIsReplayedOnlyInsideInvoiceWork(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1})
	svc := NewService(repo, nil)
	ctx := context.Background()

	purchase(t, svc, 1, 10, 10, "3")
	change, err := svc.ConsumeForSale(ctx, Sale{RefID: "si-1", Lines: []SaleLine{{ProductID: 10, WarehouseID: 1, Count: 4, Price: dec("5")}}})
	require.NoError(t, err)
	require.NotEmpty(t, repo.profits)

	err = svc.Undo(ctx, change.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.NotEmpty(t, repo.profits)
	require.Equal(t, int64(6), repo.stock(StockKey{ProductID: 10, WarehouseID: 1}))

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return svc.UndoTx(ctx, tx, change.ID)
	}))
	require.Empty(t, repo.profits)
	require.Equal(t, int64(10), repo.stock(StockKey{ProductID: 10, WarehouseID: 1}))
}

func TestUndoRestoresUpdatedCount(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1})
	svc := NewService(repo, nil)
	ctx := context.Background()

	repo.records[1] = Record{ID: 1, ProductID: 10, WarehouseID: 1, Count: 8, RefModule: RefPurchaseInvoice}
	repo.changes[2] = Change{ID: 2, Type: ChangeTypeStockTransfer, Entries: []ChangeEntry{
		{Operation: OperationUpdate, Field: FieldCount, OldValue: 5, NewValue: 8, InventoryID: 1},
	}}
	repo.nextID = 2

	require.NoError(t, svc.Undo(ctx, 2))
	require.Equal(t, int64(5), repo.records[1].Count)

	repo.changes[3] = Change{ID: 3, Type: ChangeTypeStockTransfer, Entries: []ChangeEntry{
		{Operation: OperationUpdate, Field: "price", OldValue: 1, InventoryID: 1},
	}}
	require.ErrorIs(t, svc.Undo(ctx, 3), shared.ErrValidation)
}

func TestRevisePurchaseAppendsDeltas(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1})
	svc := NewService(repo, nil)
	ctx := context.Background()
	key := StockKey{ProductID: 10, WarehouseID: 1}

	old := Receipt{RefID: "pi-1", WarehouseID: 1, Lines: []ReceiptLine{{ProductID: 10, Count: 10, Price: Price{Purchase: dec("3")}}}}
	_, err := svc.RecordPurchase(ctx, old)
	require.NoError(t, err)
	original := repo.records[1]

	next := old
	next.Lines = []ReceiptLine{{ProductID: 10, Count: 7, Price: Price{Purchase: dec("3")}}}
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		records, err := svc.RevisePurchaseTx(ctx, tx, old, next)
		require.Len(t, records, 1)
		require.Equal(t, int64(-3), records[0].Count)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), repo.stock(key))
	require.Equal(t, original, repo.records[1])

	_, err = svc.ConsumeForSale(ctx, Sale{RefID: "si-1", Lines: []SaleLine{{ProductID: 10, WarehouseID: 1, Count: 5, Price: dec("5")}}})
	require.NoError(t, err)
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := svc.RevisePurchaseTx(ctx, tx, next, Receipt{RefID: "pi-1"})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(2), repo.stock(key))
}

func TestCheckAvailabilityIsAdvisory(t *testing.T) {
	repo := newMemoryRepo(WarehouseStock{WarehouseID: 1})
	svc := NewService(repo, nil)
	ctx := context.Background()

	purchase(t, svc, 1, 10, 5, "3")
	records := len(repo.records)

	require.NoError(t, svc.CheckAvailability(ctx, []Demand{{Key: StockKey{ProductID: 10, WarehouseID: 1}, Count: 5}}))
	err := svc.CheckAvailability(ctx, []Demand{
		{Key: StockKey{ProductID: 10, WarehouseID: 1}, Count: 3},
		{Key: StockKey{ProductID: 10, WarehouseID: 1}, Count: 3},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Len(t, repo.records, records)
}

func TestAggregateDemandsSortsByKey(t *testing.T) {
	out := AggregateDemands([]Demand{
		{Key: StockKey{ProductID: 2, WarehouseID: 1}, Count: 1},
		{Key: StockKey{ProductID: 1, Variant: "red", WarehouseID: 2}, Count: 2},
		{Key: StockKey{ProductID: 1, WarehouseID: 3}, Count: 3},
		{Key: StockKey{ProductID: 2, WarehouseID: 1}, Count: 4},
	})
	require.Equal(t, []Demand{
		{Key: StockKey{ProductID: 1, WarehouseID: 3}, Count: 3},
		{Key: StockKey{ProductID: 1, Variant: "red", WarehouseID: 2}, Count: 2},
		{Key: StockKey{ProductID: 2, WarehouseID: 1}, Count: 5},
	}, out)
}
