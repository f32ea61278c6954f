package inventory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	now         func() time.Time
}

// NewService builds Service. idem may be nil.
func NewService(repo RepositoryPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, idempotency: idem, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// RecordPurchase appends one positive record per receipt line.
func (s *Service) RecordPurchase(ctx context.Context, receipt Receipt) ([]Record, error) {
	var records []Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		records, err = s.RecordPurchaseTx(ctx, tx, receipt)
		return err
	})
	return records, err
}

// RecordPurchaseTx is RecordPurchase inside the caller's unit of work.
func (s *Service) RecordPurchaseTx(ctx context.Context, tx TxRepository, receipt Receipt) ([]Record, error) {
	if err := receipt.Validate(); err != nil {
		return nil, err
	}
	refModule := receipt.RefModule
	if refModule == "" {
		refModule = RefPurchaseInvoice
	}
	dateTime := s.stamp(receipt.DateTime)
	records := make([]Record, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		rec, err := tx.InsertRecord(ctx, Record{
			DateTime:    dateTime,
			ProductID:   line.ProductID,
			Variant:     line.Variant,
			WarehouseID: receipt.WarehouseID,
			RefModule:   refModule,
			RefID:       receipt.RefID,
			Price:       line.Price,
			Count:       line.Count,
			Status:      RecordStatusActive,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// RevisePurchaseTx moves stock from what old received to what next receives by
// appending one signed delta record per changed position. An empty next
// compensates the whole of old.
func (s *Service) RevisePurchaseTx(ctx context.Context, tx TxRepository, old, next Receipt) ([]Record, error) {
	if len(next.Lines) > 0 {
		if err := next.Validate(); err != nil {
			return nil, err
		}
	}
	deltas := make(map[StockKey]int64)
	prices := make(map[StockKey]Price)
	for _, line := range old.Lines {
		key := StockKey{ProductID: line.ProductID, Variant: line.Variant, WarehouseID: old.WarehouseID}
		deltas[key] -= line.Count
		prices[key] = line.Price
	}
	for _, line := range next.Lines {
		key := StockKey{ProductID: line.ProductID, Variant: line.Variant, WarehouseID: next.WarehouseID}
		deltas[key] += line.Count
		prices[key] = line.Price
	}
	keys := make([]StockKey, 0, len(deltas))
	for key, delta := range deltas {
		if delta != 0 {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, compareKeys)

	ref := next
	if ref.RefID == "" {
		ref = old
	}
	refModule := ref.RefModule
	if refModule == "" {
		refModule = RefPurchaseInvoice
	}
	dateTime := s.now()
	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		delta := deltas[key]
		if delta < 0 {
			if err := s.reserve(ctx, tx, key, -delta); err != nil {
				return nil, err
			}
		}
		rec, err := tx.InsertRecord(ctx, Record{
			DateTime:    dateTime,
			ProductID:   key.ProductID,
			Variant:     key.Variant,
			WarehouseID: key.WarehouseID,
			RefModule:   refModule,
			RefID:       ref.RefID,
			Price:       prices[key],
			Count:       delta,
			Status:      RecordStatusActive,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Availability sums the stock of a product variant per warehouse, limited to
// warehouses serving channel when one is given.
func (s *Service) Availability(ctx context.Context, productID int64, variant string, channel Channel) (Availability, error) {
	if productID <= 0 {
		return Availability{}, shared.Validation("product required")
	}
	switch channel {
	case ChannelAny, ChannelRetail, ChannelOnlineSales:
	default:
		return Availability{}, shared.Validation("unknown sales channel %q", channel)
	}
	out := Availability{ProductID: productID, Variant: variant, Warehouses: []WarehouseCount{}}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.StockByWarehouse(ctx, productID, variant)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if !row.Serves(channel) || row.Count == 0 {
				continue
			}
			out.Total += row.Count
			out.Warehouses = append(out.Warehouses, WarehouseCount{WarehouseID: row.WarehouseID, Count: row.Count})
		}
		return nil
	})
	if err != nil {
		return Availability{}, err
	}
	slices.SortFunc(out.Warehouses, func(a, b WarehouseCount) int { return cmp.Compare(a.WarehouseID, b.WarehouseID) })
	return out, nil
}

// CheckAvailability is the advisory check made when a sales invoice is drafted.
func (s *Service) CheckAvailability(ctx context.Context, demands []Demand) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.CheckAvailabilityTx(ctx, tx, demands)
	})
}

// CheckAvailabilityTx reads stock without locking and never mutates.
func (s *Service) CheckAvailabilityTx(ctx context.Context, tx TxRepository, demands []Demand) error {
	type productVariant struct {
		productID int64
		variant   string
	}
	cache := make(map[productVariant][]WarehouseStock)
	for _, d := range AggregateDemands(demands) {
		if err := validateKey(d.Key); err != nil {
			return err
		}
		if d.Count <= 0 {
			return shared.Validation("requested count must be > 0")
		}
		pv := productVariant{productID: d.Key.ProductID, variant: d.Key.Variant}
		rows, ok := cache[pv]
		if !ok {
			var err error
			rows, err = tx.StockByWarehouse(ctx, pv.productID, pv.variant)
			if err != nil {
				return err
			}
			cache[pv] = rows
		}
		var available int64
		for _, row := range rows {
			if row.WarehouseID == d.Key.WarehouseID {
				available = row.Count
				break
			}
		}
		if available < d.Count {
			return shortfall(d.Key, d.Count, available)
		}
	}
	return nil
}

// ConsumeForSale takes the sale's stock out, all lines or none.
func (s *Service) ConsumeForSale(ctx context.Context, sale Sale) (Change, error) {
	var change Change
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		change, err = s.ConsumeForSaleTx(ctx, tx, sale)
		return err
	})
	return change, err
}

// ConsumeForSaleTx locks every demanded position in key order, re-verifies the
// stock and only then appends the negative records, the change log and the
// commodity profit rows.
func (s *Service) ConsumeForSaleTx(ctx context.Context, tx TxRepository, sale Sale) (Change, error) {
	if err := sale.Validate(); err != nil {
		return Change{}, err
	}
	for _, d := range AggregateDemands(sale.Demands()) {
		if err := s.reserve(ctx, tx, d.Key, d.Count); err != nil {
			return Change{}, err
		}
	}

	purchasePrices := make(map[StockKey]decimal.Decimal)
	dateTime := s.stamp(sale.DateTime)
	entries := make([]ChangeEntry, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		pv := StockKey{ProductID: line.ProductID, Variant: line.Variant}
		purchase, ok := purchasePrices[pv]
		if !ok {
			var err error
			purchase, err = tx.LatestPurchasePrice(ctx, line.ProductID, line.Variant)
			if err != nil {
				return Change{}, err
			}
			purchasePrices[pv] = purchase
		}
		rec, err := tx.InsertRecord(ctx, Record{
			DateTime:    dateTime,
			ProductID:   line.ProductID,
			Variant:     line.Variant,
			WarehouseID: line.WarehouseID,
			RefModule:   RefSalesInvoice,
			RefID:       sale.RefID,
			Price:       Price{Purchase: purchase, Consumer: line.Price},
			Count:       -line.Count,
			Status:      RecordStatusActive,
		})
		if err != nil {
			return Change{}, err
		}
		if _, err := tx.InsertCommodityProfit(ctx, CommodityProfit{
			ProductID:   line.ProductID,
			Variant:     line.Variant,
			RefModule:   RefSalesInvoice,
			RefID:       sale.RefID,
			InventoryID: rec.ID,
			Count:       line.Count,
			Amount:      shared.RoundMoney(line.Price.Sub(purchase).Mul(decimal.NewFromInt(line.Count))),
		}); err != nil {
			return Change{}, err
		}
		entries = append(entries, ChangeEntry{Operation: OperationInsert, InventoryID: rec.ID})
	}
	return tx.InsertChange(ctx, Change{
		Type:      ChangeTypeStockSales,
		RefID:     sale.RefID,
		Entries:   entries,
		CreatedAt: s.now(),
	})
}

// Transfer moves stock between warehouses. A repeated code is rejected when an
// idempotency store is configured.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := in.Validate(); err != nil {
		return TransferResult{}, err
	}
	if in.Code == "" {
		in.Code = "TRF-" + uuid.NewString()
	}
	key := "transfer:" + in.Code
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return TransferResult{}, err
		}
		insertedKey = true
	}
	var result TransferResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.TransferTx(ctx, tx, in)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return TransferResult{}, err
	}
	return result, nil
}

// TransferTx is Transfer inside the caller's unit of work.
func (s *Service) TransferTx(ctx context.Context, tx TxRepository, in TransferInput) (TransferResult, error) {
	if err := in.Validate(); err != nil {
		return TransferResult{}, err
	}
	if in.Code == "" {
		in.Code = "TRF-" + uuid.NewString()
	}
	src := StockKey{ProductID: in.ProductID, Variant: in.Variant, WarehouseID: in.SrcWarehouse}
	dst := StockKey{ProductID: in.ProductID, Variant: in.Variant, WarehouseID: in.DstWarehouse}
	keys := []StockKey{src, dst}
	slices.SortFunc(keys, compareKeys)
	var available int64
	for _, key := range keys {
		stock, err := tx.LockStock(ctx, key)
		if err != nil {
			return TransferResult{}, err
		}
		if key == src {
			available = stock
		}
	}
	if available < in.Count {
		return TransferResult{}, shortfall(src, in.Count, available)
	}
	purchase, err := tx.LatestPurchasePrice(ctx, in.ProductID, in.Variant)
	if err != nil {
		return TransferResult{}, err
	}
	dateTime := s.stamp(in.DateTime)
	base := Record{
		DateTime:  dateTime,
		ProductID: in.ProductID,
		Variant:   in.Variant,
		RefModule: RefStockTransfer,
		RefID:     in.Code,
		Price:     Price{Purchase: purchase},
		Status:    RecordStatusActive,
	}
	outRec := base
	outRec.WarehouseID = in.SrcWarehouse
	outRec.Count = -in.Count
	outRec, err = tx.InsertRecord(ctx, outRec)
	if err != nil {
		return TransferResult{}, err
	}
	inRec := base
	inRec.WarehouseID = in.DstWarehouse
	inRec.Count = in.Count
	inRec, err = tx.InsertRecord(ctx, inRec)
	if err != nil {
		return TransferResult{}, err
	}
	change, err := tx.InsertChange(ctx, Change{
		Type:  ChangeTypeStockTransfer,
		RefID: in.Code,
		Entries: []ChangeEntry{
			{Operation: OperationInsert, InventoryID: outRec.ID},
			{Operation: OperationInsert, InventoryID: inRec.ID},
		},
		CreatedAt: s.now(),
	})
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Change: change, Out: outRec, In: inRec}, nil
}

// Undo replays a change log backwards and removes it. Sale logs belong to
// their sales invoice and are replayed only when the invoice is edited or
// deleted.
func (s *Service) Undo(ctx context.Context, changeID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		change, err := tx.GetChange(ctx, changeID)
		if err != nil {
			return err
		}
		if change.Type == ChangeTypeStockSales {
			return shared.Conflict("inventory change", changeID, "stock consumed by sales invoice %s is restored by deleting the invoice", change.RefID)
		}
		return s.UndoTx(ctx, tx, changeID)
	})
}

// UndoTx is Undo inside the caller's unit of work. Steps that lower stock are
// checked against the locked balance like any other decrement.
func (s *Service) UndoTx(ctx context.Context, tx TxRepository, changeID int64) error {
	change, err := tx.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	for i := len(change.Entries) - 1; i >= 0; i-- {
		entry := change.Entries[i]
		rec, err := tx.GetRecord(ctx, entry.InventoryID)
		if err != nil {
			return err
		}
		switch entry.Operation {
		case OperationInsert:
			if rec.Count > 0 {
				if err := s.reserve(ctx, tx, rec.Key(), rec.Count); err != nil {
					return err
				}
			}
			if err := tx.DeleteRecord(ctx, rec.ID); err != nil {
				return err
			}
		case OperationUpdate:
			if entry.Field != FieldCount {
				return shared.Validation("change %d: cannot restore field %q", change.ID, entry.Field)
			}
			if delta := entry.OldValue - rec.Count; delta < 0 {
				if err := s.reserve(ctx, tx, rec.Key(), -delta); err != nil {
					return err
				}
			}
			if err := tx.UpdateRecordCount(ctx, rec.ID, entry.OldValue); err != nil {
				return err
			}
		default:
			return shared.Validation("change %d: unknown operation %q", change.ID, entry.Operation)
		}
	}
	if change.Type == ChangeTypeStockSales {
		if err := tx.DeleteCommodityProfits(ctx, RefSalesInvoice, change.RefID); err != nil {
			return err
		}
	}
	return tx.DeleteChange(ctx, change.ID)
}

// reserve locks key and fails unless count units are on hand.
func (s *Service) reserve(ctx context.Context, tx TxRepository, key StockKey, count int64) error {
	available, err := tx.LockStock(ctx, key)
	if err != nil {
		return err
	}
	if available < count {
		return shortfall(key, count, available)
	}
	return nil
}

func shortfall(key StockKey, requested, available int64) error {
	return &shared.InsufficientStockError{
		ProductID:   key.ProductID,
		Variant:     key.Variant,
		WarehouseID: key.WarehouseID,
		Requested:   requested,
		Available:   available,
	}
}
