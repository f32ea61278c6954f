package inventory

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Reference modules stamped on inventory records.
const (
	RefPurchaseInvoice = "purchase-invoice"
	RefSalesInvoice    = "sales-invoice"
	RefStockTransfer   = "stock-transfer"
)

// RecordStatusActive marks a live record. Records are deleted, never deactivated.
const RecordStatusActive = "active"

// Channel restricts availability to warehouses serving a sales channel.
type Channel string

const (
	ChannelAny         Channel = ""
	ChannelRetail      Channel = "retail"
	ChannelOnlineSales Channel = "online_sales"
)

// ChangeType enumerates reversible change logs.
type ChangeType string

const (
	ChangeTypeStockTransfer ChangeType = "stock-transfer"
	ChangeTypeStockSales    ChangeType = "stock-sales"
)

// Operation enumerates change log entry operations.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
)

// FieldCount is the only record field an update entry may restore.
const FieldCount = "count"

// Price is the per-unit price snapshot stored on a record.
type Price struct {
	Purchase decimal.Decimal `json:"purchase"`
	Consumer decimal.Decimal `json:"consumer"`
	Store    decimal.Decimal `json:"store"`
}

// StockKey identifies one stock position.
type StockKey struct {
	ProductID   int64
	Variant     string
	WarehouseID int64
}

func compareKeys(a, b StockKey) int {
	if c := cmp.Compare(a.ProductID, b.ProductID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Variant, b.Variant); c != 0 {
		return c
	}
	return cmp.Compare(a.WarehouseID, b.WarehouseID)
}

// Record is an immutable signed stock delta.
type Record struct {
	ID          int64
	DateTime    time.Time
	ProductID   int64
	Variant     string
	WarehouseID int64
	RefModule   string
	RefID       string
	Price       Price
	Count       int64
	Status      string
}

// Key returns the stock position the record moves.
func (r Record) Key() StockKey {
	return StockKey{ProductID: r.ProductID, Variant: r.Variant, WarehouseID: r.WarehouseID}
}

// ChangeEntry is one reversible step of a change log.
type ChangeEntry struct {
	Operation   Operation
	Field       string
	OldValue    int64
	NewValue    int64
	InventoryID int64
}

// Change lets a later delete undo exactly what a transfer or sale did.
type Change struct {
	ID        int64
	Type      ChangeType
	RefID     string
	Entries   []ChangeEntry
	CreatedAt time.Time
}

// WarehouseStock is the stock of one product variant in one warehouse.
type WarehouseStock struct {
	WarehouseID int64
	Retail      bool
	OnlineSales bool
	Count       int64
}

// Serves reports whether the warehouse sells through channel.
func (w WarehouseStock) Serves(channel Channel) bool {
	switch channel {
	case ChannelRetail:
		return w.Retail
	case ChannelOnlineSales:
		return w.OnlineSales
	default:
		return true
	}
}

// WarehouseCount is one row of an availability answer.
type WarehouseCount struct {
	WarehouseID int64 `json:"warehouse_id"`
	Count       int64 `json:"count"`
}

// Availability is the sellable stock of a product variant.
type Availability struct {
	ProductID  int64            `json:"product_id"`
	Variant    string           `json:"variant,omitempty"`
	Total      int64            `json:"total"`
	Warehouses []WarehouseCount `json:"warehouses"`
}

// CommodityProfit records the margin realised by one sale record.
type CommodityProfit struct {
	ID          int64
	ProductID   int64
	Variant     string
	RefModule   string
	RefID       string
	InventoryID int64
	Count       int64
	Amount      decimal.Decimal
}

// ReceiptLine is one received product line.
type ReceiptLine struct {
	ProductID int64
	Variant   string
	Count     int64
	Price     Price
}

// Receipt describes stock arriving at one warehouse.
type Receipt struct {
	RefModule   string
	RefID       string
	WarehouseID int64
	DateTime    time.Time
	Lines       []ReceiptLine
}

// SaleLine is one sold product line.
type SaleLine struct {
	ProductID   int64
	Variant     string
	WarehouseID int64
	Count       int64
	Price       decimal.Decimal
}

// Sale describes stock leaving for a sales invoice.
type Sale struct {
	RefID    string
	DateTime time.Time
	Lines    []SaleLine
}

// Demand asks for Count units at Key.
type Demand struct {
	Key   StockKey
	Count int64
}

// TransferInput describes a transfer between warehouses.
type TransferInput struct {
	Code         string
	ProductID    int64
	Variant      string
	SrcWarehouse int64
	DstWarehouse int64
	Count        int64
	DateTime     time.Time
}

// TransferResult returns the written records and change log.
type TransferResult struct {
	Change Change
	Out    Record
	In     Record
}

// Demands converts sale lines to demands.
func (s Sale) Demands() []Demand {
	out := make([]Demand, 0, len(s.Lines))
	for _, line := range s.Lines {
		out = append(out, Demand{
			Key:   StockKey{ProductID: line.ProductID, Variant: line.Variant, WarehouseID: line.WarehouseID},
			Count: line.Count,
		})
	}
	return out
}

// AggregateDemands sums demands per key and returns them in lock order.
func AggregateDemands(demands []Demand) []Demand {
	totals := make(map[StockKey]int64, len(demands))
	for _, d := range demands {
		totals[d.Key] += d.Count
	}
	out := make([]Demand, 0, len(totals))
	for key, count := range totals {
		out = append(out, Demand{Key: key, Count: count})
	}
	slices.SortFunc(out, func(a, b Demand) int { return compareKeys(a.Key, b.Key) })
	return out
}

func validateKey(key StockKey) error {
	if key.ProductID <= 0 {
		return shared.Validation("product required")
	}
	if key.WarehouseID <= 0 {
		return shared.Validation("warehouse required")
	}
	return nil
}

func validatePrice(p Price) error {
	if p.Purchase.IsNegative() || p.Consumer.IsNegative() || p.Store.IsNegative() {
		return shared.Validation("price must be >= 0")
	}
	return nil
}

// Validate checks the receipt before any record is written.
func (r Receipt) Validate() error {
	if r.WarehouseID <= 0 {
		return shared.Validation("receipt warehouse required")
	}
	for idx, line := range r.Lines {
		if line.ProductID <= 0 {
			return shared.Validation("receipt line %d product required", idx)
		}
		if line.Count <= 0 {
			return shared.Validation("receipt line %d count must be > 0", idx)
		}
		if err := validatePrice(line.Price); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the sale before any stock is locked.
func (s Sale) Validate() error {
	if len(s.Lines) == 0 {
		return shared.Validation("sale requires at least one line")
	}
	for idx, line := range s.Lines {
		if err := validateKey(StockKey{ProductID: line.ProductID, WarehouseID: line.WarehouseID}); err != nil {
			return shared.Validation("sale line %d: %v", idx, err)
		}
		if line.Count <= 0 {
			return shared.Validation("sale line %d count must be > 0", idx)
		}
		if line.Price.IsNegative() {
			return shared.Validation("sale line %d price must be >= 0", idx)
		}
	}
	return nil
}

// Validate checks transfer input.
func (in TransferInput) Validate() error {
	if in.ProductID <= 0 {
		return shared.Validation("transfer product required")
	}
	if in.SrcWarehouse <= 0 || in.DstWarehouse <= 0 {
		return shared.Validation("transfer warehouses required")
	}
	if in.SrcWarehouse == in.DstWarehouse {
		return shared.Validation("source and destination warehouse must differ")
	}
	if in.Count <= 0 {
		return shared.Validation("transfer count must be > 0")
	}
	return nil
}
