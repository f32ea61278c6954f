package invoicing

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ReasonOperation tells whether an adjustment adds to or subtracts from the total.
type ReasonOperation string

const (
	OperationAdd      ReasonOperation = "add"
	OperationSubtract ReasonOperation = "subtract"
)

// Status enumerates invoice payment states.
type Status string

const (
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
)

// Reason is an add-and-subtract reason.
type Reason struct {
	ID           int64
	Title        string
	Operation    ReasonOperation
	DefaultValue decimal.Decimal
	AccountID    int64
}

// Unit says how an adjustment value is read.
type Unit string

const (
	// UnitAuto treats values up to 100 as percentages and larger ones as amounts.
	UnitAuto    Unit = ""
	UnitPercent Unit = "percent"
	UnitFixed   Unit = "fixed"
)

// Adjustment applies a reason to an invoice. A zero Value takes the reason default.
type Adjustment struct {
	ReasonID int64           `json:"reason_id"`
	Value    decimal.Decimal `json:"value"`
	Unit     Unit            `json:"unit,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// PurchaseLine is one received product line.
type PurchaseLine struct {
	ProductID int64           `json:"product_id"`
	Variant   string          `json:"variant,omitempty"`
	Count     int64           `json:"count"`
	Price     inventory.Price `json:"price"`
	Total     decimal.Decimal `json:"total"`
}

// PurchaseInvoice records goods bought into one warehouse.
type PurchaseInvoice struct {
	ID           int64
	Code         string
	SupplierID   int64
	WarehouseID  int64
	DateTime     time.Time
	Lines        []PurchaseLine
	Adjustments  []Adjustment
	Sum          decimal.Decimal
	Total        decimal.Decimal
	SettlementID int64
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SalesLine is one sold product line.
type SalesLine struct {
	ProductID   int64           `json:"product_id"`
	Variant     string          `json:"variant,omitempty"`
	WarehouseID int64           `json:"warehouse_id"`
	Count       int64           `json:"count"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

// SalesInvoice records goods sold. StockChangeID is set once settlement consumed its stock.
type SalesInvoice struct {
	ID            int64
	Code          string
	CustomerID    int64
	DateTime      time.Time
	Lines         []SalesLine
	Adjustments   []Adjustment
	Sum           decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	SettlementID  int64
	StockChangeID int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PurchaseInvoiceInput carries caller data for create and edit.
type PurchaseInvoiceInput struct {
	Code        string
	SupplierID  int64
	WarehouseID int64
	DateTime    time.Time
	Lines       []PurchaseLine
	Adjustments []Adjustment
}

// SalesInvoiceInput carries caller data for create and edit.
type SalesInvoiceInput struct {
	Code        string
	CustomerID  int64
	DateTime    time.Time
	Lines       []SalesLine
	Adjustments []Adjustment
}

// RefID is the id used to reference the invoice from other modules.
func RefID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Validate ensures purchase input meets minimum criteria.
func (in PurchaseInvoiceInput) Validate() error {
	if in.WarehouseID <= 0 {
		return shared.Validation("purchase invoice warehouse required")
	}
	if len(in.Lines) == 0 {
		return shared.Validation("purchase invoice requires at least one line")
	}
	for idx, line := range in.Lines {
		if line.ProductID <= 0 {
			return shared.Validation("line %d product required", idx)
		}
		if line.Count <= 0 {
			return shared.Validation("line %d count must be > 0", idx)
		}
		if line.Price.Purchase.IsNegative() || line.Price.Consumer.IsNegative() || line.Price.Store.IsNegative() {
			return shared.Validation("line %d price must be >= 0", idx)
		}
	}
	return nil
}

// Validate ensures sales input meets minimum criteria.
func (in SalesInvoiceInput) Validate() error {
	if len(in.Lines) == 0 {
		return shared.Validation("sales invoice requires at least one line")
	}
	for idx, line := range in.Lines {
		if line.ProductID <= 0 {
			return shared.Validation("line %d product required", idx)
		}
		if line.WarehouseID <= 0 {
			return shared.Validation("line %d warehouse required", idx)
		}
		if line.Count <= 0 {
			return shared.Validation("line %d count must be > 0", idx)
		}
		if line.Price.IsNegative() {
			return shared.Validation("line %d price must be >= 0", idx)
		}
	}
	return nil
}

// CalculatorLines prices purchase lines at their purchase price.
func (in PurchaseInvoiceInput) CalculatorLines() []Line {
	out := make([]Line, 0, len(in.Lines))
	for _, line := range in.Lines {
		out = append(out, Line{Count: line.Count, Price: line.Price.Purchase})
	}
	return out
}

// CalculatorLines prices sales lines at their explicit price.
func (in SalesInvoiceInput) CalculatorLines() []Line {
	out := make([]Line, 0, len(in.Lines))
	for _, line := range in.Lines {
		out = append(out, Line{Count: line.Count, Price: line.Price})
	}
	return out
}

// Receipt is the stock the invoice brings in.
func (inv PurchaseInvoice) Receipt() inventory.Receipt {
	lines := make([]inventory.ReceiptLine, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		lines = append(lines, inventory.ReceiptLine{ProductID: line.ProductID, Variant: line.Variant, Count: line.Count, Price: line.Price})
	}
	return inventory.Receipt{
		RefModule:   inventory.RefPurchaseInvoice,
		RefID:       RefID(inv.ID),
		WarehouseID: inv.WarehouseID,
		DateTime:    inv.DateTime,
		Lines:       lines,
	}
}

// Sale is the stock the invoice takes out once settled.
func (inv SalesInvoice) Sale() inventory.Sale {
	lines := make([]inventory.SaleLine, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		lines = append(lines, inventory.SaleLine{
			ProductID:   line.ProductID,
			Variant:     line.Variant,
			WarehouseID: line.WarehouseID,
			Count:       line.Count,
			Price:       line.Price,
		})
	}
	return inventory.Sale{RefID: RefID(inv.ID), DateTime: inv.DateTime, Lines: lines}
}

// Demands is the stock the invoice asks for.
func (in SalesInvoiceInput) Demands() []inventory.Demand {
	out := make([]inventory.Demand, 0, len(in.Lines))
	for _, line := range in.Lines {
		out = append(out, inventory.Demand{
			Key:   inventory.StockKey{ProductID: line.ProductID, Variant: line.Variant, WarehouseID: line.WarehouseID},
			Count: line.Count,
		})
	}
	return out
}
