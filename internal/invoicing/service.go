package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service runs the invoice lifecycle and keeps stock in step with it.
type Service struct {
	repo  RepositoryPort
	stock StockPort
	now   func() time.Time
}

// NewService constructs the invoicing service.
func NewService(repo RepositoryPort, stock StockPort) *Service {
	return &Service{repo: repo, stock: stock, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Calculate previews totals with reasons read from storage.
func (s *Service) Calculate(ctx context.Context, lines []Line, adjustments []Adjustment) (Totals, error) {
	var totals Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		totals, err = Calculate(ctx, lines, adjustments, tx.GetReason)
		return err
	})
	return totals, err
}

// CreatePurchaseInvoice stores the invoice and records its stock.
func (s *Service) CreatePurchaseInvoice(ctx context.Context, in PurchaseInvoiceInput) (PurchaseInvoice, error) {
	if err := in.Validate(); err != nil {
		return PurchaseInvoice{}, err
	}
	var inv PurchaseInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		totals, err := Calculate(ctx, in.CalculatorLines(), in.Adjustments, tx.GetReason)
		if err != nil {
			return err
		}
		now := s.now()
		draft := PurchaseInvoice{Status: StatusUnpaid, CreatedAt: now}
		applyPurchaseInput(&draft, in, totals, now)
		if draft.Code == "" {
			draft.Code = "PI-" + uuid.NewString()
		}
		inv, err = tx.InsertPurchaseInvoice(ctx, draft)
		if err != nil {
			return err
		}
		_, err = s.stock.RecordPurchaseTx(ctx, tx.Inventory(), inv.Receipt())
		return err
	})
	return inv, err
}

// UpdatePurchaseInvoice recomputes the invoice and appends the stock difference.
func (s *Service) UpdatePurchaseInvoice(ctx context.Context, id int64, in PurchaseInvoiceInput) (PurchaseInvoice, error) {
	if err := in.Validate(); err != nil {
		return PurchaseInvoice{}, err
	}
	var inv PurchaseInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPurchaseInvoice(ctx, id)
		if err != nil {
			return err
		}
		if current.SettlementID != 0 {
			return shared.Conflict("purchase invoice", id, "settled invoices cannot be edited, unsettle first")
		}
		totals, err := Calculate(ctx, in.CalculatorLines(), in.Adjustments, tx.GetReason)
		if err != nil {
			return err
		}
		next := current
		applyPurchaseInput(&next, in, totals, s.now())
		if next.Code == "" {
			next.Code = current.Code
		}
		if _, err := s.stock.RevisePurchaseTx(ctx, tx.Inventory(), current.Receipt(), next.Receipt()); err != nil {
			return err
		}
		if err := tx.UpdatePurchaseInvoice(ctx, next); err != nil {
			return err
		}
		inv = next
		return nil
	})
	return inv, err
}

// DeletePurchaseInvoice compensates the received stock and removes an unsettled invoice.
func (s *Service) DeletePurchaseInvoice(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.DeletePurchaseInvoiceTx(ctx, tx, id)
	})
}

// DeletePurchaseInvoiceTx is DeletePurchaseInvoice inside the caller's unit of work.
func (s *Service) DeletePurchaseInvoiceTx(ctx context.Context, tx TxRepository, id int64) error {
	current, err := tx.GetPurchaseInvoice(ctx, id)
	if err != nil {
		return err
	}
	if current.SettlementID != 0 {
		return shared.Conflict("purchase invoice", id, "invoice is settled")
	}
	receipt := current.Receipt()
	empty := receipt
	empty.Lines = nil
	if _, err := s.stock.RevisePurchaseTx(ctx, tx.Inventory(), receipt, empty); err != nil {
		return err
	}
	return tx.DeletePurchaseInvoice(ctx, id)
}

// PurchaseInvoice loads a purchase invoice.
func (s *Service) PurchaseInvoice(ctx context.Context, id int64) (PurchaseInvoice, error) {
	var inv PurchaseInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetPurchaseInvoice(ctx, id)
		return err
	})
	return inv, err
}

// CreateSalesInvoice soft-checks stock and stores the invoice unpaid. Stock is
// only taken at settlement.
func (s *Service) CreateSalesInvoice(ctx context.Context, in SalesInvoiceInput) (SalesInvoice, error) {
	if err := in.Validate(); err != nil {
		return SalesInvoice{}, err
	}
	var inv SalesInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.stock.CheckAvailabilityTx(ctx, tx.Inventory(), in.Demands()); err != nil {
			return err
		}
		totals, err := Calculate(ctx, in.CalculatorLines(), in.Adjustments, tx.GetReason)
		if err != nil {
			return err
		}
		now := s.now()
		draft := SalesInvoice{Status: StatusUnpaid, CreatedAt: now}
		applySalesInput(&draft, in, totals, now)
		if draft.Code == "" {
			draft.Code = "SI-" + uuid.NewString()
		}
		inv, err = tx.InsertSalesInvoice(ctx, draft)
		return err
	})
	return inv, err
}

// UpdateSalesInvoice recomputes an unpaid invoice. Stock consumed by an earlier
// settlement is put back before the new lines are checked.
func (s *Service) UpdateSalesInvoice(ctx context.Context, id int64, in SalesInvoiceInput) (SalesInvoice, error) {
	if err := in.Validate(); err != nil {
		return SalesInvoice{}, err
	}
	var inv SalesInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSalesInvoice(ctx, id)
		if err != nil {
			return err
		}
		if current.SettlementID != 0 || current.Status == StatusPaid {
			return shared.Conflict("sales invoice", id, "paid invoices cannot be edited, unsettle first")
		}
		next := current
		if current.StockChangeID != 0 {
			if err := s.stock.UndoTx(ctx, tx.Inventory(), current.StockChangeID); err != nil {
				return err
			}
			next.StockChangeID = 0
		}
		if err := s.stock.CheckAvailabilityTx(ctx, tx.Inventory(), in.Demands()); err != nil {
			return err
		}
		totals, err := Calculate(ctx, in.CalculatorLines(), in.Adjustments, tx.GetReason)
		if err != nil {
			return err
		}
		applySalesInput(&next, in, totals, s.now())
		if next.Code == "" {
			next.Code = current.Code
		}
		if err := tx.UpdateSalesInvoice(ctx, next); err != nil {
			return err
		}
		inv = next
		return nil
	})
	return inv, err
}

// DeleteSalesInvoice restores consumed stock and removes an unsettled invoice.
func (s *Service) DeleteSalesInvoice(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.DeleteSalesInvoiceTx(ctx, tx, id)
	})
}

// DeleteSalesInvoiceTx is DeleteSalesInvoice inside the caller's unit of work.
func (s *Service) DeleteSalesInvoiceTx(ctx context.Context, tx TxRepository, id int64) error {
	current, err := tx.GetSalesInvoice(ctx, id)
	if err != nil {
		return err
	}
	if current.SettlementID != 0 {
		return shared.Conflict("sales invoice", id, "invoice is settled")
	}
	if current.StockChangeID != 0 {
		if err := s.stock.UndoTx(ctx, tx.Inventory(), current.StockChangeID); err != nil {
			return err
		}
	}
	return tx.DeleteSalesInvoice(ctx, id)
}

// SalesInvoice loads a sales invoice.
func (s *Service) SalesInvoice(ctx context.Context, id int64) (SalesInvoice, error) {
	var inv SalesInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetSalesInvoice(ctx, id)
		return err
	})
	return inv, err
}

func applyPurchaseInput(inv *PurchaseInvoice, in PurchaseInvoiceInput, totals Totals, now time.Time) {
	lines := make([]PurchaseLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		line.Total = LineTotal(line.Count, line.Price.Purchase)
		lines = append(lines, line)
	}
	inv.Code = in.Code
	inv.SupplierID = in.SupplierID
	inv.WarehouseID = in.WarehouseID
	if !in.DateTime.IsZero() {
		inv.DateTime = in.DateTime
	} else if inv.DateTime.IsZero() {
		inv.DateTime = now
	}
	inv.Lines = lines
	inv.Adjustments = totals.Adjustments
	inv.Sum = totals.Sum
	inv.Total = totals.Total
	inv.UpdatedAt = now
}

func applySalesInput(inv *SalesInvoice, in SalesInvoiceInput, totals Totals, now time.Time) {
	lines := make([]SalesLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		line.Total = LineTotal(line.Count, line.Price)
		lines = append(lines, line)
	}
	inv.Code = in.Code
	inv.CustomerID = in.CustomerID
	if !in.DateTime.IsZero() {
		inv.DateTime = in.DateTime
	} else if inv.DateTime.IsZero() {
		inv.DateTime = now
	}
	inv.Lines = lines
	inv.Adjustments = totals.Adjustments
	inv.Sum = totals.Sum
	inv.Total = totals.Total
	inv.UpdatedAt = now
}
