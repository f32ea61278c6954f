package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	SalesAccountID    int64
	PurchaseAccountID int64
	Locker            Locker
}

// Service settles invoices: stock first, then the settlement, then the books.
type Service struct {
	repo     RepositoryPort
	invoices InvoicePort
	stock    StockPort
	books    LedgerPort
	locker   Locker
	sales    int64
	purchase int64
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, invoices InvoicePort, stock StockPort, books LedgerPort, cfg ServiceConfig) *Service {
	return &Service{
		repo:     repo,
		invoices: invoices,
		stock:    stock,
		books:    books,
		locker:   cfg.Locker,
		sales:    cfg.SalesAccountID,
		purchase: cfg.PurchaseAccountID,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) lock(ctx context.Context, typ Type, invoiceID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, shared.SettlementLockKey(string(typ), invoiceID))
}

// Settle pays an invoice in one transaction. A stock shortfall aborts before
// anything is written.
func (s *Service) Settle(ctx context.Context, in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	unlock, err := s.lock(ctx, in.Type, in.InvoiceID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.SettleTx(ctx, tx, in)
		return err
	})
	return result, err
}

// SettleTx is Settle inside the caller's unit of work.
func (s *Service) SettleTx(ctx context.Context, tx TxRepository, in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	payment := in.Payment.Normalize()
	switch in.Type {
	case TypeSalesInvoice:
		inv, err := tx.Invoices().GetSalesInvoice(ctx, in.InvoiceID)
		if err != nil {
			return Result{}, err
		}
		if inv.SettlementID != 0 {
			return Result{}, shared.Conflict("sales invoice", inv.ID, "already settled by settlement %d", inv.SettlementID)
		}
		counter, err := s.counterAccount(in, s.sales)
		if err != nil {
			return Result{}, err
		}
		if err := s.checkPayment(ctx, tx, payment, inv.Total); err != nil {
			return Result{}, err
		}
		// stock leaves before anything is booked; a resettled invoice keeps its earlier consumption
		if inv.StockChangeID == 0 {
			change, err := s.stock.ConsumeForSaleTx(ctx, tx.Invoices().Inventory(), inv.Sale())
			if err != nil {
				return Result{}, err
			}
			inv.StockChangeID = change.ID
		}
		result, err := s.book(ctx, tx, in, payment, inv.Total, counter)
		if err != nil {
			return Result{}, err
		}
		inv.SettlementID = result.Settlement.ID
		inv.Status = invoicing.StatusPaid
		inv.UpdatedAt = s.now()
		if err := tx.Invoices().UpdateSalesInvoice(ctx, inv); err != nil {
			return Result{}, err
		}
		return result, nil
	default:
		inv, err := tx.Invoices().GetPurchaseInvoice(ctx, in.InvoiceID)
		if err != nil {
			return Result{}, err
		}
		if inv.SettlementID != 0 {
			return Result{}, shared.Conflict("purchase invoice", inv.ID, "already settled by settlement %d", inv.SettlementID)
		}
		counter, err := s.counterAccount(in, s.purchase)
		if err != nil {
			return Result{}, err
		}
		if err := s.checkPayment(ctx, tx, payment, inv.Total); err != nil {
			return Result{}, err
		}
		result, err := s.book(ctx, tx, in, payment, inv.Total, counter)
		if err != nil {
			return Result{}, err
		}
		inv.SettlementID = result.Settlement.ID
		inv.Status = invoicing.StatusPaid
		inv.UpdatedAt = s.now()
		if err := tx.Invoices().UpdatePurchaseInvoice(ctx, inv); err != nil {
			return Result{}, err
		}
		return result, nil
	}
}

func (s *Service) counterAccount(in Input, configured int64) (int64, error) {
	if in.CounterAccountID > 0 {
		return in.CounterAccountID, nil
	}
	if configured <= 0 {
		return 0, shared.Validation("no %s counter account configured", in.Type)
	}
	return configured, nil
}

// checkPayment validates the breakdown and that allocations hit cash and bank accounts.
func (s *Service) checkPayment(ctx context.Context, tx TxRepository, p Payment, total decimal.Decimal) error {
	if err := p.Validate(total); err != nil {
		return err
	}
	check := func(allocs []Allocation, want ledger.AccountType) error {
		for _, alloc := range allocs {
			acc, err := tx.Ledger().GetAccount(ctx, alloc.AccountID)
			if err != nil {
				return err
			}
			if acc.Type != want {
				return shared.Validation("account %d is %s, expected a %s account", acc.ID, acc.Type, want)
			}
		}
		return nil
	}
	if err := check(p.CashAccounts, ledger.AccountTypeCash); err != nil {
		return err
	}
	return check(p.BankAccounts, ledger.AccountTypeBank)
}

// book persists the settlement, posts its document and links the two.
func (s *Service) book(ctx context.Context, tx TxRepository, in Input, payment Payment, total decimal.Decimal, counter int64) (Result, error) {
	st, err := tx.InsertSettlement(ctx, Settlement{
		Type:      in.Type,
		InvoiceID: in.InvoiceID,
		Payment:   payment,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Result{}, err
	}
	doc, err := s.books.PostTx(ctx, tx.Ledger(), BuildDocument(st, total, counter, in.DateTime, in.Description))
	if err != nil {
		return Result{}, err
	}
	st.DocumentID = doc.ID
	if err := tx.UpdateSettlement(ctx, st); err != nil {
		return Result{}, err
	}
	return Result{Settlement: st, Document: doc}, nil
}

// Unsettle reverses and deletes the settlement document, deletes the
// settlement and reopens the invoice. Consumed stock stays consumed.
func (s *Service) Unsettle(ctx context.Context, id int64) error {
	st, err := s.Settlement(ctx, id)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, st.Type, st.InvoiceID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.UnsettleTx(ctx, tx, id)
	})
}

// UnsettleTx is Unsettle inside the caller's unit of work.
func (s *Service) UnsettleTx(ctx context.Context, tx TxRepository, id int64) error {
	st, err := tx.GetSettlement(ctx, id)
	if err != nil {
		return err
	}
	// the settlement row references its document, so it goes first
	if err := tx.DeleteSettlement(ctx, st.ID); err != nil {
		return err
	}
	if st.DocumentID != 0 {
		if err := s.books.DeleteTx(ctx, tx.Ledger(), st.DocumentID); err != nil {
			return err
		}
	}
	switch st.Type {
	case TypeSalesInvoice:
		inv, err := tx.Invoices().GetSalesInvoice(ctx, st.InvoiceID)
		if err != nil {
			return err
		}
		inv.SettlementID = 0
		inv.Status = invoicing.StatusUnpaid
		inv.UpdatedAt = s.now()
		return tx.Invoices().UpdateSalesInvoice(ctx, inv)
	default:
		inv, err := tx.Invoices().GetPurchaseInvoice(ctx, st.InvoiceID)
		if err != nil {
			return err
		}
		inv.SettlementID = 0
		inv.Status = invoicing.StatusUnpaid
		inv.UpdatedAt = s.now()
		return tx.Invoices().UpdatePurchaseInvoice(ctx, inv)
	}
}

// DeleteSalesInvoice unsettles when needed, restores consumed stock and
// removes the invoice, all in one transaction.
func (s *Service) DeleteSalesInvoice(ctx context.Context, id int64) error {
	unlock, err := s.lock(ctx, TypeSalesInvoice, id)
	if err != nil {
		return err
	}
	defer unlock()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.Invoices().GetSalesInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.SettlementID != 0 {
			if err := s.UnsettleTx(ctx, tx, inv.SettlementID); err != nil {
				return err
			}
		}
		return s.invoices.DeleteSalesInvoiceTx(ctx, tx.Invoices(), id)
	})
}

// DeletePurchaseInvoice unsettles when needed, compensates the received stock
// and removes the invoice, all in one transaction.
func (s *Service) DeletePurchaseInvoice(ctx context.Context, id int64) error {
	unlock, err := s.lock(ctx, TypePurchaseInvoice, id)
	if err != nil {
		return err
	}
	defer unlock()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.Invoices().GetPurchaseInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.SettlementID != 0 {
			if err := s.UnsettleTx(ctx, tx, inv.SettlementID); err != nil {
				return err
			}
		}
		return s.invoices.DeletePurchaseInvoiceTx(ctx, tx.Invoices(), id)
	})
}

// Settlement loads a settlement.
func (s *Service) Settlement(ctx context.Context, id int64) (Settlement, error) {
	var st Settlement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		st, err = tx.GetSettlement(ctx, id)
		return err
	})
	return st, err
}
