package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Type names the invoice kind a settlement pays.
type Type string

const (
	TypePurchaseInvoice Type = "purchase-invoice"
	TypeSalesInvoice    Type = "sales-invoice"
)

// DocumentType tags accounting documents created by settlements.
const DocumentType = ledger.DocumentTypeSettlement

// Allocation is the part of a cash or bank payment routed through one account.
type Allocation struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// Payment breaks an invoice total down into cash, bank and credit.
type Payment struct {
	Cash            decimal.Decimal `json:"cash"`
	CashAccounts    []Allocation    `json:"cash_accounts"`
	DistributedCash bool            `json:"distributed_cash"`
	Bank            decimal.Decimal `json:"bank"`
	BankAccounts    []Allocation    `json:"bank_accounts"`
	DistributedBank bool            `json:"distributed_bank"`
	Credit          decimal.Decimal `json:"credit"`
	CreditAccountID int64           `json:"credit_account_id,omitempty"`
}

// Settlement links an invoice to the accounting document that paid it.
type Settlement struct {
	ID         int64
	Type       Type
	InvoiceID  int64
	Payment    Payment
	DocumentID int64
	CreatedAt  time.Time
}

// Input requests a settlement. CounterAccountID overrides the configured
// sales or purchase account.
type Input struct {
	Type             Type
	InvoiceID        int64
	Payment          Payment
	CounterAccountID int64
	DateTime         time.Time
	Description      string
}

// Result is what Settle produced.
type Result struct {
	Settlement Settlement
	Document   ledger.Document
}

// Validate checks the shape of the request before any lookup.
func (in Input) Validate() error {
	switch in.Type {
	case TypePurchaseInvoice, TypeSalesInvoice:
	default:
		return shared.Validation("unknown settlement type %q", in.Type)
	}
	if in.InvoiceID <= 0 {
		return shared.Validation("invoice required")
	}
	return nil
}

// Normalize fills the single allocation of a non-distributed payment with
// the full amount when the caller left it empty.
func (p Payment) Normalize() Payment {
	out := p
	out.CashAccounts = fillSingle(p.CashAccounts, p.Cash, p.DistributedCash)
	out.BankAccounts = fillSingle(p.BankAccounts, p.Bank, p.DistributedBank)
	return out
}

func fillSingle(allocs []Allocation, amount decimal.Decimal, distributed bool) []Allocation {
	out := append([]Allocation(nil), allocs...)
	if !distributed && len(out) == 1 && out[0].Amount.IsZero() {
		out[0].Amount = amount
	}
	return out
}

// Validate checks the breakdown against the invoice total.
func (p Payment) Validate(total decimal.Decimal) error {
	if p.Cash.IsNegative() || p.Bank.IsNegative() || p.Credit.IsNegative() {
		return shared.Validation("payment amounts must be >= 0")
	}
	if err := validateAllocations("cash", p.Cash, p.CashAccounts, p.DistributedCash); err != nil {
		return err
	}
	if err := validateAllocations("bank", p.Bank, p.BankAccounts, p.DistributedBank); err != nil {
		return err
	}
	if p.Credit.IsPositive() && p.CreditAccountID <= 0 {
		return shared.Validation("credit payment requires a party account")
	}
	if !total.IsPositive() {
		return shared.Validation("invoice total must be > 0 to settle")
	}
	paid := p.Cash.Add(p.Bank).Add(p.Credit)
	if !paid.Equal(total) {
		return shared.Validation("cash + bank + credit = %s, invoice total is %s",
			paid.StringFixed(shared.MoneyScale), total.StringFixed(shared.MoneyScale))
	}
	return nil
}

func validateAllocations(kind string, amount decimal.Decimal, allocs []Allocation, distributed bool) error {
	if amount.IsZero() && len(allocs) == 0 {
		return nil
	}
	if !distributed && amount.IsPositive() && len(allocs) != 1 {
		return shared.Validation("non-distributed %s payment must use exactly one account", kind)
	}
	sum := decimal.Zero
	for idx, alloc := range allocs {
		if alloc.AccountID <= 0 {
			return shared.Validation("%s allocation %d missing account", kind, idx)
		}
		if alloc.Amount.IsNegative() {
			return shared.Validation("%s allocation %d amount must be >= 0", kind, idx)
		}
		sum = sum.Add(alloc.Amount)
	}
	if !sum.Equal(amount) {
		return shared.Validation("%s allocations sum to %s, expected %s", kind,
			sum.StringFixed(shared.MoneyScale), amount.StringFixed(shared.MoneyScale))
	}
	return nil
}

// BuildDocument turns a settlement into an accounting document. Money received
// for a sale debits the cash, bank and party accounts and credits the sales
// account; a purchase payment mirrors it.
func BuildDocument(st Settlement, total decimal.Decimal, counterAccountID int64, dateTime time.Time, description string) ledger.DocumentInput {
	incoming := st.Type == TypeSalesInvoice
	side := func(accountID int64, amount decimal.Decimal, debit bool) ledger.Line {
		if debit {
			return ledger.Line{AccountID: accountID, Debit: amount}
		}
		return ledger.Line{AccountID: accountID, Credit: amount}
	}
	var lines []ledger.Line
	for _, alloc := range append(append([]Allocation(nil), st.Payment.CashAccounts...), st.Payment.BankAccounts...) {
		if alloc.Amount.IsZero() {
			continue
		}
		lines = append(lines, side(alloc.AccountID, alloc.Amount, incoming))
	}
	if st.Payment.Credit.IsPositive() {
		lines = append(lines, side(st.Payment.CreditAccountID, st.Payment.Credit, incoming))
	}
	lines = append(lines, side(counterAccountID, total, !incoming))
	if description == "" {
		description = fmt.Sprintf("Settlement of %s #%d", st.Type, st.InvoiceID)
	}
	return ledger.DocumentInput{
		DateTime:    dateTime,
		Description: description,
		Lines:       lines,
		RefModule:   string(st.Type),
		RefID:       fmt.Sprint(st.InvoiceID),
		Type:        DocumentType,
	}
}
