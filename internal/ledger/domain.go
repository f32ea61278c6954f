package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// AccountType enumerates account categories.
type AccountType string

const (
	AccountTypeCash    AccountType = "cash"
	AccountTypeBank    AccountType = "bank"
	AccountTypeExpense AccountType = "expense"
	AccountTypeIncome  AccountType = "income"
	AccountTypeSystem  AccountType = "system"
	AccountTypeUser    AccountType = "user"
)

// AccountStatus enumerates account states.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// DocumentStatus enumerates document lifecycle values.
type DocumentStatus string

const (
	DocumentStatusPosted   DocumentStatus = "posted"
	DocumentStatusReversed DocumentStatus = "reversed"
)

// DocumentTypeSettlement marks documents a settlement posts. Only the
// settlement coordinator may post, change or remove them.
const DocumentTypeSettlement = "settlement"

// Owned reports whether the document belongs to another module and is closed
// to direct edits.
func (d Document) Owned() bool { return ownedType(d.Type) }

func ownedType(typ string) bool { return typ == DocumentTypeSettlement }

// Account holds a signed running balance.
type Account struct {
	ID      int64
	Code    string
	Name    string
	Type    AccountType
	Balance decimal.Decimal
	Status  AccountStatus
}

// Line is one debit or credit against an account.
type Line struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Document is an accounting document.
type Document struct {
	ID          int64
	DateTime    time.Time
	Description string
	Lines       []Line
	Amount      decimal.Decimal
	RefModule   string
	RefID       string
	Type        string
	Status      DocumentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentInput describes a document to post.
type DocumentInput struct {
	DateTime    time.Time
	Description string
	Lines       []Line
	RefModule   string
	RefID       string
	Type        string
}

// Movement is the single net debit or credit derived for one account.
type Movement struct {
	AccountID int64
	// Delta is positive for a net debit and negative for a net credit.
	Delta decimal.Decimal
}

// IsDebit reports whether the movement is a net debit.
func (m Movement) IsDebit() bool { return m.Delta.IsPositive() }

// NetMovements groups lines by account in first-seen order and nets debit
// against credit. Accounts netting to zero produce no movement.
func NetMovements(lines []Line) []Movement {
	order := make([]int64, 0, len(lines))
	net := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		current, seen := net[line.AccountID]
		if !seen {
			order = append(order, line.AccountID)
		}
		net[line.AccountID] = current.Add(line.Debit).Sub(line.Credit)
	}
	out := make([]Movement, 0, len(order))
	for _, accountID := range order {
		delta := net[accountID]
		if delta.IsZero() {
			continue
		}
		out = append(out, Movement{AccountID: accountID, Delta: delta})
	}
	return out
}

// ValidateLines rejects lines that are not exactly one of debit or credit.
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return shared.Validation("accounting document requires at least one line")
	}
	for idx, line := range lines {
		if line.AccountID == 0 {
			return shared.Validation("line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Validation("line %d negative amount", idx)
		}
		hasDebit := !line.Debit.IsZero()
		hasCredit := !line.Credit.IsZero()
		if hasDebit == hasCredit {
			return shared.Validation("line %d must carry exactly one of debit or credit", idx)
		}
	}
	return nil
}

// DocumentAmount sums the debit side of the lines.
func DocumentAmount(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Debit)
	}
	return shared.RoundMoney(total)
}

// Validate ensures posting input meets minimum criteria.
func (in DocumentInput) Validate() error {
	return ValidateLines(in.Lines)
}
