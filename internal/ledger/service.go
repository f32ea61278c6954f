package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service applies and reverses accounting documents against account balances.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post persists a new document and applies its net movements.
func (s *Service) Post(ctx context.Context, input DocumentInput) (Document, error) {
	if ownedType(input.Type) {
		return Document{}, shared.Validation("document type %q is reserved", input.Type)
	}
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = s.PostTx(ctx, tx, input)
		return err
	})
	return doc, err
}

// Reverse takes a posted document's movements back out of the balances.
func (s *Service) Reverse(ctx context.Context, id int64) (Document, error) {
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.editable(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.ReverseTx(ctx, tx, current); err != nil {
			return err
		}
		current.Status = DocumentStatusReversed
		current.UpdatedAt = s.now()
		if err := tx.UpdateDocument(ctx, current); err != nil {
			return err
		}
		doc = current
		return nil
	})
	return doc, err
}

// Update reverses the stored document and posts the new content in its place.
func (s *Service) Update(ctx context.Context, id int64, input DocumentInput) (Document, error) {
	if err := input.Validate(); err != nil {
		return Document{}, err
	}
	if ownedType(input.Type) {
		return Document{}, shared.Validation("document type %q is reserved", input.Type)
	}
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.editable(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == DocumentStatusPosted {
			if err := s.ReverseTx(ctx, tx, current); err != nil {
				return err
			}
		}
		next := current
		next.DateTime = input.DateTime
		next.Description = input.Description
		next.Lines = append([]Line(nil), input.Lines...)
		next.RefModule = input.RefModule
		next.RefID = input.RefID
		next.Type = input.Type
		if next.DateTime.IsZero() {
			next.DateTime = current.DateTime
		}
		if err := s.apply(ctx, tx, next.Lines, 1, true); err != nil {
			return err
		}
		next.Amount = DocumentAmount(next.Lines)
		next.Status = DocumentStatusPosted
		next.UpdatedAt = s.now()
		if err := tx.UpdateDocument(ctx, next); err != nil {
			return err
		}
		doc = next
		return nil
	})
	return doc, err
}

// Delete reverses a posted document and removes it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.editable(ctx, tx, id); err != nil {
			return err
		}
		return s.DeleteTx(ctx, tx, id)
	})
}

// editable loads a document the ledger API may change.
func (s *Service) editable(ctx context.Context, tx TxRepository, id int64) (Document, error) {
	doc, err := tx.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Owned() {
		return Document{}, shared.Conflict("accounting document", id, "document belongs to a %s and changes only through it", doc.Type)
	}
	return doc, nil
}

// Account loads an account with its current balance.
func (s *Service) Account(ctx context.Context, id int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, id)
		return err
	})
	return account, err
}

// Document loads a document with its lines.
func (s *Service) Document(ctx context.Context, id int64) (Document, error) {
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDocument(ctx, id)
		return err
	})
	return doc, err
}

// PostTx validates, stores and applies a document inside the caller's unit of work.
func (s *Service) PostTx(ctx context.Context, tx TxRepository, input DocumentInput) (Document, error) {
	if err := input.Validate(); err != nil {
		return Document{}, err
	}
	if err := s.apply(ctx, tx, input.Lines, 1, true); err != nil {
		return Document{}, err
	}
	dateTime := input.DateTime
	if dateTime.IsZero() {
		dateTime = s.now()
	}
	now := s.now()
	return tx.InsertDocument(ctx, Document{
		DateTime:    dateTime,
		Description: input.Description,
		Lines:       append([]Line(nil), input.Lines...),
		Amount:      DocumentAmount(input.Lines),
		RefModule:   input.RefModule,
		RefID:       input.RefID,
		Type:        input.Type,
		Status:      DocumentStatusPosted,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// ReverseTx applies the opposite of a posted document's movements.
// It does not change the stored document; callers mark or delete it.
func (s *Service) ReverseTx(ctx context.Context, tx TxRepository, doc Document) error {
	if doc.Status != DocumentStatusPosted {
		return shared.Conflict("accounting document", doc.ID, "document is %s, only posted documents can be reversed", doc.Status)
	}
	return s.apply(ctx, tx, doc.Lines, -1, false)
}

// DeleteTx reverses the document when still posted and deletes it.
func (s *Service) DeleteTx(ctx context.Context, tx TxRepository, id int64) error {
	doc, err := tx.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == DocumentStatusPosted {
		if err := s.ReverseTx(ctx, tx, doc); err != nil {
			return err
		}
	}
	return tx.DeleteDocument(ctx, id)
}

func (s *Service) apply(ctx context.Context, tx TxRepository, lines []Line, sign int64, requireActive bool) error {
	if err := ValidateLines(lines); err != nil {
		return err
	}
	// every referenced account is checked, including those whose lines net to zero
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if seen[line.AccountID] {
			continue
		}
		seen[line.AccountID] = true
		account, err := tx.GetAccount(ctx, line.AccountID)
		if err != nil {
			return err
		}
		if requireActive && account.Status == AccountStatusInactive {
			return shared.Validation("account %d is inactive", account.ID)
		}
	}
	for _, mv := range NetMovements(lines) {
		if _, err := tx.AddToBalance(ctx, mv.AccountID, mv.Delta.Mul(decimal.NewFromInt(sign))); err != nil {
			return err
		}
	}
	return nil
}
