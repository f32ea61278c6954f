package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/ledger"
)

// FindStockDrift always reports nothing: memory stock is summed from the
// records on every read, so there is no maintained balance to drift.
func (s *Store) FindStockDrift(ctx context.Context) ([]inventory.DriftRow, error) {
	return nil, ctx.Err()
}

// ResetBalance is a no-op for the same reason.
func (s *Store) ResetBalance(ctx context.Context, key inventory.StockKey, qty int64) error {
	return ctx.Err()
}

// FindBalanceDrift compares each account balance with its posted document lines.
func (s *Store) FindBalanceDrift(ctx context.Context) ([]ledger.IntegrityRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	posted := make(map[int64]decimal.Decimal, len(s.state.accounts))
	for _, doc := range s.state.documents {
		if doc.Status != ledger.DocumentStatusPosted {
			continue
		}
		for _, line := range doc.Lines {
			posted[line.AccountID] = posted[line.AccountID].Add(line.Debit).Sub(line.Credit)
		}
	}
	var out []ledger.IntegrityRow
	for id, acc := range s.state.accounts {
		if !acc.Balance.Equal(posted[id]) {
			out = append(out, ledger.IntegrityRow{AccountID: id, Stored: acc.Balance, Posted: posted[id]})
		}
	}
	slices.SortFunc(out, func(a, b ledger.IntegrityRow) int { return cmp.Compare(a.AccountID, b.AccountID) })
	return out, nil
}
