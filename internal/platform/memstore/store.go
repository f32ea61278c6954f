// Package memstore keeps every back-office table in process memory. A unit of
// work runs against a private copy of the state and is committed only when the
// callback succeeds, so partial failures leave nothing behind.
package memstore

import (
	"context"
	"maps"
	"sync"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/settlement"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type state struct {
	accounts    map[int64]ledger.Account
	documents   map[int64]ledger.Document
	warehouses  map[int64]inventory.WarehouseStock
	records     map[int64]inventory.Record
	changes     map[int64]inventory.Change
	profits     map[int64]inventory.CommodityProfit
	reasons     map[int64]invoicing.Reason
	purchases   map[int64]invoicing.PurchaseInvoice
	sales       map[int64]invoicing.SalesInvoice
	settlements map[int64]settlement.Settlement
	nextID      int64
}

func (s *state) clone() *state {
	return &state{
		accounts:    maps.Clone(s.accounts),
		documents:   maps.Clone(s.documents),
		warehouses:  maps.Clone(s.warehouses),
		records:     maps.Clone(s.records),
		changes:     maps.Clone(s.changes),
		profits:     maps.Clone(s.profits),
		reasons:     maps.Clone(s.reasons),
		purchases:   maps.Clone(s.purchases),
		sales:       maps.Clone(s.sales),
		settlements: maps.Clone(s.settlements),
		nextID:      s.nextID,
	}
}

// Store is a mutex-serialised in-memory database.
type Store struct {
	mu    sync.Mutex
	state *state

	keysMu sync.Mutex
	keys   map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state: &state{
			accounts:    map[int64]ledger.Account{},
			documents:   map[int64]ledger.Document{},
			warehouses:  map[int64]inventory.WarehouseStock{},
			records:     map[int64]inventory.Record{},
			changes:     map[int64]inventory.Change{},
			profits:     map[int64]inventory.CommodityProfit{},
			reasons:     map[int64]invoicing.Reason{},
			purchases:   map[int64]invoicing.PurchaseInvoice{},
			sales:       map[int64]invoicing.SalesInvoice{},
			settlements: map[int64]settlement.Settlement{},
		},
		keys: map[string]string{},
	}
}

// run executes fn against a copy of the state and swaps it in on success.
func (s *Store) run(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&Tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type ledgerRepo struct{ store *Store }

func (r ledgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return r.store.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type inventoryRepo struct{ store *Store }

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.store.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type invoicingRepo struct{ store *Store }

func (r invoicingRepo) WithTx(ctx context.Context, fn func(context.Context, invoicing.TxRepository) error) error {
	return r.store.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type settlementRepo struct{ store *Store }

func (r settlementRepo) WithTx(ctx context.Context, fn func(context.Context, settlement.TxRepository) error) error {
	return r.store.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

// Ledger returns the ledger repository view.
func (s *Store) Ledger() ledger.RepositoryPort { return ledgerRepo{store: s} }

// Inventory returns the inventory repository view.
func (s *Store) Inventory() inventory.RepositoryPort { return inventoryRepo{store: s} }

// Invoicing returns the invoicing repository view.
func (s *Store) Invoicing() invoicing.RepositoryPort { return invoicingRepo{store: s} }

// Settlement returns the settlement repository view.
func (s *Store) Settlement() settlement.RepositoryPort { return settlementRepo{store: s} }

// CheckAndInsert records an idempotency key.
func (s *Store) CheckAndInsert(ctx context.Context, key, module string) error {
	if key == "" {
		return shared.Validation("idempotency key required")
	}
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if _, ok := s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = module
	return nil
}

// Delete forgets an idempotency key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	delete(s.keys, key)
	return nil
}

// SeedAccount stores an account, defaulting its status to active.
func (s *Store) SeedAccount(acc ledger.Account) {
	if acc.Status == "" {
		acc.Status = ledger.AccountStatusActive
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.accounts[acc.ID] = acc
}

// SeedWarehouse stores a warehouse with its sales channels.
func (s *Store) SeedWarehouse(w inventory.WarehouseStock) {
	w.Count = 0
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.warehouses[w.WarehouseID] = w
}

// SeedReason stores an add-and-subtract reason.
func (s *Store) SeedReason(r invoicing.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.reasons[r.ID] = r
}
