package app

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/platform/memstore"
	"github.com/odyssey-erp/backoffice/internal/settlement"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/jobs"
)

// Stores bundles the repositories of one backing store.
type Stores struct {
	Ledger      ledger.RepositoryPort
	Inventory   inventory.RepositoryPort
	Invoicing   invoicing.RepositoryPort
	Settlement  settlement.RepositoryPort
	Idempotency inventory.IdempotencyPort

	StockDrift   jobs.StockDriftSource
	BalanceDrift jobs.BalanceDriftSource

	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStores connects the store selected by STORE_DRIVER.
func OpenStores(ctx context.Context, cfg *Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case StoreDriverMemory:
		mem := memstore.New()
		return &Stores{
			Ledger:       mem.Ledger(),
			Inventory:    mem.Inventory(),
			Invoicing:    mem.Invoicing(),
			Settlement:   mem.Settlement(),
			Idempotency:  mem,
			StockDrift:   mem,
			BalanceDrift: mem,
			Ping:         func(context.Context) error { return nil },
			Close:        func() {},
		}, nil
	case StoreDriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		ledgerRepo := ledger.NewRepository(pool)
		inventoryRepo := inventory.NewRepository(pool)
		return &Stores{
			Ledger:       ledgerRepo,
			Inventory:    inventoryRepo,
			Invoicing:    invoicing.NewRepository(pool),
			Settlement:   settlement.NewRepository(pool),
			Idempotency:  shared.NewIdempotencyStore(pool),
			StockDrift:   inventoryRepo,
			BalanceDrift: ledgerRepo,
			Ping:         pool.Ping,
			Close:        pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
