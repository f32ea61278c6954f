package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// serializationAttempts bounds how often a unit of work is replayed after
// Postgres aborts it for a concurrent write.
const serializationAttempts = 3

// WithTx runs fn in a RepeatableRead transaction. A serialization failure
// replays fn from the start; any other error from fn is returned as is.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	if pool == nil {
		return shared.Storage("begin tx", errNoPool)
	}
	var err error
	for attempt := 0; attempt < serializationAttempts; attempt++ {
		err = runOnce(ctx, pool, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return shared.Conflict("transaction", "", "concurrent update, retry the request")
}

func runOnce(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return shared.Storage("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return shared.Storage("commit tx", tx.Commit(ctx))
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
