package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var errNoStore = errors.New("idempotency store not initialised")

// ErrIdempotencyConflict is returned when a request key was already claimed.
var ErrIdempotencyConflict = &Error{Kind: KindConflict, Entity: "idempotency key", Msg: "request already processed"}

// IdempotencyStore claims request keys in the idempotency_keys table so a
// retried transfer or adjustment is applied once.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key for module, failing with ErrIdempotencyConflict
// when it is already taken.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	switch {
	case key == "":
		return Validation("idempotency key required")
	case module == "":
		return Validation("idempotency module required")
	case s == nil || s.pool == nil:
		return Storage("claim idempotency key", errNoStore)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, key, module)
	if err != nil {
		return Storage("claim idempotency key", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases key after the guarded operation failed.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.pool == nil || key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return Storage("release idempotency key", err)
}
