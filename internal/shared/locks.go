package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// SettlementLockKey builds redis keys serialising settlement work per invoice.
func SettlementLockKey(invoiceType string, invoiceID int64) string {
	return fmt.Sprintf("settlement:%s:%d:lock", invoiceType, invoiceID)
}

// RedisLocker obtains short-lived distributed locks.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker wraps a redis client. ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl, wait: 5 * time.Second}
}

// Lock blocks until the key is obtained or the wait budget runs out.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	lock, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, &Error{Kind: KindConflict, Entity: "lock", ID: key, Msg: "busy, retry later"}
	}
	if err != nil {
		return nil, Storage("obtain lock", err)
	}
	return func() {
		// release with a fresh context; the request context may already be done
		_ = lock.Release(context.Background())
	}, nil
}
