package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	itemLockKeyPrefix  = "stockledger:lock:item:"
	DefaultItemLockTTL = 5 * time.Second
	lockRetryBackoff   = 10 * time.Millisecond
	lockRetryLimit     = 100
)

// LockedStore serializes applies per item across processes with a Redis
// lock before handing them to the wrapped store. Reads pass straight through.
type LockedStore struct {
	port.LedgerStore
	locker *redislock.Client
	ttl    time.Duration
}

func NewLockedStore(next port.LedgerStore, client *redis.Client, ttl time.Duration) *LockedStore {
	if ttl <= 0 {
		ttl = DefaultItemLockTTL
	}
	return &LockedStore{
		LedgerStore: next,
		locker:      redislock.New(client),
		ttl:         ttl,
	}
}

func (l *LockedStore) Apply(ctx context.Context, txn domain.Transaction) (domain.Applied, error) {
	lock, err := l.locker.Obtain(ctx, itemLockKeyPrefix+txn.ItemSKU, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryBackoff), lockRetryLimit),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return domain.Applied{}, fmt.Errorf("%w: item lock %s: %w",
			domain.ErrStoreUnavailable, txn.ItemSKU, domain.ErrConcurrencyConflict)
	}
	if err != nil {
		return domain.Applied{}, unavailable("obtain item lock", err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	return l.LedgerStore.Apply(ctx, txn)
}
