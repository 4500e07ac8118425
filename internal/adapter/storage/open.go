package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/port"
)

// Backends holds the stores selected by configuration plus the connections
// behind them. DB and Redis are nil when not configured.
type Backends struct {
	Store port.LedgerStore
	Dedup port.DedupStore
	DB    *sql.DB
	Redis *redis.Client
}

// Open connects the configured backends and runs migrations.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	if cfg.MySQLDSN != "" {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("storage: open mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: ping mysql: %w", err)
		}
		b.DB = db
	}

	if cfg.ItemLock == "redis" || cfg.DedupBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			b.Close()
			rdb.Close()
			return nil, fmt.Errorf("storage: ping redis: %w", err)
		}
		b.Redis = rdb
	}

	switch cfg.StoreBackend {
	case "mysql":
		store := NewMySQLStore(b.DB, cfg.ApplyMaxAttempts)
		if err := store.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Store = store
	default:
		b.Store = NewMemoryStore()
	}
	if cfg.ItemLock == "redis" {
		b.Store = NewLockedStore(b.Store, b.Redis, cfg.ItemLockTTL)
	}

	if cfg.DedupBackend == "redis" {
		b.Dedup = NewRedisDedup(b.Redis, cfg.DedupTTL)
	} else {
		b.Dedup = NewMemoryDedup(cfg.DedupTTL)
	}
	return b, nil
}

// Ping checks every open connection.
func (b *Backends) Ping(ctx context.Context) error {
	if b.DB != nil {
		if err := b.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backends) Close() {
	if b.Redis != nil {
		b.Redis.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
