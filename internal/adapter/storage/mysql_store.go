package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/stock"
)

var ErrOptimisticLock = fmt.Errorf("optimistic lock conflict: %w", domain.ErrConcurrencyConflict)

const (
	DefaultApplyAttempts = 5
	retryBackoff         = 5 * time.Millisecond
)

const Schema = `
CREATE TABLE IF NOT EXISTS items (
	sku                  VARCHAR(64)    NOT NULL PRIMARY KEY,
	name                 VARCHAR(200)   NOT NULL,
	category_id          VARCHAR(64)    NOT NULL DEFAULT '',
	quantity             INT            NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	min_stock_level      INT            NOT NULL DEFAULT 10,
	unit_price           DECIMAL(12, 2) NOT NULL DEFAULT 0,
	overstock_multiplier INT            NOT NULL DEFAULT 0,
	version              INT            NOT NULL DEFAULT 0,
	created_at           DATETIME(6)    NOT NULL,
	updated_at           DATETIME(6)    NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_transactions (
	seq               BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
	id                CHAR(36)     NOT NULL UNIQUE,
	item_sku          VARCHAR(64)  NOT NULL,
	direction         VARCHAR(3)   NOT NULL,
	quantity          INT          NOT NULL,
	previous_quantity INT          NOT NULL,
	new_quantity      INT          NOT NULL,
	actor             VARCHAR(128) NOT NULL DEFAULT '',
	note              TEXT,
	created_at        DATETIME(6)  NOT NULL,
	INDEX idx_stock_transactions_item (item_sku, seq)
);`

const selectItem = `
	SELECT sku, name, category_id, quantity, min_stock_level, unit_price,
		overstock_multiplier, version, created_at, updated_at
	FROM items`

// MySQLStore keeps the ledger in MySQL. Quantity updates are guarded by a
// version column; a lost race is retried up to maxAttempts times.
type MySQLStore struct {
	db          *sql.DB
	maxAttempts int
	now         func() time.Time
}

func NewMySQLStore(db *sql.DB, maxAttempts int) *MySQLStore {
	if maxAttempts < 1 {
		maxAttempts = DefaultApplyAttempts
	}
	return &MySQLStore{db: db, maxAttempts: maxAttempts, now: time.Now}
}

// Migrate creates the ledger tables if they do not exist.
func (m *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLStore) Apply(ctx context.Context, txn domain.Transaction) (domain.Applied, error) {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		applied, err := m.applyOnce(ctx, txn)
		if !errors.Is(err, ErrOptimisticLock) {
			return applied, err
		}
		if attempt == m.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return domain.Applied{}, unavailable("apply", ctx.Err())
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return domain.Applied{}, fmt.Errorf("%w: apply %s gave up after %d attempts: %w",
		domain.ErrStoreUnavailable, txn.ItemSKU, m.maxAttempts, domain.ErrConcurrencyConflict)
}

func (m *MySQLStore) applyOnce(ctx context.Context, txn domain.Transaction) (domain.Applied, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Applied{}, unavailable("begin tx", err)
	}
	defer tx.Rollback()

	item, err := scanItem(tx.QueryRowContext(ctx, selectItem+` WHERE sku = ?`, txn.ItemSKU))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Applied{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, txn.ItemSKU)
	}
	if err != nil {
		return domain.Applied{}, unavailable("query item", err)
	}

	next, err := stock.Next(txn.Direction, txn.Quantity, item.Quantity)
	if err != nil {
		return domain.Applied{}, err
	}

	now := m.now()
	result, err := tx.ExecContext(ctx, `
		UPDATE items
		SET quantity = ?, version = version + 1, updated_at = ?
		WHERE sku = ? AND version = ?`,
		next, now, item.SKU, item.Version,
	)
	if err != nil {
		return domain.Applied{}, unavailable("update item", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Applied{}, unavailable("rows affected", err)
	}
	if rows == 0 {
		return domain.Applied{}, ErrOptimisticLock
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_transactions
			(id, item_sku, direction, quantity, previous_quantity, new_quantity, actor, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.ItemSKU, txn.Direction, txn.Quantity, item.Quantity, next,
		txn.Actor, txn.Note, txn.CreatedAt,
	)
	if err != nil {
		return domain.Applied{}, unavailable("insert transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Applied{}, unavailable("commit", err)
	}

	prev := item.Quantity
	item.Quantity = next
	item.Version++
	item.UpdatedAt = now
	return domain.Applied{Item: item, PreviousQuantity: prev, NewQuantity: next}, nil
}

func (m *MySQLStore) CreateItem(ctx context.Context, item domain.Item) error {
	now := m.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO items
			(sku, name, category_id, quantity, min_stock_level, unit_price,
			 overstock_multiplier, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		item.SKU, item.Name, item.CategoryID, item.Quantity, item.MinStockLevel,
		item.UnitPrice, item.OverstockMultiplier, item.CreatedAt, now,
	)
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %s", domain.ErrItemExists, item.SKU)
	}
	if err != nil {
		return unavailable("insert item", err)
	}
	return nil
}

func (m *MySQLStore) GetItem(ctx context.Context, sku string) (domain.Item, error) {
	item, err := scanItem(m.db.QueryRowContext(ctx, selectItem+` WHERE sku = ?`, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, sku)
	}
	if err != nil {
		return domain.Item{}, unavailable("query item", err)
	}
	return item, nil
}

func (m *MySQLStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx, selectItem+` ORDER BY sku`)
	if err != nil {
		return nil, unavailable("query items", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, unavailable("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate items", err)
	}
	return items, nil
}

func (m *MySQLStore) Transactions(ctx context.Context, sku string) ([]domain.Transaction, error) {
	if _, err := m.GetItem(ctx, sku); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, item_sku, direction, quantity, previous_quantity, new_quantity, actor, note, created_at
		FROM stock_transactions WHERE item_sku = ? ORDER BY seq`, sku,
	)
	if err != nil {
		return nil, unavailable("query transactions", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var (
			t    domain.Transaction
			note sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.ItemSKU, &t.Direction, &t.Quantity, &t.PreviousQuantity,
			&t.NewQuantity, &t.Actor, &note, &t.CreatedAt); err != nil {
			return nil, unavailable("scan transaction", err)
		}
		t.Note = note.String
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate transactions", err)
	}
	return txns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.SKU, &item.Name, &item.CategoryID, &item.Quantity, &item.MinStockLevel,
		&item.UnitPrice, &item.OverstockMultiplier, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
