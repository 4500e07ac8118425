package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type LedgerStore interface {
	// Apply atomically re-validates txn against the item's current quantity,
	// writes the new quantity and appends txn with the exact before/after pair.
	// On rejection nothing is written.
	Apply(ctx context.Context, txn domain.Transaction) (domain.Applied, error)

	// CreateItem registers a new item. Returns domain.ErrItemExists on duplicate SKU.
	CreateItem(ctx context.Context, item domain.Item) error

	// GetItem returns domain.ErrItemNotFound when the SKU is unknown.
	GetItem(ctx context.Context, sku string) (domain.Item, error)

	ListItems(ctx context.Context) ([]domain.Item, error)

	// Transactions returns the committed transactions of an item in commit order.
	Transactions(ctx context.Context, sku string) ([]domain.Transaction, error)
}
