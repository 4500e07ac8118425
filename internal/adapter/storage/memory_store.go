package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/stock"
)

type itemCell struct {
	mu           sync.Mutex
	item         domain.Item
	transactions []domain.Transaction
}

// MemoryStore keeps the ledger in process. Each item has its own mutex, so
// applies on different items never wait on each other.
type MemoryStore struct {
	mu    sync.RWMutex
	cells map[string]*itemCell
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cells: make(map[string]*itemCell),
		now:   time.Now,
	}
}

func (s *MemoryStore) cell(sku string) (*itemCell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[sku]
	return c, ok
}

func (s *MemoryStore) Apply(ctx context.Context, txn domain.Transaction) (domain.Applied, error) {
	if err := ctx.Err(); err != nil {
		return domain.Applied{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	c, ok := s.cell(txn.ItemSKU)
	if !ok {
		return domain.Applied{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, txn.ItemSKU)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.item.Quantity
	next, err := stock.Next(txn.Direction, txn.Quantity, prev)
	if err != nil {
		return domain.Applied{}, err
	}

	txn.PreviousQuantity = prev
	txn.NewQuantity = next
	c.item.Quantity = next
	c.item.Version++
	c.item.UpdatedAt = s.now()
	c.transactions = append(c.transactions, txn)

	return domain.Applied{Item: c.item, PreviousQuantity: prev, NewQuantity: next}, nil
}

func (s *MemoryStore) CreateItem(_ context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cells[item.SKU]; ok {
		return fmt.Errorf("%w: %s", domain.ErrItemExists, item.SKU)
	}
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.cells[item.SKU] = &itemCell{item: item}
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, sku string) (domain.Item, error) {
	c, ok := s.cell(sku)
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, sku)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item, nil
}

func (s *MemoryStore) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	cells := make([]*itemCell, 0, len(s.cells))
	for _, c := range s.cells {
		cells = append(cells, c)
	}
	s.mu.RUnlock()

	items := make([]domain.Item, 0, len(cells))
	for _, c := range cells {
		c.mu.Lock()
		items = append(items, c.item)
		c.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return items, nil
}

func (s *MemoryStore) Transactions(_ context.Context, sku string) ([]domain.Transaction, error) {
	c, ok := s.cell(sku)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, sku)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Transaction, len(c.transactions))
	copy(out, c.transactions)
	return out, nil
}
