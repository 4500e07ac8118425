package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/stock"
)

// Reconciliation compares the stored quantity of an item with a replay of
// its committed transactions.
type Reconciliation struct {
	ItemSKU      string
	Stored       int
	Replayed     int
	Transactions int
	// ChainBreaks lists transactions whose recorded before/after pair does
	// not continue from the previous one.
	ChainBreaks []string
	Consistent  bool
}

type LowStockEntry struct {
	Item            domain.Item
	Status          domain.StockStatus
	ReorderQuantity int
}

type InventorySummary struct {
	TotalItems int
	TotalValue decimal.Decimal
	ByStatus   map[domain.StockStatus]int
}

func (s *LedgerService) Reconcile(ctx context.Context, sku string) (Reconciliation, error) {
	item, err := s.store.GetItem(ctx, sku)
	if err != nil {
		return Reconciliation{}, err
	}
	txns, err := s.store.Transactions(ctx, sku)
	if err != nil {
		return Reconciliation{}, err
	}

	rec := Reconciliation{ItemSKU: sku, Stored: item.Quantity, Transactions: len(txns)}
	running := 0
	for _, t := range txns {
		broken := t.PreviousQuantity != running
		running += t.Direction.Delta(t.Quantity)
		if broken || t.NewQuantity != running {
			rec.ChainBreaks = append(rec.ChainBreaks, t.ID)
		}
	}
	rec.Replayed = running
	rec.Consistent = running == item.Quantity && len(rec.ChainBreaks) == 0
	return rec, nil
}

// LowStockReport lists items that are low or out of stock, with how much to reorder.
func (s *LedgerService) LowStockReport(ctx context.Context) ([]LowStockEntry, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	var entries []LowStockEntry
	for _, item := range items {
		status := s.calc.ItemStatus(item)
		if !status.NeedsAttention() {
			continue
		}
		entries = append(entries, LowStockEntry{
			Item:            item,
			Status:          status,
			ReorderQuantity: s.calc.ReorderQuantity(item.Quantity, item.MinStockLevel),
		})
	}
	return entries, nil
}

func (s *LedgerService) Summary(ctx context.Context) (InventorySummary, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return InventorySummary{}, err
	}

	sum := InventorySummary{
		TotalItems: len(items),
		TotalValue: decimal.Zero,
		ByStatus: map[domain.StockStatus]int{
			domain.StatusOutOfStock:  0,
			domain.StatusLowStock:    0,
			domain.StatusNormal:      0,
			domain.StatusOverstocked: 0,
		},
	}
	for _, item := range items {
		sum.TotalValue = sum.TotalValue.Add(stock.StockValue(item.Quantity, item.UnitPrice))
		sum.ByStatus[s.calc.ItemStatus(item)]++
	}
	return sum, nil
}
