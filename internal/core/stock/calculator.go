// Package stock holds the pure rules of the ledger: status classification,
// derived metrics, transaction validation and threshold crossing detection.
// Nothing here touches storage or the clock.
package stock

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const (
	DefaultReorderTargetMultiplier = 2
	currencyPlaces                 = 2
)

// Calculator carries the configurable policy multipliers.
type Calculator struct {
	OverstockMultiplier     int
	ReorderTargetMultiplier int
}

func NewCalculator(overstockMultiplier, reorderTargetMultiplier int) Calculator {
	if overstockMultiplier < 1 {
		overstockMultiplier = domain.DefaultOverstockMultiplier
	}
	if reorderTargetMultiplier < 1 {
		reorderTargetMultiplier = DefaultReorderTargetMultiplier
	}
	return Calculator{
		OverstockMultiplier:     overstockMultiplier,
		ReorderTargetMultiplier: reorderTargetMultiplier,
	}
}

// Classify uses the configured overstock multiplier.
func (c Calculator) Classify(quantity, minStockLevel int) domain.StockStatus {
	return ClassifyWith(quantity, minStockLevel, c.overstock(0))
}

// ItemStatus classifies an item, honoring its own overstock multiplier when set.
func (c Calculator) ItemStatus(item domain.Item) domain.StockStatus {
	return c.StatusAt(item, item.Quantity)
}

// StatusAt classifies quantity against the thresholds of item.
func (c Calculator) StatusAt(item domain.Item, quantity int) domain.StockStatus {
	return ClassifyWith(quantity, item.MinStockLevel, c.overstock(item.OverstockMultiplier))
}

func (c Calculator) overstock(itemMultiplier int) int {
	if itemMultiplier >= 1 {
		return itemMultiplier
	}
	if c.OverstockMultiplier >= 1 {
		return c.OverstockMultiplier
	}
	return domain.DefaultOverstockMultiplier
}

// ClassifyWith is the status function itself. An item with no minimum level
// has no low or overstock band: any stock on hand is NORMAL.
func ClassifyWith(quantity, minStockLevel, overstockMultiplier int) domain.StockStatus {
	switch {
	case quantity <= 0:
		return domain.StatusOutOfStock
	case minStockLevel <= 0:
		return domain.StatusNormal
	case quantity <= minStockLevel:
		return domain.StatusLowStock
	case quantity/overstockMultiplier >= minStockLevel:
		return domain.StatusOverstocked
	default:
		return domain.StatusNormal
	}
}

// StockValue is quantity × unitPrice rounded half-to-even to the minor unit.
func StockValue(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(quantity)).Mul(unitPrice).RoundBank(currencyPlaces)
}

// ReorderQuantity returns how much to order to get back to
// min × ReorderTargetMultiplier, or 0 when stock is at or above min.
func (c Calculator) ReorderQuantity(quantity, minStockLevel int) int {
	if quantity >= minStockLevel {
		return 0
	}
	mult := c.ReorderTargetMultiplier
	if mult < 1 {
		mult = DefaultReorderTargetMultiplier
	}
	if minStockLevel > math.MaxInt/mult {
		return math.MaxInt - quantity
	}
	return minStockLevel*mult - quantity
}
