package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOverstockMultiplier is used when neither the item nor the configuration sets one.
const DefaultOverstockMultiplier = 3

// MaxQuantity bounds stock, movement sizes and item thresholds to the
// range of the MySQL INT columns.
const MaxQuantity = math.MaxInt32

// Item is a stock-keeping unit. Quantity is only changed by a LedgerStore apply.
type Item struct {
	SKU                 string
	Name                string
	CategoryID          string
	Quantity            int
	MinStockLevel       int
	UnitPrice           decimal.Decimal
	OverstockMultiplier int // 0 means use the configured default
	Version             int // optimistic locking
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type StockStatus string

const (
	StatusOutOfStock  StockStatus = "OUT_OF_STOCK"
	StatusLowStock    StockStatus = "LOW_STOCK"
	StatusNormal      StockStatus = "NORMAL"
	StatusOverstocked StockStatus = "OVERSTOCKED"
)

// NeedsAttention reports whether the status is one that raises alerts.
func (s StockStatus) NeedsAttention() bool {
	return s == StatusOutOfStock || s == StatusLowStock
}

// Applied is the result of an atomic apply: the quantities on either side of
// the delta and the item as it stands after it.
type Applied struct {
	Item             Item
	PreviousQuantity int
	NewQuantity      int
}
