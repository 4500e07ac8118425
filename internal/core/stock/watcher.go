package stock

import "github.com/rl1809/stock-ledger/internal/core/domain"

// Watcher detects attention-boundary crossings between two quantities.
type Watcher struct {
	calc Calculator
}

func NewWatcher(calc Calculator) Watcher {
	return Watcher{calc: calc}
}

// Watch compares the status before and after txn. It reports an "entered"
// event when the new status needs attention and differs from the old one,
// and a "recovered" event when an attention state is left. Moves between
// NORMAL and OVERSTOCKED produce nothing.
func (w Watcher) Watch(item domain.Item, txn domain.Transaction) (domain.CrossingEvent, bool) {
	prev := w.calc.StatusAt(item, txn.PreviousQuantity)
	next := w.calc.StatusAt(item, txn.NewQuantity)
	if prev == next {
		return domain.CrossingEvent{}, false
	}

	var severity domain.Severity
	switch {
	case next.NeedsAttention():
		severity = domain.SeverityEntered
	case prev.NeedsAttention():
		severity = domain.SeverityRecovered
	default:
		return domain.CrossingEvent{}, false
	}

	return domain.CrossingEvent{
		ItemSKU:        item.SKU,
		ItemName:       item.Name,
		TransactionID:  txn.ID,
		PreviousStatus: prev,
		NewStatus:      next,
		Severity:       severity,
		Quantity:       txn.NewQuantity,
		MinStockLevel:  item.MinStockLevel,
		OccurredAt:     txn.CreatedAt,
	}, true
}
