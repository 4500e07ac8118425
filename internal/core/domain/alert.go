package domain

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityEntered   Severity = "entered"
	SeverityRecovered Severity = "recovered"
)

// CrossingEvent marks a move into or out of an attention state.
type CrossingEvent struct {
	ItemSKU        string
	ItemName       string
	TransactionID  string
	PreviousStatus StockStatus
	NewStatus      StockStatus
	Severity       Severity
	Quantity       int
	MinStockLevel  int
	OccurredAt     time.Time
}

// ID is the dedup key of the event: one per item, transaction and direction.
func (e CrossingEvent) ID() string {
	return fmt.Sprintf("%s:%s:%s", e.ItemSKU, e.TransactionID, e.Severity)
}

// Summary is a one-line human readable description of the event.
func (e CrossingEvent) Summary() string {
	if e.Severity == SeverityRecovered {
		return fmt.Sprintf("%s recovered from %s to %s (%d units, min %d)",
			e.ItemSKU, e.PreviousStatus, e.NewStatus, e.Quantity, e.MinStockLevel)
	}
	return fmt.Sprintf("%s entered %s (%d units, min %d)",
		e.ItemSKU, e.NewStatus, e.Quantity, e.MinStockLevel)
}

// Outcome is the delivery result of one channel. Err is nil on success.
type Outcome struct {
	Channel  string
	Err      error
	Duration time.Duration
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// DispatchReport is what a background dispatch produced for one event.
type DispatchReport struct {
	Event     CrossingEvent
	Outcomes  []Outcome
	Duplicate bool
}
