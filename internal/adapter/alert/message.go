// Package alert holds the delivery channels the dispatcher fans crossing
// events out to.
package alert

import (
	"encoding/json"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Message is the wire form of a crossing event on the broker channels.
type Message struct {
	EventID        string    `json:"event_id"`
	ItemSKU        string    `json:"item_sku"`
	ItemName       string    `json:"item_name,omitempty"`
	TransactionID  string    `json:"transaction_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Severity       string    `json:"severity"`
	Quantity       int       `json:"quantity"`
	MinStockLevel  int       `json:"min_stock_level"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewMessage(event domain.CrossingEvent) Message {
	return Message{
		EventID:        event.ID(),
		ItemSKU:        event.ItemSKU,
		ItemName:       event.ItemName,
		TransactionID:  event.TransactionID,
		PreviousStatus: string(event.PreviousStatus),
		NewStatus:      string(event.NewStatus),
		Severity:       string(event.Severity),
		Quantity:       event.Quantity,
		MinStockLevel:  event.MinStockLevel,
		OccurredAt:     event.OccurredAt.UTC(),
	}
}

func encode(event domain.CrossingEvent) ([]byte, error) {
	return json.Marshal(NewMessage(event))
}
