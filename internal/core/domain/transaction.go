package domain

import (
	"fmt"
	"strings"
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// ParseDirection accepts "in"/"out" in any case.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case DirectionIn:
		return DirectionIn, nil
	case DirectionOut:
		return DirectionOut, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, s)
}

// Delta returns the signed change the direction applies for quantity.
func (d Direction) Delta(quantity int) int {
	if d == DirectionOut {
		return -quantity
	}
	return quantity
}

// Transaction is an immutable stock movement. Corrections are new
// compensating transactions, never edits.
type Transaction struct {
	ID               string
	ItemSKU          string
	Direction        Direction
	Quantity         int
	PreviousQuantity int
	NewQuantity      int
	Actor            string
	Note             string
	CreatedAt        time.Time
}

// CommittedTransaction is what a successful submit hands back to the caller.
type CommittedTransaction struct {
	Transaction Transaction
	Status      StockStatus
}
