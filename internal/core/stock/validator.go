package stock

import (
	"fmt"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// ValidateInput checks the shape of a movement without looking at stock.
func ValidateInput(direction domain.Direction, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: non-positive quantity %d", domain.ErrInvalidInput, quantity)
	}
	if quantity > domain.MaxQuantity {
		return fmt.Errorf("%w: quantity %d above %d", domain.ErrInvalidInput, quantity, domain.MaxQuantity)
	}
	if direction != domain.DirectionIn && direction != domain.DirectionOut {
		return fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidInput, direction)
	}
	return nil
}

// Validate checks a proposed movement against currentStock. Callers outside
// the store may run it on a stale snapshot; the store runs it again under its
// per-item exclusion and only that result decides the commit.
func Validate(direction domain.Direction, quantity, currentStock int) error {
	if err := ValidateInput(direction, quantity); err != nil {
		return err
	}
	if direction == domain.DirectionOut && quantity > currentStock {
		return fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientStock, quantity, currentStock)
	}
	if direction == domain.DirectionIn && quantity > domain.MaxQuantity-currentStock {
		return fmt.Errorf("%w: receiving %d onto %d exceeds %d", domain.ErrInvalidInput, quantity, currentStock, domain.MaxQuantity)
	}
	return nil
}

// Next validates and returns the quantity after applying the movement.
func Next(direction domain.Direction, quantity, currentStock int) (int, error) {
	if err := Validate(direction, quantity, currentStock); err != nil {
		return currentStock, err
	}
	return currentStock + direction.Delta(quantity), nil
}
