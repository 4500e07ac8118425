package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrItemNotFound        = errors.New("item not found")
	ErrItemExists          = errors.New("item already exists")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrChannelTimeout      = errors.New("timeout")
)

// IsBusinessRejection reports whether err is a rejection the submitter caused,
// as opposed to an infrastructure failure.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrDuplicateRequest)
}
