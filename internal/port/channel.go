package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Channel is one independent alert delivery mechanism. Deliver must honor
// ctx cancellation; the dispatcher bounds every call with a timeout.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event domain.CrossingEvent) error
}
