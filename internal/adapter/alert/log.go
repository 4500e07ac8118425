package alert

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// LogChannel writes crossings to the structured log. Entered events go out
// at warn level, recoveries at info.
type LogChannel struct {
	logger *logrus.Logger
}

func NewLogChannel(logger *logrus.Logger) *LogChannel {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return config.ChannelLog }

func (c *LogChannel) Deliver(ctx context.Context, event domain.CrossingEvent) error {
	entry := c.logger.WithContext(ctx).WithFields(logrus.Fields{
		"event_id":        event.ID(),
		"item_sku":        event.ItemSKU,
		"transaction_id":  event.TransactionID,
		"previous_status": event.PreviousStatus,
		"new_status":      event.NewStatus,
		"quantity":        event.Quantity,
		"min_stock_level": event.MinStockLevel,
	})
	if event.Severity == domain.SeverityEntered {
		entry.Warn(event.Summary())
	} else {
		entry.Info(event.Summary())
	}
	return nil
}
