package alert

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const AuditSchema = `CREATE TABLE IF NOT EXISTS stock_alert_log (
	id              BIGINT AUTO_INCREMENT PRIMARY KEY,
	event_id        VARCHAR(255) NOT NULL,
	item_sku        VARCHAR(64)  NOT NULL,
	transaction_id  VARCHAR(64)  NOT NULL,
	previous_status VARCHAR(32)  NOT NULL,
	new_status      VARCHAR(32)  NOT NULL,
	severity        VARCHAR(16)  NOT NULL,
	quantity        INT          NOT NULL,
	min_stock_level INT          NOT NULL,
	occurred_at     DATETIME(6)  NOT NULL,
	UNIQUE KEY uq_alert_event (event_id),
	KEY idx_alert_item (item_sku, occurred_at)
)`

// AuditChannel appends every crossing to the stock_alert_log table.
type AuditChannel struct {
	db *sql.DB
}

func NewAuditChannel(db *sql.DB) *AuditChannel {
	return &AuditChannel{db: db}
}

func (c *AuditChannel) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, AuditSchema); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

func (c *AuditChannel) Name() string { return config.ChannelAudit }

func (c *AuditChannel) Deliver(ctx context.Context, event domain.CrossingEvent) error {
	// A replayed event id is already on record.
	_, err := c.db.ExecContext(ctx,
		`INSERT IGNORE INTO stock_alert_log
			(event_id, item_sku, transaction_id, previous_status, new_status, severity, quantity, min_stock_level, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID(), event.ItemSKU, event.TransactionID,
		string(event.PreviousStatus), string(event.NewStatus), string(event.Severity),
		event.Quantity, event.MinStockLevel, event.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: insert alert: %w", err)
	}
	return nil
}
