// Command check-low-stock mails a digest of every item that is low or out of
// stock. It is meant to run from cron and exits non-zero when the digest
// could not be sent.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	alertchannel "github.com/rl1809/stock-ledger/internal/adapter/alert"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/core/stock"
)

const moduleName = "check-low-stock"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		config.LogError(logger, moduleName, "main", "low stock check failed", nil, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	backends, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer backends.Close()

	ledger := service.NewLedgerService(backends.Store, nil, service.Options{
		Calculator: stock.NewCalculator(cfg.OverstockMultiplier, cfg.ReorderTargetMultiplier),
		Logger:     logger,
	})
	defer ledger.Close()

	entries, err := ledger.LowStockReport(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Info("no low stock items found")
		return nil
	}

	smtpCfg := alertchannel.SMTPConfigFrom(cfg)
	pool, err := alertchannel.NewSMTPPool(smtpCfg, 1)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := alertchannel.SendDigest(pool, smtpCfg.From, smtpCfg.To, entries); err != nil {
		return err
	}
	logger.WithField("items", len(entries)).Warn("low stock alert sent")
	return nil
}
