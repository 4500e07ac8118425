package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	alertchannel "github.com/rl1809/stock-ledger/internal/adapter/alert"
	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/alert"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/core/stock"
	"github.com/rl1809/stock-ledger/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open storage: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"store":     cfg.StoreBackend,
		"item_lock": cfg.ItemLock,
		"dedup":     cfg.DedupBackend,
	}).Info("storage ready")

	channels, closeChannels, err := buildChannels(ctx, cfg, backends, logger)
	if err != nil {
		logger.Fatalf("failed to build alert channels: %v", err)
	}

	dispatcher := alert.NewDispatcher(channels, backends.Dedup, cfg.ChannelTimeout, logger)
	ledger := service.NewLedgerService(backends.Store, dispatcher, service.Options{
		Calculator: stock.NewCalculator(cfg.OverstockMultiplier, cfg.ReorderTargetMultiplier),
		Dedup:      backends.Dedup,
		Logger:     logger,
	})

	// gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterGRPC(grpcServer, handler.NewGRPCHandler(ledger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	go func() {
		logger.Infof("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Errorf("gRPC server error: %v", err)
		}
	}()

	// HTTP server
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(ledger, backends.Ping).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Drain pending alert dispatches before closing their channels.
	ledger.Close()
	logger.Info("alert dispatches drained")

	closeChannels()
	backends.Close()
	logger.Info("connections closed")
}

// buildChannels returns the enabled channels in ALERT_CHANNELS order and a
// func releasing whatever connections they hold.
func buildChannels(ctx context.Context, cfg *config.Config, backends *storage.Backends, logger *logrus.Logger) ([]port.Channel, func(), error) {
	var (
		channels []port.Channel
		closers  []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	for _, name := range cfg.AlertChannels {
		switch name {
		case config.ChannelLog:
			channels = append(channels, alertchannel.NewLogChannel(logger))

		case config.ChannelAudit:
			audit := alertchannel.NewAuditChannel(backends.DB)
			if err := audit.Migrate(ctx); err != nil {
				closeAll()
				return nil, nil, err
			}
			channels = append(channels, audit)

		case config.ChannelEmail:
			smtpCfg := alertchannel.SMTPConfigFrom(cfg)
			pool, err := alertchannel.NewSMTPPool(smtpCfg, 2)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, pool.Close)
			channels = append(channels, alertchannel.NewEmailChannel(pool, smtpCfg.From, smtpCfg.To))

		case config.ChannelPubSub:
			client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			topic, err := alertchannel.EnsureTopic(ctx, client, cfg.PubSubTopic)
			if err != nil {
				client.Close()
				closeAll()
				return nil, nil, err
			}
			ch := alertchannel.NewPubSubChannel(topic)
			closers = append(closers, func() {
				ch.Stop()
				client.Close()
			})
			channels = append(channels, ch)

		case config.ChannelAMQP:
			conn, amqpCh, err := alertchannel.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, func() { closeAMQP(conn, amqpCh) })
			channels = append(channels, alertchannel.NewAMQPChannel(amqpCh, cfg.AMQPExchange, cfg.AMQPRoutingKey))
		}
		logger.WithField("channel", name).Info("alert channel enabled")
	}
	return channels, closeAll, nil
}

func closeAMQP(conn *amqp.Connection, ch *amqp.Channel) {
	_ = ch.Close()
	_ = conn.Close()
}
