package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	alertchannel "github.com/rl1809/stock-ledger/internal/adapter/alert"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/alert"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/core/stock"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	itemSKU       = "stress-item"
	minStock      = 5
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store := storage.NewMemoryStore()
	dedup := storage.NewMemoryDedup(storage.DefaultDedupTTL)
	dispatcher := alert.NewDispatcher([]port.Channel{alertchannel.NewLogChannel(logger)}, dedup, time.Second, logger)

	var crossings atomic.Int32
	ledger := service.NewLedgerService(store, dispatcher, service.Options{
		Calculator: stock.NewCalculator(3, 2),
		Dedup:      dedup,
		Logger:     logger,
		OnDispatch: func(domain.DispatchReport) { crossings.Add(1) },
	})

	if _, err := ledger.RegisterItem(ctx, domain.Item{SKU: itemSKU, Name: "stress item", MinStockLevel: minStock}); err != nil {
		logger.Fatalf("failed to register item: %v", err)
	}
	if _, err := ledger.Submit(ctx, service.SubmitRequest{ItemSKU: itemSKU, Direction: domain.DirectionIn, Quantity: initialStock}); err != nil {
		logger.Fatalf("failed to set stock: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := ledger.Submit(ctx, service.SubmitRequest{
				ItemSKU:        itemSKU,
				Direction:      domain.DirectionOut,
				Quantity:       1,
				Actor:          fmt.Sprintf("worker-%d", n),
				IdempotencyKey: fmt.Sprintf("stress-%d", n),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				failCount.Add(1)
			default:
				logger.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)
	ledger.Close()

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", fail)
	fmt.Printf("Crossings:        %d\n", crossings.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	passed := true
	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d outflows committed, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
		passed = false
	}

	rec, err := ledger.Reconcile(ctx, itemSKU)
	if err != nil {
		logger.Fatalf("failed to reconcile: %v", err)
	}
	fmt.Printf("Final Stock:      %d (replayed %d over %d transactions)\n", rec.Stored, rec.Replayed, rec.Transactions)

	if rec.Stored == 0 && rec.Consistent {
		fmt.Println("PASS: Stock depleted to 0 and ledger replays exactly")
	} else {
		fmt.Printf("FAIL: Expected consistent stock 0, got %+v\n", rec)
		passed = false
	}

	if !passed {
		os.Exit(1)
	}
}
