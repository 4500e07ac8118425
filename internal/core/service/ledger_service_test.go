package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/rl1809/stock-ledger/internal/core/alert"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/stock"
	"github.com/rl1809/stock-ledger/internal/port"
)

// Mock LedgerStore
type mockLedgerStore struct {
	mu           sync.Mutex
	items        map[string]domain.Item
	transactions map[string][]domain.Transaction
	getCalls     atomic.Int32
	applyErr     error
	// staleSnapshot makes GetItem report more stock than Apply will see.
	staleSnapshot int
}

func newMockLedgerStore() *mockLedgerStore {
	return &mockLedgerStore{
		items:        make(map[string]domain.Item),
		transactions: make(map[string][]domain.Transaction),
	}
}

func (m *mockLedgerStore) Apply(ctx context.Context, txn domain.Transaction) (domain.Applied, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applyErr != nil {
		return domain.Applied{}, m.applyErr
	}
	item, ok := m.items[txn.ItemSKU]
	if !ok {
		return domain.Applied{}, domain.ErrItemNotFound
	}
	next, err := stock.Next(txn.Direction, txn.Quantity, item.Quantity)
	if err != nil {
		return domain.Applied{}, err
	}
	prev := item.Quantity
	item.Quantity = next
	m.items[txn.ItemSKU] = item
	txn.PreviousQuantity, txn.NewQuantity = prev, next
	m.transactions[txn.ItemSKU] = append(m.transactions[txn.ItemSKU], txn)
	return domain.Applied{Item: item, PreviousQuantity: prev, NewQuantity: next}, nil
}

func (m *mockLedgerStore) CreateItem(ctx context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.SKU]; ok {
		return domain.ErrItemExists
	}
	m.items[item.SKU] = item
	return nil
}

func (m *mockLedgerStore) GetItem(ctx context.Context, sku string) (domain.Item, error) {
	m.getCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[sku]
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, sku)
	}
	item.Quantity += m.staleSnapshot
	return item, nil
}

func (m *mockLedgerStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, item := range m.items {
		out = append(out, item)
	}
	return out, nil
}

func (m *mockLedgerStore) Transactions(ctx context.Context, sku string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Transaction(nil), m.transactions[sku]...), nil
}

func (m *mockLedgerStore) count(sku string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions[sku])
}

func (m *mockLedgerStore) quantity(sku string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[sku].Quantity
}

// Mock Dispatcher
type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.CrossingEvent
	gate   chan struct{}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event domain.CrossingEvent) domain.DispatchReport {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return domain.DispatchReport{Event: event}
}

func (d *recordingDispatcher) recorded() []domain.CrossingEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.CrossingEvent(nil), d.events...)
}

// Mock DedupStore
type mockDedup struct {
	mu       sync.Mutex
	keys     map[string]bool
	released atomic.Int32
}

func newMockDedup() *mockDedup {
	return &mockDedup{keys: make(map[string]bool)}
}

func (m *mockDedup) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockDedup) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.released.Add(1)
	return nil
}

func newTestService(t *testing.T, store port.LedgerStore, d Dispatcher, dedup port.DedupStore) *LedgerService {
	t.Helper()
	logger, _ := test.NewNullLogger()
	svc := NewLedgerService(store, d, Options{
		Calculator: stock.NewCalculator(3, 2),
		Dedup:      dedup,
		Logger:     logger,
	})
	t.Cleanup(svc.Close)
	return svc
}

func seedItem(t *testing.T, svc *LedgerService, sku string, min, quantity int) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.RegisterItem(ctx, domain.Item{SKU: sku, Name: sku, MinStockLevel: min, UnitPrice: decimal.RequireFromString("2.50")}); err != nil {
		t.Fatalf("register %s failed: %v", sku, err)
	}
	if quantity > 0 {
		if _, err := svc.Submit(ctx, SubmitRequest{ItemSKU: sku, Direction: domain.DirectionIn, Quantity: quantity, Note: "opening stock"}); err != nil {
			t.Fatalf("opening stock for %s failed: %v", sku, err)
		}
	}
	svc.Wait()
}

func TestSubmit_Success(t *testing.T) {
	store := newMockLedgerStore()
	disp := &recordingDispatcher{}
	svc := newTestService(t, store, disp, nil)
	seedItem(t, svc, "RES-10K", 10, 12)

	committed, err := svc.Submit(context.Background(), SubmitRequest{
		ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 5, Actor: "alice", Note: "kit build",
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	svc.Wait()

	txn := committed.Transaction
	if txn.ID == "" {
		t.Error("expected non-empty transaction ID")
	}
	if txn.PreviousQuantity != 12 || txn.NewQuantity != 7 {
		t.Errorf("expected 12 -> 7, got %d -> %d", txn.PreviousQuantity, txn.NewQuantity)
	}
	if txn.Actor != "alice" || txn.Note != "kit build" {
		t.Errorf("actor/note not carried: %+v", txn)
	}
	if committed.Status != domain.StatusLowStock {
		t.Errorf("expected LOW_STOCK, got %s", committed.Status)
	}
	if store.quantity("RES-10K") != 7 {
		t.Errorf("expected stock 7, got %d", store.quantity("RES-10K"))
	}
}

func TestSubmit_CrossingSequence(t *testing.T) {
	store := newMockLedgerStore()
	disp := &recordingDispatcher{}
	svc := newTestService(t, store, disp, nil)
	seedItem(t, svc, "RES-10K", 10, 12)
	ctx := context.Background()

	// Opening stock 0 -> 12 recovers from OUT_OF_STOCK.
	if n := len(disp.recorded()); n != 1 {
		t.Fatalf("expected 1 event from opening stock, got %d", n)
	}

	steps := []struct {
		direction domain.Direction
		quantity  int
	}{
		{domain.DirectionOut, 5}, // 12 -> 7: entered LOW_STOCK
		{domain.DirectionIn, 20}, // 7 -> 27: recovered
		{domain.DirectionOut, 2}, // 27 -> 25: nothing
	}
	for _, st := range steps {
		if _, err := svc.Submit(ctx, SubmitRequest{ItemSKU: "RES-10K", Direction: st.direction, Quantity: st.quantity}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		svc.Wait()
	}

	events := disp.recorded()[1:]
	if len(events) != 2 {
		t.Fatalf("expected 2 crossing events, got %d", len(events))
	}
	if events[0].Severity != domain.SeverityEntered || events[0].NewStatus != domain.StatusLowStock {
		t.Errorf("expected entered LOW_STOCK, got %s %s", events[0].Severity, events[0].NewStatus)
	}
	if events[1].Severity != domain.SeverityRecovered {
		t.Errorf("expected recovered, got %s", events[1].Severity)
	}
}

func TestSubmit_InsufficientStock(t *testing.T) {
	store := newMockLedgerStore()
	disp := &recordingDispatcher{}
	svc := newTestService(t, store, disp, nil)
	seedItem(t, svc, "RES-10K", 10, 10)
	before := len(disp.recorded())

	_, err := svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 11})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got: %v", err)
	}
	svc.Wait()

	if store.count("RES-10K") != 1 {
		t.Errorf("expected only the opening transaction, got %d", store.count("RES-10K"))
	}
	if len(disp.recorded()) != before {
		t.Error("rejected submission must not dispatch alerts")
	}

	committed, err := svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 10})
	if err != nil {
		t.Fatalf("OUT of exactly current stock should be accepted: %v", err)
	}
	if committed.Status != domain.StatusOutOfStock || committed.Transaction.NewQuantity != 0 {
		t.Errorf("expected OUT_OF_STOCK at 0, got %s at %d", committed.Status, committed.Transaction.NewQuantity)
	}
}

func TestSubmit_StaleSnapshotRejectedByStore(t *testing.T) {
	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, nil)
	seedItem(t, svc, "RES-10K", 10, 5)
	store.staleSnapshot = 100

	_, err := svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 50})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock from apply, got: %v", err)
	}
	if store.quantity("RES-10K") != 5 {
		t.Errorf("expected stock unchanged at 5, got %d", store.quantity("RES-10K"))
	}
}

func TestSubmit_InvalidInputDoesNotTouchStore(t *testing.T) {
	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, nil)

	for _, req := range []SubmitRequest{
		{ItemSKU: "RES-10K", Direction: domain.DirectionIn, Quantity: 0},
		{ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: -3},
		{ItemSKU: "RES-10K", Direction: "SIDEWAYS", Quantity: 1},
		{ItemSKU: "  ", Direction: domain.DirectionIn, Quantity: 1},
	} {
		_, err := svc.Submit(context.Background(), req)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for %+v, got: %v", req, err)
		}
	}
	if store.getCalls.Load() != 0 {
		t.Errorf("expected no store reads, got %d", store.getCalls.Load())
	}
}

func TestSubmit_StoreUnavailableReleasesKey(t *testing.T) {
	store := newMockLedgerStore()
	dedup := newMockDedup()
	disp := &recordingDispatcher{}
	svc := newTestService(t, store, disp, dedup)
	seedItem(t, svc, "RES-10K", 10, 20)
	before := len(disp.recorded())

	store.applyErr = fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
	_, err := svc.Submit(context.Background(), SubmitRequest{
		ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 15, IdempotencyKey: "req-1",
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got: %v", err)
	}
	svc.Wait()
	if dedup.released.Load() != 1 {
		t.Errorf("expected idempotency key released, got %d releases", dedup.released.Load())
	}
	if len(disp.recorded()) != before {
		t.Error("failed submission must not dispatch alerts")
	}

	// Retry with the same key once the store is back.
	store.mu.Lock()
	store.applyErr = nil
	store.mu.Unlock()
	if _, err := svc.Submit(context.Background(), SubmitRequest{
		ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 15, IdempotencyKey: "req-1",
	}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestSubmit_DuplicateRequest(t *testing.T) {
	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, newMockDedup())
	seedItem(t, svc, "RES-10K", 10, 20)
	ctx := context.Background()

	req := SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 1, IdempotencyKey: "req-1"}
	if _, err := svc.Submit(ctx, req); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	_, err := svc.Submit(ctx, req)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	// Stock should only be decremented once
	if store.quantity("RES-10K") != 19 {
		t.Errorf("expected stock 19, got %d", store.quantity("RES-10K"))
	}
}

func TestSubmit_Concurrent(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, nil)
	seedItem(t, svc, "RES-10K", 5, initialStock)

	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 1})
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, domain.ErrInsufficientStock) {
				failCount.Add(1)
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if failCount.Load() != int32(totalRequests-initialStock) {
		t.Errorf("expected %d rejections, got %d", totalRequests-initialStock, failCount.Load())
	}
	if store.quantity("RES-10K") != 0 {
		t.Errorf("expected stock 0, got %d", store.quantity("RES-10K"))
	}
}

func TestSubmit_ConcurrentOverdraftRejectsExactlyOne(t *testing.T) {
	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, nil)
	seedItem(t, svc, "RES-10K", 5, 30)

	// 10 OUTs of 3 drain the stock exactly; one extra OUT of 1 overdraws by one unit.
	quantities := []int{3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 1}
	var rejected, accepted atomic.Int32
	var acceptedUnits atomic.Int32
	var wg sync.WaitGroup
	for _, q := range quantities {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: q})
			if errors.Is(err, domain.ErrInsufficientStock) {
				rejected.Add(1)
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			accepted.Add(1)
			acceptedUnits.Add(int32(q))
		}(q)
	}
	wg.Wait()

	if rejected.Load() != 1 {
		t.Errorf("expected exactly 1 rejection, got %d", rejected.Load())
	}
	if got := store.quantity("RES-10K"); got != 30-int(acceptedUnits.Load()) {
		t.Errorf("lost update: stock %d, accepted units %d", got, acceptedUnits.Load())
	}
}

func TestSubmit_ReplayInvariant(t *testing.T) {
	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, nil)
	seedItem(t, svc, "RES-10K", 10, 50)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := domain.DirectionOut
			if i%3 == 0 {
				dir = domain.DirectionIn
			}
			svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: dir, Quantity: i%7 + 1})
		}(i)
	}
	wg.Wait()
	svc.Wait()

	rec, err := svc.Reconcile(context.Background(), "RES-10K")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !rec.Consistent {
		t.Errorf("replay mismatch: stored %d, replayed %d, breaks %v", rec.Stored, rec.Replayed, rec.ChainBreaks)
	}
	if rec.Stored < 0 {
		t.Errorf("stock went negative: %d", rec.Stored)
	}
}

func TestSubmit_DoesNotWaitForDispatch(t *testing.T) {
	store := newMockLedgerStore()
	disp := &recordingDispatcher{gate: make(chan struct{})}
	svc := newTestService(t, store, disp, nil)
	if _, err := svc.RegisterItem(context.Background(), domain.Item{SKU: "RES-10K", MinStockLevel: 10}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionIn, Quantity: 5})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("submit blocked on alert dispatch")
	}

	close(disp.gate)
	svc.Wait()
	// 0 -> 5 with min 10 is OUT_OF_STOCK -> LOW_STOCK.
	if n := len(disp.recorded()); n != 1 {
		t.Errorf("expected 1 dispatched event after release, got %d", n)
	}
}

func TestReports(t *testing.T) {
	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, nil)
	seedItem(t, svc, "CAP-100N", 10, 0) // OUT_OF_STOCK
	seedItem(t, svc, "RES-10K", 10, 7)  // LOW_STOCK
	seedItem(t, svc, "LED-RED", 10, 15) // NORMAL
	seedItem(t, svc, "IC-555", 10, 31)  // OVERSTOCKED
	ctx := context.Background()

	entries, err := svc.LowStockReport(ctx)
	if err != nil {
		t.Fatalf("low stock report failed: %v", err)
	}
	reorder := map[string]int{}
	for _, e := range entries {
		reorder[e.Item.SKU] = e.ReorderQuantity
	}
	if len(reorder) != 2 || reorder["CAP-100N"] != 20 || reorder["RES-10K"] != 13 {
		t.Errorf("unexpected low stock entries: %v", reorder)
	}

	sum, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if sum.TotalItems != 4 {
		t.Errorf("expected 4 items, got %d", sum.TotalItems)
	}
	// (7 + 15 + 31) * 2.50
	if !sum.TotalValue.Equal(decimal.RequireFromString("132.50")) {
		t.Errorf("expected total value 132.50, got %s", sum.TotalValue)
	}
	for _, status := range []domain.StockStatus{domain.StatusOutOfStock, domain.StatusLowStock, domain.StatusNormal, domain.StatusOverstocked} {
		if sum.ByStatus[status] != 1 {
			t.Errorf("expected 1 item %s, got %d", status, sum.ByStatus[status])
		}
	}

	value, err := svc.GetStockValue(ctx, "RES-10K")
	if err != nil || !value.Equal(decimal.RequireFromString("17.50")) {
		t.Errorf("expected value 17.50, got %s (%v)", value, err)
	}
	qty, err := svc.GetReorderQuantity(ctx, "LED-RED")
	if err != nil || qty != 0 {
		t.Errorf("expected reorder 0 above min, got %d (%v)", qty, err)
	}
	if _, err := svc.GetStatus(ctx, "NOPE"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestReconcile_DetectsChainBreak(t *testing.T) {
	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, nil)
	seedItem(t, svc, "RES-10K", 10, 12)

	store.mu.Lock()
	store.transactions["RES-10K"] = append(store.transactions["RES-10K"], domain.Transaction{
		ID: "forged", ItemSKU: "RES-10K", Direction: domain.DirectionOut, Quantity: 1,
		PreviousQuantity: 40, NewQuantity: 39,
	})
	store.mu.Unlock()

	rec, err := svc.Reconcile(context.Background(), "RES-10K")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if rec.Consistent {
		t.Error("expected inconsistency")
	}
	if len(rec.ChainBreaks) != 1 || rec.ChainBreaks[0] != "forged" {
		t.Errorf("expected chain break at forged, got %v", rec.ChainBreaks)
	}
	if rec.Replayed != 11 || rec.Stored != 12 {
		t.Errorf("expected replayed 11 stored 12, got %d %d", rec.Replayed, rec.Stored)
	}
}

func TestRegisterItem_Validation(t *testing.T) {
	store := newMockLedgerStore()
	svc := newTestService(t, store, &recordingDispatcher{}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		item domain.Item
		want error
	}{
		{"missing sku", domain.Item{SKU: " "}, domain.ErrInvalidInput},
		{"negative min", domain.Item{SKU: "A", MinStockLevel: -1}, domain.ErrInvalidInput},
		{"negative price", domain.Item{SKU: "A", UnitPrice: decimal.NewFromInt(-1)}, domain.ErrInvalidInput},
		{"min above max quantity", domain.Item{SKU: "A", MinStockLevel: domain.MaxQuantity + 1}, domain.ErrInvalidInput},
		{"multiplier above max quantity", domain.Item{SKU: "A", OverstockMultiplier: domain.MaxQuantity + 1}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.RegisterItem(ctx, tt.item); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	item, err := svc.RegisterItem(ctx, domain.Item{SKU: "A", Quantity: 99})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if item.Quantity != 0 {
		t.Errorf("expected new item to start at 0, got %d", item.Quantity)
	}
	if _, err := svc.RegisterItem(ctx, domain.Item{SKU: "A"}); !errors.Is(err, domain.ErrItemExists) {
		t.Errorf("expected ErrItemExists, got %v", err)
	}
}

func TestSubmit_DispatchIsolationEndToEnd(t *testing.T) {
	store := newMockLedgerStore()
	logger, _ := test.NewNullLogger()

	ok1 := &stubChannel{name: "log"}
	bad := &stubChannel{name: "email", err: errors.New("smtp: 550 mailbox unavailable")}
	ok2 := &stubChannel{name: "audit"}
	disp := alert.NewDispatcher([]port.Channel{ok1, bad, ok2}, nil, time.Second, logger)

	reports := make(chan domain.DispatchReport, 4)
	svc := NewLedgerService(store, disp, Options{
		Calculator: stock.NewCalculator(3, 2),
		Logger:     logger,
		OnDispatch: func(r domain.DispatchReport) { reports <- r },
	})
	defer svc.Close()

	if _, err := svc.RegisterItem(context.Background(), domain.Item{SKU: "RES-10K", MinStockLevel: 10}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionIn, Quantity: 12}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	svc.Wait()

	report := <-reports
	if len(report.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(report.Outcomes))
	}
	failed := 0
	for _, o := range report.Outcomes {
		if !o.OK() {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failed outcome, got %d", failed)
	}
}

func TestClose_RejectsNewSubmissions(t *testing.T) {
	store := newMockLedgerStore()
	logger, _ := test.NewNullLogger()
	svc := NewLedgerService(store, &recordingDispatcher{}, Options{Logger: logger})
	svc.Close()

	_, err := svc.Submit(context.Background(), SubmitRequest{ItemSKU: "RES-10K", Direction: domain.DirectionIn, Quantity: 1})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got: %v", err)
	}
}

type stubChannel struct {
	name string
	err  error
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Deliver(context.Context, domain.CrossingEvent) error { return c.err }
