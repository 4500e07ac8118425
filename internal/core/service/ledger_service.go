package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/stock"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	moduleName        = "ledger"
	submitKeyPrefix   = "submit:"
	releaseKeyTimeout = 2 * time.Second
)

var ErrClosed = fmt.Errorf("%w: ledger closed", domain.ErrStoreUnavailable)

// Dispatcher is the part of alert.Dispatcher the ledger needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.CrossingEvent) domain.DispatchReport
}

type SubmitRequest struct {
	ItemSKU   string
	Direction domain.Direction
	Quantity  int
	Actor     string
	Note      string
	// IdempotencyKey is optional. A repeated key is rejected with
	// domain.ErrDuplicateRequest and commits nothing.
	IdempotencyKey string
}

type Options struct {
	Calculator stock.Calculator
	// Dedup claims submit idempotency keys. Nil disables key checking.
	Dedup port.DedupStore
	// OnDispatch, if set, receives each background dispatch report.
	OnDispatch func(domain.DispatchReport)
	Logger     *logrus.Logger
}

// LedgerService runs the submission pipeline: validate, apply, classify,
// watch for crossings and hand crossings to the dispatcher in the background.
type LedgerService struct {
	store      port.LedgerStore
	dispatcher Dispatcher
	calc       stock.Calculator
	watcher    stock.Watcher
	dedup      port.DedupStore
	onDispatch func(domain.DispatchReport)
	logger     *logrus.Logger
	tracer     trace.Tracer

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	now   func() time.Time
	newID func() string
}

func NewLedgerService(store port.LedgerStore, dispatcher Dispatcher, opts Options) *LedgerService {
	calc := opts.Calculator
	if calc.OverstockMultiplier == 0 || calc.ReorderTargetMultiplier == 0 {
		calc = stock.NewCalculator(calc.OverstockMultiplier, calc.ReorderTargetMultiplier)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LedgerService{
		store:      store,
		dispatcher: dispatcher,
		calc:       calc,
		watcher:    stock.NewWatcher(calc),
		dedup:      opts.Dedup,
		onDispatch: opts.OnDispatch,
		logger:     logger,
		tracer:     otel.Tracer("github.com/rl1809/stock-ledger/internal/core/service"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (s *LedgerService) Calculator() stock.Calculator {
	return s.calc
}

// Submit records one stock movement. Business rejections come back as
// domain.ErrInvalidInput, domain.ErrInsufficientStock or domain.ErrItemNotFound;
// nothing is committed in that case. Once the store has applied the movement
// the submission is durable and alert delivery happens off this call path.
func (s *LedgerService) Submit(ctx context.Context, req SubmitRequest) (domain.CommittedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.CommittedTransaction{}, ErrClosed
	}

	ctx, span := s.tracer.Start(ctx, "ledger.Submit", trace.WithAttributes(
		attribute.String("item_sku", req.ItemSKU),
		attribute.String("direction", string(req.Direction)),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	committed, err := s.submit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logRejection(req, err)
	}
	return committed, err
}

func (s *LedgerService) submit(ctx context.Context, req SubmitRequest) (domain.CommittedTransaction, error) {
	req.ItemSKU = strings.TrimSpace(req.ItemSKU)
	if req.ItemSKU == "" {
		return domain.CommittedTransaction{}, fmt.Errorf("%w: missing item sku", domain.ErrInvalidInput)
	}
	if err := stock.ValidateInput(req.Direction, req.Quantity); err != nil {
		return domain.CommittedTransaction{}, err
	}

	// Best-effort pre-check on a snapshot; the store decides for real.
	snapshot, err := s.store.GetItem(ctx, req.ItemSKU)
	if err != nil {
		return domain.CommittedTransaction{}, err
	}
	if err := stock.Validate(req.Direction, req.Quantity, snapshot.Quantity); err != nil {
		return domain.CommittedTransaction{}, err
	}

	release, err := s.claimKey(ctx, req.IdempotencyKey)
	if err != nil {
		return domain.CommittedTransaction{}, err
	}

	txn := domain.Transaction{
		ID:        s.newID(),
		ItemSKU:   req.ItemSKU,
		Direction: req.Direction,
		Quantity:  req.Quantity,
		Actor:     req.Actor,
		Note:      req.Note,
		CreatedAt: s.now(),
	}

	applied, err := s.store.Apply(ctx, txn)
	if err != nil {
		release()
		return domain.CommittedTransaction{}, err
	}
	txn.PreviousQuantity = applied.PreviousQuantity
	txn.NewQuantity = applied.NewQuantity

	if event, ok := s.watcher.Watch(applied.Item, txn); ok {
		s.dispatchAsync(ctx, event)
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"item_sku":       txn.ItemSKU,
		"direction":      txn.Direction,
		"quantity":       txn.Quantity,
		"previous":       txn.PreviousQuantity,
		"new":            txn.NewQuantity,
	}).Info("transaction committed")

	return domain.CommittedTransaction{
		Transaction: txn,
		Status:      s.calc.ItemStatus(applied.Item),
	}, nil
}

// claimKey returns a func that gives the key back if the submission fails.
func (s *LedgerService) claimKey(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if key == "" || s.dedup == nil {
		return noop, nil
	}

	ok, err := s.dedup.SetIdempotency(ctx, submitKeyPrefix+key)
	if err != nil {
		return noop, fmt.Errorf("%w: idempotency check: %w", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return noop, fmt.Errorf("%w: idempotency key %q", domain.ErrDuplicateRequest, key)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseKeyTimeout)
		defer cancel()
		if err := s.dedup.ReleaseIdempotency(releaseCtx, submitKeyPrefix+key); err != nil {
			config.LogError(s.logger, moduleName, "claimKey", "release idempotency key", key, err)
		}
	}, nil
}

// dispatchAsync must be called with s.mu held for reading.
func (s *LedgerService) dispatchAsync(ctx context.Context, event domain.CrossingEvent) {
	if s.dispatcher == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		report := s.dispatcher.Dispatch(context.WithoutCancel(ctx), event)
		if s.onDispatch != nil {
			s.onDispatch(report)
		}
	}()
}

func (s *LedgerService) logRejection(req SubmitRequest, err error) {
	fields := logrus.Fields{
		"item_sku":  req.ItemSKU,
		"direction": req.Direction,
		"quantity":  req.Quantity,
	}
	if domain.IsBusinessRejection(err) {
		s.logger.WithFields(fields).WithError(err).Info("transaction rejected")
		return
	}
	config.LogError(s.logger, moduleName, "Submit", "submission failed", fields, err)
}

// Wait blocks until every background dispatch started so far has finished.
func (s *LedgerService) Wait() {
	s.inflight.Wait()
}

// Close stops accepting submissions and waits for pending dispatches.
func (s *LedgerService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.inflight.Wait()
}

func (s *LedgerService) RegisterItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	item.SKU = strings.TrimSpace(item.SKU)
	switch {
	case item.SKU == "":
		return domain.Item{}, fmt.Errorf("%w: missing sku", domain.ErrInvalidInput)
	case item.MinStockLevel < 0:
		return domain.Item{}, fmt.Errorf("%w: negative min stock level", domain.ErrInvalidInput)
	case item.MinStockLevel > domain.MaxQuantity:
		return domain.Item{}, fmt.Errorf("%w: min stock level above %d", domain.ErrInvalidInput, domain.MaxQuantity)
	case item.UnitPrice.IsNegative():
		return domain.Item{}, fmt.Errorf("%w: negative unit price", domain.ErrInvalidInput)
	case item.OverstockMultiplier < 0:
		return domain.Item{}, fmt.Errorf("%w: negative overstock multiplier", domain.ErrInvalidInput)
	case item.OverstockMultiplier > domain.MaxQuantity:
		return domain.Item{}, fmt.Errorf("%w: overstock multiplier above %d", domain.ErrInvalidInput, domain.MaxQuantity)
	}
	// Opening stock goes through Submit as an IN so replay stays exact.
	item.Quantity = 0
	item.Version = 0

	if err := s.store.CreateItem(ctx, item); err != nil {
		if !errors.Is(err, domain.ErrItemExists) {
			config.LogError(s.logger, moduleName, "RegisterItem", "create item", item.SKU, err)
		}
		return domain.Item{}, err
	}
	return s.store.GetItem(ctx, item.SKU)
}

func (s *LedgerService) GetItem(ctx context.Context, sku string) (domain.Item, error) {
	return s.store.GetItem(ctx, sku)
}

func (s *LedgerService) GetStatus(ctx context.Context, sku string) (domain.StockStatus, error) {
	item, err := s.store.GetItem(ctx, sku)
	if err != nil {
		return "", err
	}
	return s.calc.ItemStatus(item), nil
}

func (s *LedgerService) GetStockValue(ctx context.Context, sku string) (decimal.Decimal, error) {
	item, err := s.store.GetItem(ctx, sku)
	if err != nil {
		return decimal.Zero, err
	}
	return stock.StockValue(item.Quantity, item.UnitPrice), nil
}

func (s *LedgerService) GetReorderQuantity(ctx context.Context, sku string) (int, error) {
	item, err := s.store.GetItem(ctx, sku)
	if err != nil {
		return 0, err
	}
	return s.calc.ReorderQuantity(item.Quantity, item.MinStockLevel), nil
}

func (s *LedgerService) Transactions(ctx context.Context, sku string) ([]domain.Transaction, error) {
	return s.store.Transactions(ctx, sku)
}
