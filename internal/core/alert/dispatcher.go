// Package alert fans crossing events out to delivery channels. Channels run
// concurrently, each bounded by its own timeout; a failing or hung channel is
// recorded in its outcome and never affects its siblings.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	DefaultChannelTimeout = 5 * time.Second
	dedupKeyPrefix        = "alert:"
)

type Dispatcher struct {
	channels []port.Channel
	dedup    port.DedupStore
	timeout  time.Duration
	logger   *logrus.Logger
	tracer   trace.Tracer
}

// NewDispatcher builds a dispatcher over an ordered channel list. dedup may
// be nil, in which case retries of the same event are not suppressed.
func NewDispatcher(channels []port.Channel, dedup port.DedupStore, timeout time.Duration, logger *logrus.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		channels: channels,
		dedup:    dedup,
		timeout:  timeout,
		logger:   logger,
		tracer:   otel.Tracer("github.com/rl1809/stock-ledger/internal/core/alert"),
	}
}

func (d *Dispatcher) Channels() []port.Channel {
	return d.channels
}

// Dispatch delivers event to the configured channels.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.CrossingEvent) domain.DispatchReport {
	return d.DispatchTo(ctx, event, d.channels)
}

// DispatchTo delivers event to channels and returns one outcome per channel,
// in channel order. It never returns an error: failures live in the outcomes.
func (d *Dispatcher) DispatchTo(ctx context.Context, event domain.CrossingEvent, channels []port.Channel) domain.DispatchReport {
	report := domain.DispatchReport{Event: event}
	fields := logrus.Fields{
		"event_id": event.ID(),
		"item_sku": event.ItemSKU,
		"severity": event.Severity,
	}

	if d.dedup != nil {
		first, err := d.dedup.SetIdempotency(ctx, dedupKeyPrefix+event.ID())
		switch {
		case err != nil:
			// Store down: deliver without suppression.
			d.logger.WithFields(fields).WithError(err).Warn("alert dedup check failed; dispatching anyway")
		case !first:
			d.logger.WithFields(fields).Info("alert already dispatched; skipping")
			report.Duplicate = true
			return report
		}
	}

	report.Outcomes = make([]domain.Outcome, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch port.Channel) {
			defer wg.Done()
			report.Outcomes[i] = d.deliver(ctx, ch, event)
		}(i, ch)
	}
	wg.Wait()

	failed := 0
	for _, o := range report.Outcomes {
		if o.OK() {
			d.logger.WithFields(fields).WithField("channel", o.Channel).
				WithField("duration", o.Duration.String()).Debug("alert delivered")
			continue
		}
		failed++
		d.logger.WithFields(fields).WithField("channel", o.Channel).
			WithError(o.Err).Warn("alert delivery failed")
	}
	d.logger.WithFields(fields).WithFields(logrus.Fields{
		"channels": len(channels),
		"failed":   failed,
	}).Info("alert dispatched")

	return report
}

func (d *Dispatcher) deliver(parent context.Context, ch port.Channel, event domain.CrossingEvent) domain.Outcome {
	ctx, span := d.tracer.Start(parent, "alert.deliver", trace.WithAttributes(
		attribute.String("channel", ch.Name()),
		attribute.String("event_id", event.ID()),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("channel panic: %v", r)
			}
		}()
		done <- ch.Deliver(ctx, event)
	}()

	var err error
	select {
	case err = <-done:
		if err != nil && ctx.Err() != nil {
			err = contextErr(ctx.Err())
		}
	case <-ctx.Done():
		err = contextErr(ctx.Err())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return domain.Outcome{Channel: ch.Name(), Err: err, Duration: time.Since(start)}
}

func contextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrChannelTimeout
	}
	return err
}
