// Package publisher drains the order_events outbox into a Notifier.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/logging"
	"github.com/fjod/photo_checkout/internal/metrics"
	r "github.com/fjod/photo_checkout/internal/repository"
)

// errUndeliverable marks events no notifier can ever accept.
var errUndeliverable = errors.New("undeliverable event")

// EventStore is the part of the repository the poller needs.
type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*r.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batch     int
	repo      EventStore
	notifier  Notifier
	log       *slog.Logger
}

type PollerConfig struct {
	Tick    time.Duration
	Batch   int
	Timeout time.Duration
}

func NewOutboxPoller(repo EventStore, notifier Notifier, cfg PollerConfig) *OutboxPoller {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &OutboxPoller{
		timeout:   cfg.Timeout,
		eventTick: cfg.Tick,
		batch:     cfg.Batch,
		repo:      repo,
		notifier:  notifier,
		log:       logging.New("outbox"),
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch events", "error", err)
		return
	}

	for _, event := range events {
		errPublish := p.dispatch(ctx, event)
		if errors.Is(errPublish, errUndeliverable) {
			metrics.OutboxPublished.WithLabelValues(event.EventType, "skipped").Inc()
			p.log.ErrorContext(ctx, "dropping undeliverable event", "event_id", event.ID, "error", errPublish)
			if errMark := p.repo.MarkEventAsProcessed(ctx, event.ID); errMark != nil {
				p.log.WarnContext(ctx, "failed to mark event as processed", "event_id", event.ID, "error", errMark)
				return
			}
			continue
		}
		if errPublish != nil {
			metrics.OutboxPublished.WithLabelValues(event.EventType, "failed").Inc()
			p.log.WarnContext(ctx, "failed to publish event", "event_id", event.ID, "event_type", event.EventType, "error", errPublish)
			// keep per-aggregate order: later events wait for this one
			return
		}

		errMark := p.repo.MarkEventAsProcessed(ctx, event.ID)
		if errMark != nil {
			// the event will be delivered again on the next tick
			p.log.WarnContext(ctx, "failed to mark event as processed", "event_id", event.ID, "error", errMark)
			return
		}
		metrics.OutboxPublished.WithLabelValues(event.EventType, "ok").Inc()
	}
}

func (p *OutboxPoller) dispatch(ctx context.Context, event *r.OutboxEvent) error {
	var n d.OrderNotification
	if err := json.Unmarshal(event.Payload, &n); err != nil {
		return fmt.Errorf("%w: decode payload: %v", errUndeliverable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	switch event.EventType {
	case d.EventOrderCompleted:
		return p.notifier.OnOrderCompleted(ctx, n)
	case d.EventOrderCancelled:
		return p.notifier.OnOrderCancelled(ctx, n)
	default:
		return fmt.Errorf("%w: unknown event type %q", errUndeliverable, event.EventType)
	}
}
