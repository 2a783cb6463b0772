package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	d "github.com/fjod/photo_checkout/domain"
	r "github.com/fjod/photo_checkout/internal/repository"
)

type MockRepository struct {
	mu           sync.Mutex
	OutboxEvents []*r.OutboxEvent
	GetErr       error
	MarkErr      error
	ProcessedIDs []int64
}

func (m *MockRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*r.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	done := make(map[int64]bool, len(m.ProcessedIDs))
	for _, id := range m.ProcessedIDs {
		done[id] = true
	}
	var out []*r.OutboxEvent
	for _, e := range m.OutboxEvents {
		if !done[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) Processed() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ProcessedIDs...)
}

// CapturingNotifier records what it was told, optionally failing first.
type CapturingNotifier struct {
	mu        sync.Mutex
	Completed []d.OrderNotification
	Cancelled []d.OrderNotification
	FailNext  int
}

var errNotifierDown = errors.New("notifier down")

func (c *CapturingNotifier) OnOrderCompleted(_ context.Context, n d.OrderNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNext > 0 {
		c.FailNext--
		return errNotifierDown
	}
	c.Completed = append(c.Completed, n)
	return nil
}

func (c *CapturingNotifier) OnOrderCancelled(_ context.Context, n d.OrderNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNext > 0 {
		c.FailNext--
		return errNotifierDown
	}
	c.Cancelled = append(c.Cancelled, n)
	return nil
}

func (c *CapturingNotifier) Close() error { return nil }

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
