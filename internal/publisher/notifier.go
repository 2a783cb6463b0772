package publisher

import (
	"context"
	"log/slog"

	d "github.com/fjod/photo_checkout/domain"
)

// Notifier receives order transitions once they are committed. Delivery is
// at least once, so implementations should tolerate repeats keyed by order id.
type Notifier interface {
	OnOrderCompleted(ctx context.Context, n d.OrderNotification) error
	OnOrderCancelled(ctx context.Context, n d.OrderNotification) error
	Close() error
}

// LogNotifier only writes notifications to the log.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) OnOrderCompleted(ctx context.Context, msg d.OrderNotification) error {
	n.log.InfoContext(ctx, "order completed",
		"order_id", msg.OrderID,
		"owner", msg.Owner.Key(),
		"email", msg.Contact.Email,
		"items", len(msg.ItemIDs),
		"total", msg.Total,
		"currency", msg.Currency)
	return nil
}

func (n *LogNotifier) OnOrderCancelled(ctx context.Context, msg d.OrderNotification) error {
	n.log.InfoContext(ctx, "order cancelled", "order_id", msg.OrderID, "process_id", msg.ProcessID)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
