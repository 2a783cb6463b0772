package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/gateway"
	"github.com/fjod/photo_checkout/internal/logging"
	"github.com/fjod/photo_checkout/internal/metrics"
	r "github.com/fjod/photo_checkout/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

// Reconciler applies gateway callbacks. The webhook and the browser return
// URL both land here, in any order and any number of times.
type Reconciler struct {
	repo   r.RepoInterface
	gw     PaymentGateway
	signer gateway.Signer
	carts  *CartAggregator
	log    *slog.Logger
}

func NewReconciler(repo r.RepoInterface, gw PaymentGateway, signer gateway.Signer, carts *CartAggregator) *Reconciler {
	return &Reconciler{repo: repo, gw: gw, signer: signer, carts: carts, log: logging.New("reconciler")}
}

// HandleCallback verifies the callback against stored data and settles the
// attempt exactly once. The returned Ack means the outcome is durable.
func (rc *Reconciler) HandleCallback(ctx context.Context, cb d.Callback) (ack *d.Ack, err error) {
	ctx, span := tracer.Start(ctx, "Reconciler.HandleCallback")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("process_id", cb.ProcessID), attribute.String("outcome", string(cb.Outcome)))

	if _, _, err := d.ParseProcessID(cb.ProcessID); err != nil {
		metrics.Callbacks.WithLabelValues("unknown_attempt").Inc()
		rc.log.WarnContext(ctx, "callback with malformed process id", "process_id", cb.ProcessID)
		return nil, fmt.Errorf("%w: %w", ErrUnknownAttempt, err)
	}
	outcome, ok := d.ParseOutcome(string(cb.Outcome))
	if !ok || cb.Token == "" {
		metrics.Callbacks.WithLabelValues("verification_failed").Inc()
		metrics.VerificationFailures.Inc()
		rc.log.WarnContext(ctx, "callback cannot be verified",
			"event", "callback_verification_failed",
			"process_id", cb.ProcessID,
			"outcome", cb.Outcome,
			"has_token", cb.Token != "")
		return nil, ErrVerificationFailed
	}
	cb.Outcome = outcome

	attempt, err := rc.repo.GetAttempt(ctx, cb.ProcessID)
	if errors.Is(err, r.ErrAttemptNotFound) {
		metrics.Callbacks.WithLabelValues("unknown_attempt").Inc()
		rc.log.WarnContext(ctx, "callback for unknown attempt", "process_id", cb.ProcessID)
		return nil, ErrUnknownAttempt
	}
	if err != nil {
		metrics.Callbacks.WithLabelValues("failed").Inc()
		return nil, persistence("get attempt", err)
	}

	order, err := rc.repo.GetOrder(ctx, attempt.OrderID)
	if err != nil {
		metrics.Callbacks.WithLabelValues("failed").Inc()
		return nil, persistence("get order", err)
	}

	if !rc.signer.VerifyCallback(cb.ProcessID, order.Total, cb.Outcome, cb.Token) {
		metrics.Callbacks.WithLabelValues("verification_failed").Inc()
		metrics.VerificationFailures.Inc()
		rc.log.WarnContext(ctx, "callback token mismatch",
			"event", "callback_verification_failed",
			"process_id", cb.ProcessID,
			"order_id", order.ID,
			"outcome", cb.Outcome)
		return nil, ErrVerificationFailed
	}

	if attempt.Status.IsResolved() {
		metrics.Callbacks.WithLabelValues("duplicate").Inc()
		rc.log.InfoContext(ctx, "callback already applied",
			"process_id", cb.ProcessID, "attempt_status", attempt.Status, "order_status", order.Status)
		return &d.Ack{OrderID: order.ID, Status: order.Status, Duplicate: true}, nil
	}

	res := r.Resolution{
		AttemptStatus: d.AttemptStatusCancelled,
		OrderStatus:   d.OrderStatusCancelled,
		EventType:     d.EventOrderCancelled,
	}
	if cb.Outcome == d.OutcomeSuccess {
		if err := rc.confirm(ctx, attempt); err != nil {
			return nil, err
		}
		res = r.Resolution{
			AttemptStatus: d.AttemptStatusConfirmed,
			OrderStatus:   d.OrderStatusCompleted,
			EventType:     d.EventOrderCompleted,
		}
	}

	settled, applied, err := rc.repo.ResolveAttempt(ctx, cb.ProcessID, res)
	switch {
	case errors.Is(err, r.ErrIllegalTransition):
		metrics.Callbacks.WithLabelValues("illegal_transition").Inc()
		rc.log.WarnContext(ctx, "callback ignored, order already settled",
			"process_id", cb.ProcessID, "order_status", settled.Status, "wanted", res.OrderStatus)
		return &d.Ack{OrderID: settled.ID, Status: settled.Status, Duplicate: true}, nil
	case errors.Is(err, r.ErrAttemptNotFound):
		metrics.Callbacks.WithLabelValues("unknown_attempt").Inc()
		return nil, ErrUnknownAttempt
	case err != nil:
		metrics.Callbacks.WithLabelValues("failed").Inc()
		return nil, persistence("resolve attempt", err)
	}

	if !applied {
		metrics.Callbacks.WithLabelValues("duplicate").Inc()
		return &d.Ack{OrderID: settled.ID, Status: settled.Status, Duplicate: true}, nil
	}

	metrics.Callbacks.WithLabelValues(string(res.OrderStatus)).Inc()
	rc.log.InfoContext(ctx, "payment settled",
		"order_id", settled.ID,
		"process_id", cb.ProcessID,
		"order_status", settled.Status)

	if settled.Status == d.OrderStatusCompleted {
		rc.carts.clearBestEffort(ctx, settled.Owner)
	}
	return &d.Ack{OrderID: settled.ID, Status: settled.Status}, nil
}

// confirm cross-checks a success callback with the gateway's own record.
// Anything short of an approved payment for the exact amount leaves the
// order pending.
func (rc *Reconciler) confirm(ctx context.Context, attempt *d.PaymentAttempt) error {
	status, err := rc.gw.QueryStatus(ctx, attempt.ProcessID)
	if err != nil {
		metrics.Callbacks.WithLabelValues("confirmation_pending").Inc()
		rc.log.WarnContext(ctx, "gateway status unavailable", "process_id", attempt.ProcessID, "error", err)
		return errors.Join(ErrConfirmationPending, newGatewayError("status", err))
	}

	switch status.Status {
	case gateway.StatusApproved:
	case gateway.StatusPending:
		metrics.Callbacks.WithLabelValues("confirmation_pending").Inc()
		return ErrConfirmationPending
	default:
		metrics.Callbacks.WithLabelValues("confirmation_mismatch").Inc()
		rc.log.ErrorContext(ctx, "success callback contradicts gateway status",
			"process_id", attempt.ProcessID, "gateway_status", status.Status)
		return fmt.Errorf("%w: gateway status %s", ErrConfirmationMismatch, status.Status)
	}

	paid, err := d.ParseGatewayAmount(status.Amount, status.CurrencyCode)
	if err != nil || paid != attempt.Amount {
		metrics.Callbacks.WithLabelValues("confirmation_mismatch").Inc()
		rc.log.ErrorContext(ctx, "gateway amount differs from attempt",
			"process_id", attempt.ProcessID,
			"expected", attempt.Amount.String(),
			"gateway_amount", status.Amount,
			"gateway_currency", status.CurrencyCode)
		return fmt.Errorf("%w: amount %s %s", ErrConfirmationMismatch, status.Amount, status.CurrencyCode)
	}
	return nil
}
