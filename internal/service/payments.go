package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/gateway"
	"github.com/fjod/photo_checkout/internal/logging"
	"github.com/fjod/photo_checkout/internal/metrics"
	r "github.com/fjod/photo_checkout/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Payments starts gateway authorizations for pending orders.
type Payments struct {
	repo   r.RepoInterface
	gw     PaymentGateway
	signer gateway.Signer
	log    *slog.Logger
}

func NewPayments(repo r.RepoInterface, gw PaymentGateway, signer gateway.Signer) *Payments {
	return &Payments{repo: repo, gw: gw, signer: signer, log: logging.New("payments")}
}

// InitiatePayment records a fresh attempt and asks the gateway for a redirect.
// The attempt is committed before the gateway is called, so a transport
// failure leaves the order pending with a live attempt that the next retry
// invalidates.
func (p *Payments) InitiatePayment(ctx context.Context, orderID uuid.UUID) (redirect *d.PaymentRedirect, err error) {
	ctx, span := tracer.Start(ctx, "Payments.InitiatePayment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order_id", orderID.String()))

	attempt, err := p.repo.CreateAttempt(ctx, orderID, func(order *d.Order, seq int) (*d.PaymentAttempt, error) {
		processID := d.ProcessID(order.ID, seq)
		return &d.PaymentAttempt{
			ProcessID: processID,
			Amount:    order.Total,
			Token:     p.signer.RequestToken(processID, order.Total),
			CreatedAt: time.Now().UTC(),
		}, nil
	})
	switch {
	case errors.Is(err, r.ErrOrderNotFound):
		metrics.PaymentInitiations.WithLabelValues("rejected").Inc()
		return nil, ErrOrderNotFound
	case errors.Is(err, r.ErrOrderNotPending):
		metrics.PaymentInitiations.WithLabelValues("rejected").Inc()
		return nil, errors.Join(ErrIllegalTransition, err)
	case err != nil:
		metrics.PaymentInitiations.WithLabelValues("failed").Inc()
		return nil, persistence("create payment attempt", err)
	}
	span.SetAttributes(attribute.String("process_id", attempt.ProcessID))

	resp, err := p.gw.Authorize(ctx, attempt.ProcessID, attempt.Amount, attempt.Token)
	if err != nil {
		gwErr := newGatewayError("authorize", err)
		metrics.PaymentInitiations.WithLabelValues(gatewayResult(gwErr)).Inc()
		p.log.WarnContext(ctx, "payment authorization failed",
			"order_id", orderID,
			"process_id", attempt.ProcessID,
			"retryable", gateway.Retryable(err),
			"error", err)
		return nil, gwErr
	}

	metrics.PaymentInitiations.WithLabelValues("ok").Inc()
	p.log.InfoContext(ctx, "payment initiated",
		"order_id", orderID,
		"process_id", attempt.ProcessID,
		"amount", attempt.Amount.String())
	return &d.PaymentRedirect{ProcessID: attempt.ProcessID, RedirectURL: resp.RedirectURL}, nil
}

func gatewayResult(err error) string {
	switch {
	case errors.Is(err, ErrGatewayTimeout):
		return "timeout"
	case errors.Is(err, ErrGatewayUnreachable):
		return "unreachable"
	default:
		return "rejected"
	}
}
