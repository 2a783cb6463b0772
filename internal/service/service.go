// Package service holds the order-and-payment pipeline: cart aggregation,
// the order ledger, payment initiation and callback reconciliation.
package service

import (
	"context"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/gateway"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Catalog prices photos. Items that are missing or withdrawn yield
// catalog.ErrNotAvailable.
type Catalog interface {
	ResolvePrice(ctx context.Context, itemID string) (d.Money, error)
}

type PaymentGateway interface {
	Authorize(ctx context.Context, processID string, amount d.Money, token string) (*gateway.AuthorizeResponse, error)
	QueryStatus(ctx context.Context, processID string) (*gateway.StatusResponse, error)
}

var _ PaymentGateway = (*gateway.Client)(nil)

var tracer = otel.Tracer("github.com/fjod/photo_checkout/internal/service")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
