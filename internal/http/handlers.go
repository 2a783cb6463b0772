package http

import (
	"context"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/service"
	"github.com/google/uuid"
)

type CartService interface {
	GetCart(ctx context.Context, owner d.OwnerRef) (*d.Cart, error)
	AddItem(ctx context.Context, owner d.OwnerRef, itemID string) (*d.Cart, error)
	RemoveItem(ctx context.Context, owner d.OwnerRef, itemID string) error
}

type OrderService interface {
	NewCheckoutToken() string
	CreateOrder(ctx context.Context, owner d.OwnerRef, contact d.BuyerContact, token string, snapshot d.CartSnapshot) (*d.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*d.Order, error)
}

type PaymentService interface {
	InitiatePayment(ctx context.Context, orderID uuid.UUID) (*d.PaymentRedirect, error)
}

type CallbackService interface {
	HandleCallback(ctx context.Context, cb d.Callback) (*d.Ack, error)
}

var (
	_ CartService     = (*service.CartAggregator)(nil)
	_ OrderService    = (*service.Ledger)(nil)
	_ PaymentService  = (*service.Payments)(nil)
	_ CallbackService = (*service.Reconciler)(nil)
)
