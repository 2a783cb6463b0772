package http

import (
	"context"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/google/uuid"
)

type MockCartService struct {
	Cart      *d.Cart
	Err       error
	AddedIDs  []string
	RemoveErr error
}

func (m *MockCartService) GetCart(_ context.Context, owner d.OwnerRef) (*d.Cart, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	c := *m.Cart
	c.Owner = owner
	return &c, nil
}

func (m *MockCartService) AddItem(ctx context.Context, owner d.OwnerRef, itemID string) (*d.Cart, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.AddedIDs = append(m.AddedIDs, itemID)
	return m.GetCart(ctx, owner)
}

func (m *MockCartService) RemoveItem(context.Context, d.OwnerRef, string) error {
	return m.RemoveErr
}

type MockOrderService struct {
	Order       *d.Order
	CreateErr   error
	GetErr      error
	Token       string
	GotOwner    d.OwnerRef
	GotToken    string
	GotSnapshot d.CartSnapshot
	GotContact  d.BuyerContact
}

func (m *MockOrderService) NewCheckoutToken() string { return m.Token }

func (m *MockOrderService) CreateOrder(_ context.Context, owner d.OwnerRef, contact d.BuyerContact, token string, snapshot d.CartSnapshot) (*d.Order, error) {
	m.GotOwner, m.GotContact, m.GotToken, m.GotSnapshot = owner, contact, token, snapshot
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	return m.Order, nil
}

func (m *MockOrderService) GetOrder(_ context.Context, id uuid.UUID) (*d.Order, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.Order, nil
}

type MockPaymentService struct {
	Redirect *d.PaymentRedirect
	Err      error
	Calls    int
}

func (m *MockPaymentService) InitiatePayment(context.Context, uuid.UUID) (*d.PaymentRedirect, error) {
	m.Calls++
	return m.Redirect, m.Err
}

type MockCallbackService struct {
	Ack *d.Ack
	Err error
	Got []d.Callback
}

func (m *MockCallbackService) HandleCallback(_ context.Context, cb d.Callback) (*d.Ack, error) {
	m.Got = append(m.Got, cb)
	return m.Ack, m.Err
}
