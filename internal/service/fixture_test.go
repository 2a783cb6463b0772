package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/gateway"
	"github.com/fjod/photo_checkout/internal/idempotency"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "sk_test"

type fixture struct {
	repo       *MockRepository
	catalog    *MockCatalog
	session    *MockCartStore
	account    *MockCartStore
	gw         *MockGateway
	signer     gateway.Signer
	carts      *CartAggregator
	ledger     *Ledger
	payments   *Payments
	reconciler *Reconciler
	mr         *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	f := &fixture{
		repo:    NewMockRepository(),
		catalog: NewMockCatalog(map[string]int64{"A": 1000, "B": 1500, "C": 800}),
		session: NewMockCartStore(),
		account: NewMockCartStore(),
		gw:      &MockGateway{},
		signer:  gateway.NewSigner(testSecret),
		mr:      mr,
	}
	f.carts = NewCartAggregator(f.session, f.account, f.catalog, "USD")
	f.ledger = NewLedger(f.repo, f.catalog, f.carts, idempotency.NewRedisStore(rdb, time.Minute), LedgerConfig{
		Currency: "USD",
		TaxRate:  decimal.RequireFromString("0.10"),
	})
	f.payments = NewPayments(f.repo, f.gw, f.signer)
	f.reconciler = NewReconciler(f.repo, f.gw, f.signer, f.carts)
	return f
}

var guest = d.OwnerRef{SessionID: "sess-1"}

var buyer = d.BuyerContact{Name: "Ada Runner", Email: "ada@example.com"}

// checkout fills the guest's session cart and creates an order from it.
func (f *fixture) checkout(t *testing.T, token string, ids ...string) *d.Order {
	t.Helper()
	f.session.Put(guest.SessionID, d.CartSourceSession, ids...)
	c, err := f.carts.GetCart(context.Background(), guest)
	require.NoError(t, err)
	order, err := f.ledger.CreateOrder(context.Background(), guest, buyer, token, c.Snapshot())
	require.NoError(t, err)
	return order
}

// initiate starts payment and returns the process id.
func (f *fixture) initiate(t *testing.T, order *d.Order) string {
	t.Helper()
	redirect, err := f.payments.InitiatePayment(context.Background(), order.ID)
	require.NoError(t, err)
	return redirect.ProcessID
}

func (f *fixture) approve(amount string) {
	f.gw.Status = &gateway.StatusResponse{Status: gateway.StatusApproved, Amount: amount, CurrencyCode: "USD"}
}

func (f *fixture) callback(processID string, amount d.Money, outcome d.CallbackOutcome) d.Callback {
	return d.Callback{
		ProcessID: processID,
		Outcome:   outcome,
		Token:     f.signer.CallbackToken(processID, amount, outcome),
	}
}
