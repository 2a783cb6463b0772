package service

import (
	"context"
	"errors"
	"testing"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", d.CartSnapshot{})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-2", d.CartSnapshot{ItemIDs: []string{"", ""}})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateOrder_RequiresTokenAndOwner(t *testing.T) {
	f := newFixture(t)
	snap := d.CartSnapshot{ItemIDs: []string{"A"}}

	_, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "  ", snap)
	assert.ErrorIs(t, err, ErrCheckoutTokenMissing)

	_, err = f.ledger.CreateOrder(context.Background(), d.OwnerRef{}, buyer, "tok-1", snap)
	assert.ErrorIs(t, err, d.ErrNoOwner)
}

func TestCreateOrder_DeduplicatesSnapshot(t *testing.T) {
	f := newFixture(t)
	order, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1",
		d.CartSnapshot{ItemIDs: []string{"A", "A", "C"}})
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, int64(1800), order.Subtotal.Amount)
}

func TestCreateOrder_IgnoresClientPrices(t *testing.T) {
	f := newFixture(t)
	f.session.carts[guest.SessionID] = []d.CartItem{{ItemID: "A", UnitPrice: d.NewMoney(1, "USD")}}
	c, err := f.carts.GetCart(context.Background(), guest)
	require.NoError(t, err)

	f.catalog.Prices["A"] = d.NewMoney(1200, "USD")
	order, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", c.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), order.Lines[0].Price.Amount)
	assert.Equal(t, int64(1320), order.Total.Amount)
}

func TestCreateOrder_TaxRoundsHalfUp(t *testing.T) {
	f := newFixture(t)
	f.ledger.taxRate = decimal.RequireFromString("0.075")
	f.catalog.Prices["odd"] = d.NewMoney(1010, "USD") // 75.75 -> 76

	order, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", d.CartSnapshot{ItemIDs: []string{"odd"}})
	require.NoError(t, err)
	assert.Equal(t, int64(76), order.Tax.Amount)
	assert.Equal(t, order.Subtotal.Amount+order.Tax.Amount, order.Total.Amount)
}

func TestCreateOrder_TokenReusedForDifferentCart(t *testing.T) {
	f := newFixture(t)
	f.checkout(t, "tok-1", "A")

	_, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", d.CartSnapshot{ItemIDs: []string{"B"}})
	assert.ErrorIs(t, err, ErrCheckoutTokenReused)
	assert.Equal(t, 1, f.repo.OrderCount())
}

func TestCreateOrder_RetryAfterCartClearedReturnsOrder(t *testing.T) {
	f := newFixture(t)
	first := f.checkout(t, "tok-1", "A", "B")

	// the cart is gone now; a retry carries no items
	again, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", d.CartSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestCreateOrder_DatabaseIsSourceOfTruthWithoutRedis(t *testing.T) {
	f := newFixture(t)
	f.ledger.idem = nil
	snap := d.CartSnapshot{ItemIDs: []string{"A"}}

	first, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", snap)
	require.NoError(t, err)
	second, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", snap)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateOrder_RedisOutageFallsBackToDatabase(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	order, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", d.CartSnapshot{ItemIDs: []string{"A"}})
	require.NoError(t, err)
	assert.Equal(t, d.OrderStatusPending, order.Status)
}

func TestCreateOrder_InProgressWhileLocked(t *testing.T) {
	f := newFixture(t)
	locked, err := f.ledger.idem.TryLock(context.Background(), checkoutScope, guest.Key()+":tok-1")
	require.NoError(t, err)
	require.True(t, locked)

	_, err = f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", d.CartSnapshot{ItemIDs: []string{"A"}})
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.True(t, Retryable(err))
}

func TestCreateOrder_PersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.CreateErr = errors.New("connection reset")

	_, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", d.CartSnapshot{ItemIDs: []string{"A"}})
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.True(t, Retryable(err))
	assert.Zero(t, f.repo.OrderCount())
}

func TestCreateOrder_CartClearFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.session.Put(guest.SessionID, d.CartSourceSession, "A")
	f.session.ClearErr = errors.New("redis down")

	order, err := f.ledger.CreateOrder(context.Background(), guest, buyer, "tok-1", d.CartSnapshot{ItemIDs: []string{"A"}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.OrderCount())
	assert.NotNil(t, order)
}

func TestMarkRefunded(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, "tok-1", "A")

	_, err := f.ledger.MarkRefunded(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition, "pending orders cannot be refunded")

	processID := f.initiate(t, order)
	f.approve("11.00")
	_, err = f.reconciler.HandleCallback(context.Background(), f.callback(processID, order.Total, d.OutcomeSuccess))
	require.NoError(t, err)

	refunded, err := f.ledger.MarkRefunded(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, d.OrderStatusRefunded, refunded.Status)

	_, err = f.ledger.MarkRefunded(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.GetOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
