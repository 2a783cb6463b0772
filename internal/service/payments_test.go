package service

import (
	"context"
	"testing"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/gateway"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiatePayment_TimeoutLeavesOrderPending(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, "tok-1", "A")
	f.gw.AuthorizeErr = &gateway.Error{Op: "authorize", Kind: gateway.ErrTimeout}

	_, err := f.payments.InitiatePayment(context.Background(), order.ID)
	require.ErrorIs(t, err, ErrGatewayTimeout)
	assert.NotErrorIs(t, err, ErrGatewayUnreachable)
	assert.True(t, Retryable(err))

	stored, err := f.ledger.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, d.OrderStatusPending, stored.Status)
	assert.Equal(t, map[int]d.AttemptStatus{1: d.AttemptStatusInitiated}, f.repo.AttemptsFor(order.ID),
		"the attempt is recorded before the gateway answers")
}

func TestInitiatePayment_RetryInvalidatesPreviousAttempt(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, "tok-1", "A")
	f.gw.AuthorizeErr = &gateway.Error{Op: "authorize", Kind: gateway.ErrUnreachable}

	_, err := f.payments.InitiatePayment(context.Background(), order.ID)
	require.ErrorIs(t, err, ErrGatewayUnreachable)

	f.gw.AuthorizeErr = nil
	redirect, err := f.payments.InitiatePayment(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ProcessID(order.ID, 2), redirect.ProcessID)

	assert.Equal(t, map[int]d.AttemptStatus{
		1: d.AttemptStatusFailed,
		2: d.AttemptStatusInitiated,
	}, f.repo.AttemptsFor(order.ID))

	stored, err := f.ledger.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.GatewayProcessID)
	assert.Equal(t, redirect.ProcessID, *stored.GatewayProcessID)
}

func TestInitiatePayment_RejectedIsNotRetryable(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, "tok-1", "A")
	f.gw.AuthorizeErr = &gateway.Error{Op: "authorize", Status: 400, Kind: gateway.ErrRejected}

	_, err := f.payments.InitiatePayment(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.False(t, Retryable(err))

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "authorize", gwErr.Op)
}

func TestInitiatePayment_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.InitiatePayment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Empty(t, f.gw.AuthorizeCalls)
}

func TestInitiatePayment_SettledOrder(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, "tok-1", "A")
	processID := f.initiate(t, order)
	_, err := f.reconciler.HandleCallback(context.Background(), f.callback(processID, order.Total, d.OutcomeCancel))
	require.NoError(t, err)

	_, err = f.payments.InitiatePayment(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Len(t, f.gw.AuthorizeCalls, 1)
}
