package service

import (
	"errors"
	"fmt"

	"github.com/fjod/photo_checkout/internal/gateway"
)

var (
	ErrEmptyCart            = errors.New("cart is empty, nothing to checkout")
	ErrItemUnavailable      = errors.New("item is not available for purchase")
	ErrPersistenceFailure   = errors.New("order store unavailable")
	ErrCheckoutTokenMissing = errors.New("checkout token is required")
	ErrCheckoutTokenReused  = errors.New("checkout token already used for a different cart")
	ErrCheckoutInProgress   = errors.New("checkout with this token is already in progress")
	ErrOrderNotFound        = errors.New("order not found")
	ErrIllegalTransition    = errors.New("illegal transition of order status")

	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	ErrGatewayTimeout     = errors.New("payment gateway timed out")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")

	ErrVerificationFailed   = errors.New("payment callback verification failed")
	ErrUnknownAttempt       = errors.New("no payment attempt for process id")
	ErrConfirmationPending  = errors.New("payment gateway has not confirmed the payment yet")
	ErrConfirmationMismatch = errors.New("payment gateway record does not match the callback")
)

// ItemUnavailableError names the item that can no longer be bought.
type ItemUnavailableError struct {
	ItemID string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("item %s is not available for purchase", e.ItemID)
}

func (e *ItemUnavailableError) Is(target error) bool {
	return target == ErrItemUnavailable
}

// GatewayError is a failed call to the payment processor.
type GatewayError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrGatewayTimeout:
		return e.Timeout
	case ErrGatewayUnreachable:
		return !e.Timeout && gateway.Retryable(e.Err)
	case ErrGatewayRejected:
		return !gateway.Retryable(e.Err)
	}
	return false
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func newGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Timeout: errors.Is(err, gateway.ErrTimeout), Err: err}
}

// Retryable reports whether the caller may resubmit the same request.
func Retryable(err error) bool {
	return errors.Is(err, ErrPersistenceFailure) ||
		errors.Is(err, ErrGatewayUnreachable) ||
		errors.Is(err, ErrGatewayTimeout) ||
		errors.Is(err, ErrCheckoutInProgress) ||
		errors.Is(err, ErrConfirmationPending)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistenceFailure, op, err)
}
