package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateCheckout = errors.New("order for this checkout token already exists")
	ErrOrderNotPending   = errors.New("order is not pending")
	ErrAttemptNotFound   = errors.New("payment attempt not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
