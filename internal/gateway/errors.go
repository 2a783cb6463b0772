package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrUnreachable = errors.New("payment gateway unreachable")
	ErrTimeout     = errors.New("payment gateway timed out")
	ErrRejected    = errors.New("payment gateway rejected the request")
	ErrNotFound    = errors.New("payment gateway has no such payment")
)

// Error keeps the failed operation next to one of the sentinels above.
type Error struct {
	Op     string
	Status int
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may try the same operation again.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout)
}
