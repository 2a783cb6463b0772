package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AttemptStatus string

const (
	AttemptStatusInitiated AttemptStatus = "initiated"
	AttemptStatusConfirmed AttemptStatus = "confirmed"
	AttemptStatusCancelled AttemptStatus = "cancelled"
	AttemptStatusFailed    AttemptStatus = "failed"
)

func (s AttemptStatus) IsResolved() bool {
	return s == AttemptStatusConfirmed || s == AttemptStatusCancelled || s == AttemptStatusFailed
}

func (s AttemptStatus) String() string {
	return string(s)
}

type PaymentAttempt struct {
	ProcessID  string        `json:"process_id"`
	OrderID    uuid.UUID     `json:"order_id"`
	Seq        int           `json:"seq"`
	Token      string        `json:"-"`
	Amount     Money         `json:"amount"`
	Status     AttemptStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

var ErrMalformedProcessID = errors.New("malformed process id")

// ProcessID is the gateway correlation id for the seq-th attempt of an order.
func ProcessID(orderID uuid.UUID, seq int) string {
	return fmt.Sprintf("%s-%d", orderID, seq)
}

// ParseProcessID recovers the order id and attempt sequence from a process id.
func ParseProcessID(processID string) (uuid.UUID, int, error) {
	i := strings.LastIndexByte(processID, '-')
	if i <= 0 || i == len(processID)-1 {
		return uuid.Nil, 0, ErrMalformedProcessID
	}
	orderID, err := uuid.Parse(processID[:i])
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("%w: %v", ErrMalformedProcessID, err)
	}
	seq, err := strconv.Atoi(processID[i+1:])
	if err != nil || seq <= 0 {
		return uuid.Nil, 0, ErrMalformedProcessID
	}
	return orderID, seq, nil
}

type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "success"
	OutcomeCancel  CallbackOutcome = "cancel"
)

func ParseOutcome(s string) (CallbackOutcome, bool) {
	switch CallbackOutcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeSuccess:
		return OutcomeSuccess, true
	case OutcomeCancel:
		return OutcomeCancel, true
	}
	return "", false
}

// Callback is a gateway notification after boundary validation.
type Callback struct {
	ProcessID string
	Outcome   CallbackOutcome
	Token     string
}

// Ack is returned to the gateway once a callback is durably handled.
type Ack struct {
	OrderID   uuid.UUID   `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Duplicate bool        `json:"duplicate"`
}

// PaymentRedirect is what the buyer's browser needs to continue at the gateway.
type PaymentRedirect struct {
	ProcessID   string `json:"process_id"`
	RedirectURL string `json:"redirect_url"`
}
