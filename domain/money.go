package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitDigits is the number of fraction digits carried by every supported currency.
const MinorUnitDigits = 2

var (
	ErrCurrencyMismatch = errors.New("money currencies differ")
	ErrInvalidAmount    = errors.New("invalid money amount")
)

// Money is a fixed-point amount in minor units (cents) plus an ISO 4217 code.
type Money struct {
	Amount   int64  `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`
}

func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

func Zero(currency string) Money {
	return NewMoney(0, currency)
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

// Sum adds all amounts; an empty list yields zero in the given currency.
func Sum(currency string, amounts ...Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// ApplyRate multiplies by rate and rounds half away from zero to whole minor units.
func (m Money) ApplyRate(rate decimal.Decimal) Money {
	v := decimal.NewFromInt(m.Amount).Mul(rate).Round(0)
	return Money{Amount: v.IntPart(), Currency: m.Currency}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

// GatewayString renders the amount the way the payment gateway signs it:
// two fraction digits, "." separator, no grouping. 2750 -> "27.50".
// Every signature and verification path must go through this function.
func (m Money) GatewayString() string {
	return decimal.New(m.Amount, -MinorUnitDigits).StringFixed(MinorUnitDigits)
}

func (m Money) String() string {
	return m.GatewayString() + " " + m.Currency
}

// ParseGatewayAmount is the inverse of GatewayString.
func ParseGatewayAmount(s, currency string) (Money, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := v.Shift(MinorUnitDigits)
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("%w: %q has more than %d fraction digits", ErrInvalidAmount, s, MinorUnitDigits)
	}
	return NewMoney(minor.IntPart(), currency), nil
}
