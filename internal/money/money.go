package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every monetary amount.
const Scale = 2

var (
	// ErrCurrencyMismatch occurs when an arithmetic operation combines amounts
	// tagged with different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrPrecision indicates an amount carries more fractional digits than the
	// configured scale allows. Amounts are never rounded silently.
	ErrPrecision = errors.New("amount exceeds supported precision")

	// ErrInvalidCurrency indicates the currency code is not a three-letter code.
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
)

// Money is a fixed-point decimal amount tagged with its currency.
// The zero value is the zero amount with an empty currency and should only be
// produced by failed constructors.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New builds a Money value from a decimal amount and currency code. It fails
// if the amount has more than Scale fractional digits or the currency code is
// malformed.
func New(amount decimal.Decimal, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	if amount.Exponent() < -Scale {
		if !amount.Equal(amount.Truncate(Scale)) {
			return Money{}, fmt.Errorf("%w: %s", ErrPrecision, amount.String())
		}
	}
	return Money{amount: amount, currency: currency}, nil
}

// FromString parses a decimal string representation into a Money value.
func FromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return New(d, currency)
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the underlying decimal value.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency tag.
func (m Money) Currency() string {
	return m.currency
}

// Add returns m + other, failing if the currencies differ.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other, failing if the currencies differ.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Cmp compares two amounts: -1 if m < other, 0 if equal, +1 if m > other.
// Comparing across currencies is a programming error and fails.
func (m Money) Cmp(other Money) (int, error) {
	if m.currency != other.currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return m.amount.Cmp(other.amount), nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String renders the amount at the fixed scale, e.g. "1500.00".
func (m Money) String() string {
	return m.amount.StringFixed(Scale)
}
