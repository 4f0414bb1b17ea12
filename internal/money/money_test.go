package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsExcessPrecision(t *testing.T) {
	_, err := FromString("10.001", "USD")
	require.ErrorIs(t, err, ErrPrecision)

	// trailing zeros beyond the scale are still the same value
	m, err := FromString("10.1000", "USD")
	require.NoError(t, err)
	assert.Equal(t, "10.10", m.String())
}

func TestNewRejectsBadCurrency(t *testing.T) {
	_, err := FromString("1.00", "US")
	require.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = New(decimal.NewFromInt(1), "DOLLARS")
	require.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestAddSub(t *testing.T) {
	a, err := FromString("100.50", "USD")
	require.NoError(t, err)
	b, err := FromString("0.50", "USD")
	require.NoError(t, err)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "101.00", sum.String())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "100.00", diff.String())
}

func TestCurrencyMismatch(t *testing.T) {
	usd, err := FromString("1.00", "USD")
	require.NoError(t, err)
	eur, err := FromString("1.00", "EUR")
	require.NoError(t, err)

	_, err = usd.Add(eur)
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd.Sub(eur)
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd.Cmp(eur)
	require.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestCmpAndSigns(t *testing.T) {
	a, _ := FromString("5.00", "USD")
	b, _ := FromString("7.25", "USD")

	cmp, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	assert.True(t, a.IsPositive())
	assert.False(t, Zero("USD").IsPositive())

	neg, err := Zero("USD").Sub(a)
	require.NoError(t, err)
	assert.True(t, neg.IsNegative())
}

func TestNoSilentRounding(t *testing.T) {
	// exact arithmetic at scale 2: 0.10 added ten times is exactly 1.00
	sum := Zero("USD")
	inc, _ := FromString("0.10", "USD")
	for i := 0; i < 10; i++ {
		var err error
		sum, err = sum.Add(inc)
		require.NoError(t, err)
	}
	one, _ := FromString("1.00", "USD")
	assert.True(t, sum.Equal(one))
}
