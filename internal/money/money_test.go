package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLineAmounts(t *testing.T) {
	amount, tax, total := LineAmounts(dec("10"), dec("5000.00"), dec("18"))
	require.True(t, amount.Equal(dec("50000.00")), "amount %s", amount)
	require.True(t, tax.Equal(dec("9000.00")), "tax %s", tax)
	require.True(t, total.Equal(dec("59000.00")), "total %s", total)
}

func TestLineAmountsRoundsHalfUpPerLine(t *testing.T) {
	// 3 x 33.335 = 100.005 -> 100.01 before tax is applied.
	amount, tax, total := LineAmounts(dec("3"), dec("33.335"), dec("10"))
	require.True(t, amount.Equal(dec("100.01")), "amount %s", amount)
	require.True(t, tax.Equal(dec("10.00")), "tax %s", tax)
	require.True(t, total.Equal(dec("110.01")), "total %s", total)
}

func TestLineAmountsZeroTax(t *testing.T) {
	amount, tax, total := LineAmounts(dec("2.5"), dec("199.99"), decimal.Zero)
	require.True(t, amount.Equal(dec("499.98")))
	require.True(t, tax.IsZero())
	require.True(t, total.Equal(amount))
}

func TestTaxOnRounding(t *testing.T) {
	// 1000.00 x 18% = 180.00
	require.True(t, TaxOn(dec("1000.00"), dec("18")).Equal(dec("180.00")))
	// 33.33 x 18% = 5.9994 -> 5.99, third digit below 5
	require.True(t, TaxOn(dec("33.33"), dec("18")).Equal(dec("5.99")))
	// 0.25 x 10% = 0.025 -> 0.03 half-up
	require.True(t, TaxOn(dec("0.25"), dec("10")).Equal(dec("0.03")))
}

func TestSum(t *testing.T) {
	require.True(t, Sum().IsZero())
	require.True(t, Sum(dec("1.10"), dec("2.20"), dec("3.30")).Equal(dec("6.60")))
}

func TestValidators(t *testing.T) {
	require.True(t, ValidQuantity(dec("0.01")))
	require.False(t, ValidQuantity(decimal.Zero))
	require.False(t, ValidQuantity(dec("-1")))

	require.True(t, ValidRate(decimal.Zero))
	require.False(t, ValidRate(dec("-0.01")))

	require.True(t, ValidTaxRate(decimal.Zero))
	require.True(t, ValidTaxRate(dec("100")))
	require.False(t, ValidTaxRate(dec("100.01")))
	require.False(t, ValidTaxRate(dec("-1")))
}
