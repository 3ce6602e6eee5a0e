// Package money holds the pure monetary arithmetic for the billing ledger.
// All amounts are fixed-point decimals exact to 2 fractional digits; rounding
// is half-up and happens at the line level, before summation.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineAmounts computes the derived amounts of one invoice line.
// amount = quantity x rate, tax = amount x taxRate/100, total = amount + tax.
func LineAmounts(quantity, rate, taxRate decimal.Decimal) (amount, tax, total decimal.Decimal) {
	amount = quantity.Mul(rate).Round(2)
	tax = TaxOn(amount, taxRate)
	total = amount.Add(tax)
	return amount, tax, total
}

// TaxOn computes base x rate/100 rounded to 2 fractional digits.
func TaxOn(base, taxRate decimal.Decimal) decimal.Decimal {
	return base.Mul(taxRate).Div(hundred).Round(2)
}

// Sum adds a list of already-rounded amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ValidQuantity reports whether q is a usable line quantity (> 0).
func ValidQuantity(q decimal.Decimal) bool {
	return q.IsPositive()
}

// ValidRate reports whether r is a usable unit rate (>= 0).
func ValidRate(r decimal.Decimal) bool {
	return !r.IsNegative()
}

// ValidTaxRate reports whether t is a percentage within [0, 100].
func ValidTaxRate(t decimal.Decimal) bool {
	return !t.IsNegative() && t.LessThanOrEqual(hundred)
}
