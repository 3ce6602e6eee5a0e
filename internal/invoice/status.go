package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outstanding returns grandTotal minus everything applied against it.
func Outstanding(grandTotal decimal.Decimal, applied AppliedTotals) decimal.Decimal {
	return grandTotal.Sub(applied.Applied())
}

// DeriveStatus computes the invoice status from current applied totals and
// the calendar. It is a pure function: recomputing twice without an
// intervening mutation yields the same status. Cancellation is explicit and
// never derived here.
func DeriveStatus(grandTotal decimal.Decimal, applied AppliedTotals, dueDate, today time.Time) Status {
	outstanding := Outstanding(grandTotal, applied)
	switch {
	case !outstanding.IsPositive():
		return StatusPaid
	case outstanding.LessThan(grandTotal) && applied.HasAllocation:
		return StatusPartiallyPaid
	case beforeDay(dueDate, today):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// beforeDay compares two timestamps at calendar-day granularity.
func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
