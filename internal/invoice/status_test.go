package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDeriveStatus(t *testing.T) {
	grand := d("59000.00")
	due := day("2026-03-15")

	cases := []struct {
		name    string
		applied AppliedTotals
		today   time.Time
		want    Status
	}{
		{
			name:  "no payments before due date",
			today: day("2026-03-01"),
			want:  StatusPending,
		},
		{
			name:  "no payments on due date",
			today: day("2026-03-15"),
			want:  StatusPending,
		},
		{
			name:  "no payments past due date",
			today: day("2026-03-16"),
			want:  StatusOverdue,
		},
		{
			name:    "partial allocation",
			applied: AppliedTotals{Allocations: d("20000.00"), HasAllocation: true},
			today:   day("2026-03-01"),
			want:    StatusPartiallyPaid,
		},
		{
			name:    "partial allocation past due still partially paid",
			applied: AppliedTotals{Allocations: d("20000.00"), HasAllocation: true},
			today:   day("2026-04-01"),
			want:    StatusPartiallyPaid,
		},
		{
			name:    "credit alone reduces outstanding but not to partially paid",
			applied: AppliedTotals{Credits: d("9000.00")},
			today:   day("2026-03-01"),
			want:    StatusPending,
		},
		{
			name:    "credit alone past due",
			applied: AppliedTotals{Credits: d("9000.00")},
			today:   day("2026-04-01"),
			want:    StatusOverdue,
		},
		{
			name:    "fully allocated",
			applied: AppliedTotals{Allocations: d("59000.00"), HasAllocation: true},
			today:   day("2026-03-01"),
			want:    StatusPaid,
		},
		{
			name:    "allocations plus credits reach the total",
			applied: AppliedTotals{Allocations: d("50000.00"), Credits: d("9000.00"), HasAllocation: true},
			today:   day("2026-04-01"),
			want:    StatusPaid,
		},
		{
			name:    "credit alone covering the full amount is paid",
			applied: AppliedTotals{Credits: d("59000.00")},
			today:   day("2026-03-01"),
			want:    StatusPaid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(grand, tc.applied, due, tc.today)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDeriveStatusIdempotent(t *testing.T) {
	grand := d("100.00")
	applied := AppliedTotals{Allocations: d("40.00"), HasAllocation: true}
	due := day("2026-01-31")
	today := day("2026-02-10")

	first := DeriveStatus(grand, applied, due, today)
	second := DeriveStatus(grand, applied, due, today)
	require.Equal(t, first, second)
	require.Equal(t, StatusPartiallyPaid, first)
}

func TestOutstanding(t *testing.T) {
	applied := AppliedTotals{Allocations: d("30.00"), Credits: d("20.50")}
	require.True(t, Outstanding(d("100.00"), applied).Equal(d("49.50")))
	require.True(t, Outstanding(d("50.50"), applied).IsZero())
}
