package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receivables summarises open customer debt for one tenant.
type Receivables struct {
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
	TotalOverdue     decimal.Decimal `json:"totalOverdue"`
	OpenCount        int             `json:"openCount"`
	OverdueCount     int             `json:"overdueCount"`
}

// AgingBucket is one slice of the receivables aging report.
type AgingBucket struct {
	Label       string          `json:"label"`
	Count       int             `json:"count"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// AgingReport partitions every outstanding invoice into exactly one bucket
// by days past due. Invoices not yet due land in the first bucket.
type AgingReport struct {
	AsOf    string        `json:"asOf"`
	Buckets []AgingBucket `json:"buckets"`
}

// CategoryRevenue is paid revenue attributed to one customer category.
// Percent is rounded for display only; the decimal amounts stay exact.
type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Percent  float64         `json:"percent"`
}

// MonthlyPoint compares one calendar month of paid revenue against the
// same month a year earlier.
type MonthlyPoint struct {
	Month    int             `json:"month"`
	Current  decimal.Decimal `json:"current"`
	Previous decimal.Decimal `json:"previous"`
}

// Summary is the aggregate card shown on the dashboard landing view.
type Summary struct {
	Receivables         Receivables     `json:"receivables"`
	RevenueMonth        decimal.Decimal `json:"revenueMonth"`
	RevenueYear         decimal.Decimal `json:"revenueYear"`
	AvgCollectionDays   float64         `json:"avgCollectionDays"`
	PendingInvoiceCount int             `json:"pendingInvoiceCount"`
	CreditNoteTotal     decimal.Decimal `json:"creditNoteTotal"`
}

// OutstandingInvoice is the projection the aging report is computed from.
type OutstandingInvoice struct {
	DueDate     time.Time
	Outstanding decimal.Decimal
}

// PaidInterval is the projection average collection period is computed
// from: days between issue and the payment-complete date.
type PaidInterval struct {
	IssueDate time.Time
	PaidAt    time.Time
}
