package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates invoice lifecycle states. pending and overdue are
// time-driven and re-derived on every read; partially_paid and paid are
// driven by allocations and credits; cancelled is terminal and only ever set
// explicitly.
type Status string

const (
	StatusPending       Status = "pending"
	StatusOverdue       Status = "overdue"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusCancelled     Status = "cancelled"
)

// Invoice model. Totals are fixed-point decimals, exact to 2 fractional
// digits. Lines are owned by the invoice and removed with it.
type Invoice struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Number     string
	CustomerID uuid.UUID
	IssueDate  time.Time
	DueDate    time.Time
	Reference  string
	Notes      string
	Lines      []LineItem
	Subtotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal
	Status     Status
	PaidAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LineItem belongs to exactly one invoice. Amount, TaxAmount and Total are
// derived from Quantity, Rate and TaxRate at write time.
type LineItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	Description string
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
	Amount      decimal.Decimal
	TaxRate     decimal.Decimal
	TaxAmount   decimal.Decimal
	Total       decimal.Decimal
}

// LineItemInput carries the caller-supplied fields of one line.
type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
	TaxRate     decimal.Decimal
}

// CreateInput for creating invoices. Number is optional; when empty a number
// is assigned from the tenant's invoice sequence.
type CreateInput struct {
	CustomerID uuid.UUID
	IssueDate  time.Time
	DueDate    time.Time
	Number     string
	Reference  string
	Notes      string
	Lines      []LineItemInput
}

// EditInput for editing invoices. The document number is immutable.
type EditInput struct {
	IssueDate time.Time
	DueDate   time.Time
	Reference string
	Notes     string
	Lines     []LineItemInput
}

// AppliedTotals summarises the non-cancelled money applied against one
// invoice.
type AppliedTotals struct {
	Allocations   decimal.Decimal
	Credits       decimal.Decimal
	HasAllocation bool
}

// Applied returns allocations plus credits.
func (a AppliedTotals) Applied() decimal.Decimal {
	return a.Allocations.Add(a.Credits)
}

// ReferenceCounts reports how many receipt allocations and credit notes
// point at an invoice. Total counts every reference, including ones whose
// parent document was cancelled; Active counts only live references.
type ReferenceCounts struct {
	TotalAllocations  int
	TotalCredits      int
	ActiveAllocations int
	ActiveCredits     int
}

// TotalRefs returns the number of references of any state.
func (c ReferenceCounts) TotalRefs() int {
	return c.TotalAllocations + c.TotalCredits
}

// ActiveRefs returns the number of non-cancelled references.
func (c ReferenceCounts) ActiveRefs() int {
	return c.ActiveAllocations + c.ActiveCredits
}

// ListFilter narrows List results. Status filtering understands that
// pending/overdue are derived from DueDate at read time.
type ListFilter struct {
	Status     Status
	CustomerID uuid.UUID
	Search     string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
