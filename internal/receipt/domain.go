package receipt

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates receipt lifecycle states.
type Status string

const (
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// Receipt records money received from a customer. The received amount may
// exceed the sum of its allocations; the remainder stays on the receipt as
// unapplied credit.
type Receipt struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Number      string
	CustomerID  uuid.UUID
	Date        time.Time
	Amount      decimal.Decimal
	Method      string
	Reference   string
	Notes       string
	Status      Status
	Allocations []Allocation
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Unapplied returns the portion of the receipt not yet allocated to any
// invoice.
func (r *Receipt) Unapplied() decimal.Decimal {
	applied := decimal.Zero
	for _, a := range r.Allocations {
		applied = applied.Add(a.Amount)
	}
	return r.Amount.Sub(applied)
}

// Allocation applies part of a receipt against one invoice.
type Allocation struct {
	ID        uuid.UUID
	ReceiptID uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// AllocationInput is one caller-supplied allocation line.
type AllocationInput struct {
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
}

// CreateInput carries the fields for recording a receipt. Number is
// optional; when empty a number is assigned from the tenant's receipt
// sequence. Allocations are applied in the order given.
type CreateInput struct {
	CustomerID  uuid.UUID
	Date        time.Time
	Amount      decimal.Decimal
	Method      string
	Number      string
	Reference   string
	Notes       string
	Allocations []AllocationInput
}

// ListFilter narrows List results.
type ListFilter struct {
	CustomerID uuid.UUID
	Status     Status
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
