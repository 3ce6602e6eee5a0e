package creditnote

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates credit note lifecycle states.
type Status string

const (
	StatusIssued    Status = "issued"
	StatusCancelled Status = "cancelled"
)

// CreditNote reduces what a customer owes. It may target one invoice, in
// which case TotalCredit is counted against that invoice's grand total, or
// stand alone as general credit for the customer (InvoiceID is uuid.Nil).
// TaxAmount is derived from Amount and TaxRate the same way invoice lines
// are taxed.
type CreditNote struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Number      string
	InvoiceID   uuid.UUID
	CustomerID  uuid.UUID
	Date        time.Time
	Amount      decimal.Decimal
	TaxRate     decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalCredit decimal.Decimal
	Reason      string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput carries the fields for issuing a credit note. Number is
// optional; when empty a number is assigned from the tenant's credit note
// sequence. InvoiceID is optional: when set, the customer is taken from the
// invoice and CustomerID is ignored; when absent, CustomerID is required and
// the note is issued standalone.
type CreateInput struct {
	InvoiceID  uuid.UUID
	CustomerID uuid.UUID
	Date       time.Time
	Amount     decimal.Decimal
	TaxRate    decimal.Decimal
	Number     string
	Reason     string
}

// ListFilter narrows List results.
type ListFilter struct {
	InvoiceID  uuid.UUID
	CustomerID uuid.UUID
	Status     Status
	Limit      int
	Offset     int
}
