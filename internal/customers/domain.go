package customers

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the tenant-scoped party that invoices, receipts and credit
// notes reference. Category is the client-type label used by revenue
// breakdowns (e.g. Enterprise, SMB, Individual).
type Customer struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Code         string
	Name         string
	Category     string
	Email        string
	PaymentTerms int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput carries the fields accepted when registering a customer.
type CreateInput struct {
	Code         string
	Name         string
	Category     string
	Email        string
	PaymentTerms int
}
