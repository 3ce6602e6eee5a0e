package creditnote

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/invoice"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/numbering"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// RepositoryPort defines data access for credit notes. For invoice-linked
// notes Create runs as one transaction that locks the target invoice and
// verifies the credit headroom under the lock; standalone notes insert
// without touching any invoice row.
type RepositoryPort interface {
	Create(ctx context.Context, note *CreditNote) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*CreditNote, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]CreditNote, int, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error
	NumberExists(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)
}

// Ledger is the slice of the invoice service the credit engine consumes.
type Ledger interface {
	Recompute(ctx context.Context, tenantID, invoiceID uuid.UUID, docDate time.Time) (*invoice.Invoice, error)
}

// NumberSource assigns the next document number for a tenant and period.
type NumberSource interface {
	Next(ctx context.Context, tenantID uuid.UUID, kind numbering.Kind, period string) (string, error)
}

// CustomerDirectory resolves customers for standalone credit notes.
type CustomerDirectory interface {
	Lookup(ctx context.Context, tenantID, id uuid.UUID) (*customers.Customer, error)
}

// Service issues and cancels credit notes, either against an invoice or as
// standalone customer credit.
type Service struct {
	repo      RepositoryPort
	ledger    Ledger
	directory CustomerDirectory
	numbers   NumberSource
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, ledger Ledger, directory CustomerDirectory, numbers NumberSource) *Service {
	return &Service{repo: repo, ledger: ledger, directory: directory, numbers: numbers}
}

// Issue validates and stores a credit note. Invoice-linked notes re-derive
// the invoice status afterwards; the headroom rule holds even when the
// invoice already carries receipt allocations, since allocations plus
// credits never exceed the grand total. Standalone notes skip the invoice
// path entirely and take the customer from the caller.
func (s *Service) Issue(ctx context.Context, tenantID uuid.UUID, input CreateInput) (*CreditNote, error) {
	if tenantID == uuid.Nil {
		return nil, shared.Validationf("tenantId", "tenant is required")
	}
	if input.InvoiceID == uuid.Nil {
		if input.CustomerID == uuid.Nil {
			return nil, shared.Validationf("customerId", "customer is required for a standalone credit note")
		}
		if _, err := s.directory.Lookup(ctx, tenantID, input.CustomerID); err != nil {
			return nil, err
		}
	}
	if input.Date.IsZero() {
		return nil, shared.Validationf("date", "credit note date is required")
	}
	if !input.Amount.IsPositive() {
		return nil, shared.Validationf("amount", "amount must be greater than zero")
	}
	if !money.ValidTaxRate(input.TaxRate) {
		return nil, shared.Validationf("taxRate", "tax rate must be between 0 and 100")
	}

	number := input.Number
	var err error
	if number != "" {
		taken, err := s.repo.NumberExists(ctx, tenantID, number)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, shared.Conflictf("credit note number %s already exists", number)
		}
	} else {
		number, err = s.numbers.Next(ctx, tenantID, numbering.KindCreditNote, numbering.PeriodOf(input.Date))
		if err != nil {
			return nil, err
		}
	}

	amount := input.Amount.Round(2)
	tax := money.TaxOn(amount, input.TaxRate)
	note := &CreditNote{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Number:      number,
		InvoiceID:   input.InvoiceID,
		CustomerID:  input.CustomerID,
		Date:        input.Date,
		Amount:      amount,
		TaxRate:     input.TaxRate,
		TaxAmount:   tax,
		TotalCredit: amount.Add(tax),
		Reason:      input.Reason,
		Status:      StatusIssued,
	}
	if err := s.repo.Create(ctx, note); err != nil {
		return nil, err
	}

	if note.InvoiceID != uuid.Nil {
		if _, err := s.ledger.Recompute(ctx, tenantID, note.InvoiceID, note.Date); err != nil {
			return nil, err
		}
	}
	return note, nil
}

// Cancel voids an issued credit note. For invoice-linked notes the invoice
// status is re-derived, which may move backwards once the credit stops
// counting.
func (s *Service) Cancel(ctx context.Context, tenantID, id uuid.UUID) (*CreditNote, error) {
	note, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if note.Status == StatusCancelled {
		return note, nil
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, StatusCancelled); err != nil {
		return nil, err
	}
	note.Status = StatusCancelled

	if note.InvoiceID != uuid.Nil {
		if _, err := s.ledger.Recompute(ctx, tenantID, note.InvoiceID, note.Date); err != nil {
			return nil, err
		}
	}
	return note, nil
}

// Get loads a credit note.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*CreditNote, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns credit notes matching the filter.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]CreditNote, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, tenantID, filter)
}
