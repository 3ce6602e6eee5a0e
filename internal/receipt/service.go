package receipt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/invoice"
	"github.com/ledgerline/ledgerline/internal/numbering"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// RepositoryPort defines data access for receipts. Create and Allocate run
// as single transactions that lock each touched invoice row and verify the
// allocation headroom while the lock is held, so concurrent receipts against
// the same invoice serialize instead of over-applying.
type RepositoryPort interface {
	Create(ctx context.Context, rec *Receipt) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Receipt, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Receipt, int, error)
	Allocate(ctx context.Context, tenantID, receiptID uuid.UUID, allocs []AllocationInput) ([]Allocation, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error
	NumberExists(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)
}

// Ledger is the slice of the invoice service the allocation engine consumes.
type Ledger interface {
	Recompute(ctx context.Context, tenantID, invoiceID uuid.UUID, docDate time.Time) (*invoice.Invoice, error)
}

// CustomerDirectory resolves customers within a tenant.
type CustomerDirectory interface {
	Lookup(ctx context.Context, tenantID, id uuid.UUID) (*customers.Customer, error)
}

// NumberSource assigns the next document number for a tenant and period.
type NumberSource interface {
	Next(ctx context.Context, tenantID uuid.UUID, kind numbering.Kind, period string) (string, error)
}

// Service records customer receipts and applies them against invoices.
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

// Record validates and stores a receipt with its allocations, then
// re-derives the status of every touched invoice. The receipt and all its
// allocations commit or roll back together.
func (s *Service) Record(ctx context.Context, tenantID uuid.UUID, input CreateInput) (*Receipt, error) {
	if tenantID == uuid.Nil {
		return nil, shared.Validationf("tenantId", "tenant is required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, shared.Validationf("customerId", "customer is required")
	}
	if _, err := s.directory.Lookup(ctx, tenantID, input.CustomerID); err != nil {
		return nil, err
	}
	if input.Date.IsZero() {
		return nil, shared.Validationf("date", "receipt date is required")
	}
	if input.Method == "" {
		return nil, shared.Validationf("method", "payment method is required")
	}
	if !input.Amount.IsPositive() {
		return nil, shared.Validationf("amount", "amount must be greater than zero")
	}
	if err := validateAllocations(input.Amount, input.Allocations); err != nil {
		return nil, err
	}

	number := input.Number
	var err error
	if number != "" {
		taken, err := s.repo.NumberExists(ctx, tenantID, number)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, shared.Conflictf("receipt number %s already exists", number)
		}
	} else {
		number, err = s.numbers.Next(ctx, tenantID, numbering.KindReceipt, numbering.PeriodOf(input.Date))
		if err != nil {
			return nil, err
		}
	}

	rec := &Receipt{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Number:     number,
		CustomerID: input.CustomerID,
		Date:       input.Date,
		Amount:     input.Amount,
		Method:     input.Method,
		Reference:  input.Reference,
		Notes:      input.Notes,
		Status:     StatusReceived,
	}
	for _, a := range input.Allocations {
		rec.Allocations = append(rec.Allocations, Allocation{
			ID:        uuid.New(),
			ReceiptID: rec.ID,
			InvoiceID: a.InvoiceID,
			Amount:    a.Amount,
		})
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	if err := s.recomputeTouched(ctx, tenantID, rec.Date, input.Allocations); err != nil {
		return nil, err
	}
	return rec, nil
}

// Allocate applies more of a receipt's unapplied amount against invoices.
func (s *Service) Allocate(ctx context.Context, tenantID, receiptID uuid.UUID, allocs []AllocationInput) (*Receipt, error) {
	rec, err := s.repo.Get(ctx, tenantID, receiptID)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusCancelled {
		return nil, shared.Invariantf("receipt %s is cancelled", rec.Number)
	}
	if err := validateAllocations(rec.Unapplied(), allocs); err != nil {
		return nil, err
	}
	added, err := s.repo.Allocate(ctx, tenantID, receiptID, allocs)
	if err != nil {
		return nil, err
	}
	rec.Allocations = append(rec.Allocations, added...)

	if err := s.recomputeTouched(ctx, tenantID, rec.Date, allocs); err != nil {
		return nil, err
	}
	return rec, nil
}

// Cancel voids a receipt. Its allocations stop counting against their
// invoices, so each touched invoice is re-derived and may reopen.
func (s *Service) Cancel(ctx context.Context, tenantID, id uuid.UUID) (*Receipt, error) {
	rec, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusCancelled {
		return rec, nil
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, StatusCancelled); err != nil {
		return nil, err
	}
	rec.Status = StatusCancelled

	seen := make(map[uuid.UUID]bool)
	for _, a := range rec.Allocations {
		if seen[a.InvoiceID] {
			continue
		}
		seen[a.InvoiceID] = true
		if _, err := s.ledger.Recompute(ctx, tenantID, a.InvoiceID, rec.Date); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Get loads a receipt with its allocations.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Receipt, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns receipts matching the filter.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Receipt, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, tenantID, filter)
}

func (s *Service) recomputeTouched(ctx context.Context, tenantID uuid.UUID, docDate time.Time, allocs []AllocationInput) error {
	seen := make(map[uuid.UUID]bool)
	for _, a := range allocs {
		if seen[a.InvoiceID] {
			continue
		}
		seen[a.InvoiceID] = true
		if _, err := s.ledger.Recompute(ctx, tenantID, a.InvoiceID, docDate); err != nil {
			return err
		}
	}
	return nil
}

func validateAllocations(available decimal.Decimal, allocs []AllocationInput) error {
	total := decimal.Zero
	for i, a := range allocs {
		if a.InvoiceID == uuid.Nil {
			return shared.Validationf("allocations", "allocation %d: invoice is required", i+1)
		}
		if !a.Amount.IsPositive() {
			return shared.Validationf("allocations", "allocation %d: amount must be greater than zero", i+1)
		}
		total = total.Add(a.Amount)
	}
	if total.GreaterThan(available) {
		return shared.Validationf("allocations", "allocated %s exceeds available %s", total.StringFixed(2), available.StringFixed(2))
	}
	return nil
}
