package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/numbering"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// RepositoryPort defines data access for the invoice ledger.
type RepositoryPort interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter, today time.Time) ([]Invoice, int, error)
	Update(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	NumberExists(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)
	AppliedTotals(ctx context.Context, tenantID, id uuid.UUID) (AppliedTotals, error)
	ReferenceCounts(ctx context.Context, tenantID, id uuid.UUID) (ReferenceCounts, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status, paidAt *time.Time) error
}

// CustomerDirectory is the tenant-scoped customer lookup the ledger consumes.
type CustomerDirectory interface {
	Lookup(ctx context.Context, tenantID, id uuid.UUID) (*customers.Customer, error)
}

// NumberSource assigns the next document number for a tenant and period.
type NumberSource interface {
	Next(ctx context.Context, tenantID uuid.UUID, kind numbering.Kind, period string) (string, error)
}

// Service owns the invoice lifecycle and status derivation.
type Service struct {
	repo      RepositoryPort
	directory CustomerDirectory
	numbers   NumberSource
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, directory CustomerDirectory, numbers NumberSource) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		numbers:   numbers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and records a new invoice with its line items.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, input CreateInput) (*Invoice, error) {
	if tenantID == uuid.Nil {
		return nil, shared.Validationf("tenantId", "tenant is required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, shared.Validationf("customerId", "customer is required")
	}
	if _, err := s.directory.Lookup(ctx, tenantID, input.CustomerID); err != nil {
		return nil, err
	}
	if err := validateDates(input.IssueDate, input.DueDate); err != nil {
		return nil, err
	}
	lines, subtotal, taxTotal, grandTotal, err := buildLines(input.Lines)
	if err != nil {
		return nil, err
	}

	number := input.Number
	if number != "" {
		taken, err := s.repo.NumberExists(ctx, tenantID, number)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, shared.Conflictf("invoice number %s already exists", number)
		}
	} else {
		number, err = s.numbers.Next(ctx, tenantID, numbering.KindInvoice, numbering.PeriodOf(input.IssueDate))
		if err != nil {
			return nil, err
		}
	}

	inv := &Invoice{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Number:     number,
		CustomerID: input.CustomerID,
		IssueDate:  input.IssueDate,
		DueDate:    input.DueDate,
		Reference:  input.Reference,
		Notes:      input.Notes,
		Lines:      lines,
		Subtotal:   subtotal,
		TaxTotal:   taxTotal,
		GrandTotal: grandTotal,
		// A new invoice carries no payments, so it never starts as paid.
		Status: DeriveStatus(grandTotal, AppliedTotals{}, input.DueDate, s.now()),
	}
	for i := range inv.Lines {
		inv.Lines[i].InvoiceID = inv.ID
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Edit replaces the editable fields of an invoice and recomputes its totals.
// Editing is allowed only while the invoice is unpaid and unreferenced.
func (s *Service) Edit(ctx context.Context, tenantID, id uuid.UUID, input EditInput) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending && inv.Status != StatusOverdue {
		return nil, shared.Lockedf("invoice %s is %s and cannot be edited", inv.Number, inv.Status)
	}
	refs, err := s.repo.ReferenceCounts(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if refs.TotalRefs() > 0 {
		return nil, shared.Lockedf("invoice %s has payments or credits attached", inv.Number)
	}
	if err := validateDates(input.IssueDate, input.DueDate); err != nil {
		return nil, err
	}
	lines, subtotal, taxTotal, grandTotal, err := buildLines(input.Lines)
	if err != nil {
		return nil, err
	}

	inv.IssueDate = input.IssueDate
	inv.DueDate = input.DueDate
	inv.Reference = input.Reference
	inv.Notes = input.Notes
	inv.Lines = lines
	for i := range inv.Lines {
		inv.Lines[i].InvoiceID = inv.ID
	}
	inv.Subtotal = subtotal
	inv.TaxTotal = taxTotal
	inv.GrandTotal = grandTotal
	inv.Status = DeriveStatus(grandTotal, AppliedTotals{}, input.DueDate, s.now())

	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Delete removes an invoice and its line items. Permitted only when nothing
// references the invoice; referenced history is never physically removed.
func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	inv, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.ReferenceCounts(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if refs.TotalRefs() > 0 {
		return shared.Lockedf("invoice %s has payments or credits attached", inv.Number)
	}
	return s.repo.Delete(ctx, tenantID, id)
}

// Cancel marks an invoice cancelled. Rejected while any non-cancelled
// allocation or credit note still counts against it.
func (s *Service) Cancel(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusCancelled {
		return inv, nil
	}
	refs, err := s.repo.ReferenceCounts(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if refs.ActiveRefs() > 0 {
		return nil, shared.Invariantf("invoice %s has active payments or credits and cannot be cancelled", inv.Number)
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, StatusCancelled, inv.PaidAt); err != nil {
		return nil, err
	}
	inv.Status = StatusCancelled
	return inv, nil
}

// Recompute re-derives the invoice status from the current allocation and
// credit sums. It is idempotent and always works from fresh sums, never from
// incremental patches. docDate is the date of the document that triggered
// the recompute; it becomes the payment-complete timestamp on the first
// transition to paid.
func (s *Service) Recompute(ctx context.Context, tenantID, id uuid.UUID, docDate time.Time) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusCancelled {
		return inv, nil
	}
	applied, err := s.repo.AppliedTotals(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	status := DeriveStatus(inv.GrandTotal, applied, inv.DueDate, s.now())

	paidAt := inv.PaidAt
	if status == StatusPaid && paidAt == nil {
		stamp := docDate
		paidAt = &stamp
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, status, paidAt); err != nil {
		return nil, err
	}
	inv.Status = status
	inv.PaidAt = paidAt
	return inv, nil
}

// Get loads an invoice. pending/overdue are re-derived from the calendar on
// every read rather than persisted as separate events.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	s.refreshTimeDriven(inv)
	return inv, nil
}

// List returns invoices matching the filter, with time-driven statuses
// refreshed.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Invoice, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	invs, total, err := s.repo.List(ctx, tenantID, filter, s.now())
	if err != nil {
		return nil, 0, err
	}
	for i := range invs {
		s.refreshTimeDriven(&invs[i])
	}
	return invs, total, nil
}

// Outstanding returns the invoice plus its current applied totals.
func (s *Service) Outstanding(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, AppliedTotals, error) {
	inv, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, AppliedTotals{}, err
	}
	applied, err := s.repo.AppliedTotals(ctx, tenantID, id)
	if err != nil {
		return nil, AppliedTotals{}, err
	}
	s.refreshTimeDriven(inv)
	return inv, applied, nil
}

func (s *Service) refreshTimeDriven(inv *Invoice) {
	if inv.Status != StatusPending && inv.Status != StatusOverdue {
		return
	}
	if beforeDay(inv.DueDate, s.now()) {
		inv.Status = StatusOverdue
	} else {
		inv.Status = StatusPending
	}
}

func validateDates(issueDate, dueDate time.Time) error {
	if issueDate.IsZero() {
		return shared.Validationf("issueDate", "issue date is required")
	}
	if dueDate.IsZero() {
		return shared.Validationf("dueDate", "due date is required")
	}
	if beforeDay(dueDate, issueDate) {
		return shared.Validationf("dueDate", "due date must not precede issue date")
	}
	return nil
}

func buildLines(inputs []LineItemInput) (lines []LineItem, subtotal, taxTotal, grandTotal decimal.Decimal, err error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, decimal.Zero, decimal.Zero, shared.Validationf("lineItems", "at least one line item is required")
	}
	for i, in := range inputs {
		if !money.ValidQuantity(in.Quantity) {
			return nil, decimal.Zero, decimal.Zero, decimal.Zero, shared.Validationf("lineItems", "line %d: quantity must be greater than zero", i+1)
		}
		if !money.ValidRate(in.Rate) {
			return nil, decimal.Zero, decimal.Zero, decimal.Zero, shared.Validationf("lineItems", "line %d: rate must not be negative", i+1)
		}
		if !money.ValidTaxRate(in.TaxRate) {
			return nil, decimal.Zero, decimal.Zero, decimal.Zero, shared.Validationf("lineItems", "line %d: tax rate must be between 0 and 100", i+1)
		}
		amount, tax, total := money.LineAmounts(in.Quantity, in.Rate, in.TaxRate)
		lines = append(lines, LineItem{
			ID:          uuid.New(),
			Description: in.Description,
			Quantity:    in.Quantity,
			Rate:        in.Rate,
			Amount:      amount,
			TaxRate:     in.TaxRate,
			TaxAmount:   tax,
			Total:       total,
		})
		subtotal = subtotal.Add(amount)
		taxTotal = taxTotal.Add(tax)
	}
	grandTotal = subtotal.Add(taxTotal)
	return lines, subtotal, taxTotal, grandTotal, nil
}
