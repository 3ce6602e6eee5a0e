package invoice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/numbering"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryInvoiceRepo struct {
	invoices map[uuid.UUID]*Invoice
	applied  map[uuid.UUID]AppliedTotals
	refs     map[uuid.UUID]ReferenceCounts
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{
		invoices: make(map[uuid.UUID]*Invoice),
		applied:  make(map[uuid.UUID]AppliedTotals),
		refs:     make(map[uuid.UUID]ReferenceCounts),
	}
}

func (r *memoryInvoiceRepo) Create(ctx context.Context, inv *Invoice) error {
	for _, existing := range r.invoices {
		if existing.TenantID == inv.TenantID && existing.Number == inv.Number {
			return shared.Conflictf("invoice number %s already exists", inv.Number)
		}
	}
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *memoryInvoiceRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, shared.NotFoundf("invoice %s not found", id)
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryInvoiceRepo) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter, today time.Time) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if filter.CustomerID != uuid.Nil && inv.CustomerID != filter.CustomerID {
			continue
		}
		switch filter.Status {
		case "":
		case StatusPending:
			if inv.Status != StatusPending && inv.Status != StatusOverdue {
				continue
			}
			if beforeDay(inv.DueDate, today) {
				continue
			}
		case StatusOverdue:
			if inv.Status != StatusPending && inv.Status != StatusOverdue {
				continue
			}
			if !beforeDay(inv.DueDate, today) {
				continue
			}
		default:
			if inv.Status != filter.Status {
				continue
			}
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (r *memoryInvoiceRepo) Update(ctx context.Context, inv *Invoice) error {
	if _, ok := r.invoices[inv.ID]; !ok {
		return shared.NotFoundf("invoice %s not found", inv.ID)
	}
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *memoryInvoiceRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return shared.NotFoundf("invoice %s not found", id)
	}
	delete(r.invoices, id)
	return nil
}

func (r *memoryInvoiceRepo) NumberExists(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	for _, inv := range r.invoices {
		if inv.TenantID == tenantID && inv.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryInvoiceRepo) AppliedTotals(ctx context.Context, tenantID, id uuid.UUID) (AppliedTotals, error) {
	return r.applied[id], nil
}

func (r *memoryInvoiceRepo) ReferenceCounts(ctx context.Context, tenantID, id uuid.UUID) (ReferenceCounts, error) {
	return r.refs[id], nil
}

func (r *memoryInvoiceRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status, paidAt *time.Time) error {
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return shared.NotFoundf("invoice %s not found", id)
	}
	inv.Status = status
	inv.PaidAt = paidAt
	return nil
}

type stubDirectory struct {
	known map[uuid.UUID]bool
}

func (d *stubDirectory) Lookup(ctx context.Context, tenantID, id uuid.UUID) (*customers.Customer, error) {
	if !d.known[id] {
		return nil, shared.NotFoundf("customer %s not found", id)
	}
	return &customers.Customer{ID: id, TenantID: tenantID, Name: "Acme"}, nil
}

type stubNumbers struct {
	next int
}

func (n *stubNumbers) Next(ctx context.Context, tenantID uuid.UUID, kind numbering.Kind, period string) (string, error) {
	n.next++
	return fmt.Sprintf("%s-%s-%04d", kind.Prefix(), period, n.next), nil
}

func newTestService(today string) (*Service, *memoryInvoiceRepo, uuid.UUID, uuid.UUID) {
	repo := newMemoryInvoiceRepo()
	tenantID := uuid.New()
	customerID := uuid.New()
	svc := NewService(repo, &stubDirectory{known: map[uuid.UUID]bool{customerID: true}}, &stubNumbers{})
	svc.now = func() time.Time { return day(today) }
	return svc, repo, tenantID, customerID
}

func validInput(customerID uuid.UUID) CreateInput {
	return CreateInput{
		CustomerID: customerID,
		IssueDate:  day("2026-03-01"),
		DueDate:    day("2026-03-31"),
		Lines: []LineItemInput{
			{Description: "Consulting", Quantity: d("10"), Rate: d("5000.00"), TaxRate: d("18")},
		},
	}
}

func TestCreateComputesTotalsAndAssignsNumber(t *testing.T) {
	svc, _, tenantID, customerID := newTestService("2026-03-05")

	inv, err := svc.Create(context.Background(), tenantID, validInput(customerID))
	require.NoError(t, err)
	require.Equal(t, "INV-2026-0001", inv.Number)
	require.True(t, inv.Subtotal.Equal(d("50000.00")))
	require.True(t, inv.TaxTotal.Equal(d("9000.00")))
	require.True(t, inv.GrandTotal.Equal(d("59000.00")))
	require.Equal(t, StatusPending, inv.Status)
	require.Len(t, inv.Lines, 1)
	require.True(t, inv.Lines[0].Total.Equal(d("59000.00")))
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	input := validInput(customerID)
	input.Lines = nil
	_, err := svc.Create(ctx, tenantID, input)
	require.True(t, shared.IsKind(err, shared.KindValidation))

	input = validInput(customerID)
	input.Lines[0].Quantity = d("0")
	_, err = svc.Create(ctx, tenantID, input)
	require.True(t, shared.IsKind(err, shared.KindValidation))

	input = validInput(customerID)
	input.Lines[0].Rate = d("-1")
	_, err = svc.Create(ctx, tenantID, input)
	require.True(t, shared.IsKind(err, shared.KindValidation))

	input = validInput(customerID)
	input.Lines[0].TaxRate = d("101")
	_, err = svc.Create(ctx, tenantID, input)
	require.True(t, shared.IsKind(err, shared.KindValidation))

	input = validInput(customerID)
	input.DueDate = day("2026-02-01")
	_, err = svc.Create(ctx, tenantID, input)
	require.True(t, shared.IsKind(err, shared.KindValidation))

	input = validInput(customerID)
	input.CustomerID = uuid.New()
	_, err = svc.Create(ctx, tenantID, input)
	require.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestCreateRejectsDuplicateNumber(t *testing.T) {
	svc, _, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	input := validInput(customerID)
	input.Number = "INV-2026-0042"
	_, err := svc.Create(ctx, tenantID, input)
	require.NoError(t, err)

	_, err = svc.Create(ctx, tenantID, input)
	require.True(t, shared.IsKind(err, shared.KindConflict))
}

func TestCreatePastDueStartsOverdue(t *testing.T) {
	svc, _, tenantID, customerID := newTestService("2026-05-01")

	inv, err := svc.Create(context.Background(), tenantID, validInput(customerID))
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, inv.Status)
}

func TestEditRecomputesTotals(t *testing.T) {
	svc, _, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	inv, err := svc.Create(ctx, tenantID, validInput(customerID))
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, tenantID, inv.ID, EditInput{
		IssueDate: inv.IssueDate,
		DueDate:   inv.DueDate,
		Lines: []LineItemInput{
			{Description: "Consulting", Quantity: d("2"), Rate: d("100.00"), TaxRate: d("10")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, inv.Number, edited.Number)
	require.True(t, edited.Subtotal.Equal(d("200.00")))
	require.True(t, edited.TaxTotal.Equal(d("20.00")))
	require.True(t, edited.GrandTotal.Equal(d("220.00")))
}

func TestEditRejectedWhenReferenced(t *testing.T) {
	svc, repo, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	inv, err := svc.Create(ctx, tenantID, validInput(customerID))
	require.NoError(t, err)
	repo.refs[inv.ID] = ReferenceCounts{TotalAllocations: 1, ActiveAllocations: 1}

	_, err = svc.Edit(ctx, tenantID, inv.ID, EditInput{
		IssueDate: inv.IssueDate,
		DueDate:   inv.DueDate,
		Lines:     validInput(customerID).Lines,
	})
	require.True(t, shared.IsKind(err, shared.KindLocked))
}

func TestDeleteRejectedWhenEverReferenced(t *testing.T) {
	svc, repo, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	inv, err := svc.Create(ctx, tenantID, validInput(customerID))
	require.NoError(t, err)

	// A cancelled credit note still counts as history.
	repo.refs[inv.ID] = ReferenceCounts{TotalCredits: 1}
	err = svc.Delete(ctx, tenantID, inv.ID)
	require.True(t, shared.IsKind(err, shared.KindLocked))

	repo.refs[inv.ID] = ReferenceCounts{}
	require.NoError(t, svc.Delete(ctx, tenantID, inv.ID))
	_, err = svc.Get(ctx, tenantID, inv.ID)
	require.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestCancelRejectedWithActiveReferences(t *testing.T) {
	svc, repo, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	inv, err := svc.Create(ctx, tenantID, validInput(customerID))
	require.NoError(t, err)

	repo.refs[inv.ID] = ReferenceCounts{TotalAllocations: 1, ActiveAllocations: 1}
	_, err = svc.Cancel(ctx, tenantID, inv.ID)
	require.True(t, shared.IsKind(err, shared.KindInvariant))

	// Once every referencing document is cancelled itself, cancel is allowed.
	repo.refs[inv.ID] = ReferenceCounts{TotalAllocations: 1}
	cancelled, err := svc.Cancel(ctx, tenantID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestRecomputeTransitions(t *testing.T) {
	svc, repo, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	inv, err := svc.Create(ctx, tenantID, validInput(customerID))
	require.NoError(t, err)

	repo.applied[inv.ID] = AppliedTotals{Allocations: d("20000.00"), HasAllocation: true}
	got, err := svc.Recompute(ctx, tenantID, inv.ID, day("2026-03-10"))
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, got.Status)
	require.Nil(t, got.PaidAt)

	repo.applied[inv.ID] = AppliedTotals{Allocations: d("59000.00"), HasAllocation: true}
	got, err = svc.Recompute(ctx, tenantID, inv.ID, day("2026-03-12"))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	require.Equal(t, day("2026-03-12"), *got.PaidAt)

	// Reopening after a cancelled receipt keeps the original payment stamp.
	repo.applied[inv.ID] = AppliedTotals{Allocations: d("20000.00"), HasAllocation: true}
	got, err = svc.Recompute(ctx, tenantID, inv.ID, day("2026-03-20"))
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	require.Equal(t, day("2026-03-12"), *got.PaidAt)
}

func TestRecomputeIdempotent(t *testing.T) {
	svc, repo, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	inv, err := svc.Create(ctx, tenantID, validInput(customerID))
	require.NoError(t, err)
	repo.applied[inv.ID] = AppliedTotals{Allocations: d("59000.00"), HasAllocation: true}

	first, err := svc.Recompute(ctx, tenantID, inv.ID, day("2026-03-10"))
	require.NoError(t, err)
	second, err := svc.Recompute(ctx, tenantID, inv.ID, day("2026-03-18"))
	require.NoError(t, err)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, *first.PaidAt, *second.PaidAt)
}

func TestGetRefreshesOverdue(t *testing.T) {
	svc, _, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	inv, err := svc.Create(ctx, tenantID, validInput(customerID))
	require.NoError(t, err)
	require.Equal(t, StatusPending, inv.Status)

	svc.now = func() time.Time { return day("2026-04-15") }
	got, err := svc.Get(ctx, tenantID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, got.Status)
}

func TestListFiltersByDerivedStatus(t *testing.T) {
	svc, _, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	onTime := validInput(customerID)
	_, err := svc.Create(ctx, tenantID, onTime)
	require.NoError(t, err)

	late := validInput(customerID)
	late.IssueDate = day("2026-01-01")
	late.DueDate = day("2026-01-31")
	lateInv, err := svc.Create(ctx, tenantID, late)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, lateInv.Status)

	overdue, total, err := svc.List(ctx, tenantID, ListFilter{Status: StatusOverdue})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, lateInv.ID, overdue[0].ID)

	pending, total, err := svc.List(ctx, tenantID, ListFilter{Status: StatusPending})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, StatusPending, pending[0].Status)
}

func TestTenantIsolation(t *testing.T) {
	svc, _, tenantID, customerID := newTestService("2026-03-05")
	ctx := context.Background()

	inv, err := svc.Create(ctx, tenantID, validInput(customerID))
	require.NoError(t, err)

	_, err = svc.Get(ctx, uuid.New(), inv.ID)
	require.True(t, shared.IsKind(err, shared.KindNotFound))
}
