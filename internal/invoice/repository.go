package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository provides PostgreSQL backed persistence for invoices and their
// line items.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the invoice header and its lines in one transaction.
func (r *Repository) Create(ctx context.Context, inv *Invoice) error {
	return storageErr("invoices: create", db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
		INSERT INTO invoices (
			id, tenant_id, number, customer_id, issue_date, due_date,
			reference, notes, subtotal, tax_total, grand_total, status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			inv.ID, inv.TenantID, inv.Number, inv.CustomerID, inv.IssueDate, inv.DueDate,
			inv.Reference, inv.Notes, inv.Subtotal, inv.TaxTotal, inv.GrandTotal, inv.Status,
		).Scan(&inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return shared.Conflictf("invoice number %s already exists", inv.Number)
			}
			return shared.Storage("invoices: insert", err)
		}
		return insertLines(ctx, tx, inv.ID, inv.Lines)
	}))
}

// Get loads an invoice with its lines.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	query := `
		SELECT id, tenant_id, number, customer_id, issue_date, due_date,
		       reference, notes, subtotal, tax_total, grand_total, status,
		       paid_at, created_at, updated_at
		FROM invoices
		WHERE tenant_id = $1 AND id = $2`

	var inv Invoice
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&inv.ID, &inv.TenantID, &inv.Number, &inv.CustomerID, &inv.IssueDate, &inv.DueDate,
		&inv.Reference, &inv.Notes, &inv.Subtotal, &inv.TaxTotal, &inv.GrandTotal, &inv.Status,
		&inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("invoice %s not found", id)
	}
	if err != nil {
		return nil, shared.Storage("invoices: get", err)
	}

	lines, err := r.lines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return &inv, nil
}

// List returns invoices matching the filter, ordered most recent first,
// together with the unpaginated match count. Status filtering for pending
// and overdue is resolved against today, not the stored column, so that
// an invoice past its due date is found under overdue even before any
// write has refreshed it.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter, today time.Time) ([]Invoice, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}

	switch filter.Status {
	case "":
	case StatusPending:
		args = append(args, today)
		where = append(where, fmt.Sprintf("status IN ('pending','overdue') AND due_date >= $%d::date", len(args)))
	case StatusOverdue:
		args = append(args, today)
		where = append(where, fmt.Sprintf("status IN ('pending','overdue') AND due_date < $%d::date", len(args)))
	default:
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != uuid.Nil {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(number ILIKE $%d OR reference ILIKE $%d)", len(args), len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("issue_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("issue_date <= $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM invoices WHERE " + cond
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, shared.Storage("invoices: count", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT id, tenant_id, number, customer_id, issue_date, due_date,
		       reference, notes, subtotal, tax_total, grand_total, status,
		       paid_at, created_at, updated_at
		FROM invoices
		WHERE %s
		ORDER BY issue_date DESC, number DESC
		LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, shared.Storage("invoices: list", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID, &inv.TenantID, &inv.Number, &inv.CustomerID, &inv.IssueDate, &inv.DueDate,
			&inv.Reference, &inv.Notes, &inv.Subtotal, &inv.TaxTotal, &inv.GrandTotal, &inv.Status,
			&inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, 0, shared.Storage("invoices: scan", err)
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// Update rewrites the invoice header and replaces its lines.
func (r *Repository) Update(ctx context.Context, inv *Invoice) error {
	return storageErr("invoices: update", db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
		UPDATE invoices
		SET issue_date = $3, due_date = $4, reference = $5, notes = $6,
		    subtotal = $7, tax_total = $8, grand_total = $9, status = $10,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`

		err := tx.QueryRow(ctx, query,
			inv.TenantID, inv.ID, inv.IssueDate, inv.DueDate, inv.Reference, inv.Notes,
			inv.Subtotal, inv.TaxTotal, inv.GrandTotal, inv.Status,
		).Scan(&inv.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NotFoundf("invoice %s not found", inv.ID)
		}
		if err != nil {
			return shared.Storage("invoices: update", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, inv.ID); err != nil {
			return shared.Storage("invoices: clear lines", err)
		}
		return insertLines(ctx, tx, inv.ID, inv.Lines)
	}))
}

// Delete removes the invoice and its lines.
func (r *Repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return storageErr("invoices: delete", db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, id); err != nil {
			return shared.Storage("invoices: delete lines", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM invoices WHERE tenant_id = $1 AND id = $2`, tenantID, id)
		if err != nil {
			return shared.Storage("invoices: delete", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.NotFoundf("invoice %s not found", id)
		}
		return nil
	}))
}

// NumberExists reports whether the tenant already has an invoice with the
// given number.
func (r *Repository) NumberExists(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE tenant_id = $1 AND number = $2)`,
		tenantID, number,
	).Scan(&exists)
	if err != nil {
		return false, shared.Storage("invoices: number exists", err)
	}
	return exists, nil
}

// AppliedTotals sums the non-cancelled allocations and credit notes applied
// against the invoice.
func (r *Repository) AppliedTotals(ctx context.Context, tenantID, id uuid.UUID) (AppliedTotals, error) {
	query := `
		SELECT
			COALESCE((
				SELECT SUM(a.amount)
				FROM receipt_allocations a
				JOIN receipts r ON r.id = a.receipt_id
				WHERE a.invoice_id = $2 AND r.tenant_id = $1 AND r.status <> 'cancelled'
			), 0),
			COALESCE((
				SELECT COUNT(*)
				FROM receipt_allocations a
				JOIN receipts r ON r.id = a.receipt_id
				WHERE a.invoice_id = $2 AND r.tenant_id = $1 AND r.status <> 'cancelled'
			), 0),
			COALESCE((
				SELECT SUM(c.total_credit)
				FROM credit_notes c
				WHERE c.invoice_id = $2 AND c.tenant_id = $1 AND c.status <> 'cancelled'
			), 0)`

	var (
		totals      AppliedTotals
		allocations int
	)
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(&totals.Allocations, &allocations, &totals.Credits)
	if err != nil {
		return AppliedTotals{}, shared.Storage("invoices: applied totals", err)
	}
	totals.HasAllocation = allocations > 0
	return totals, nil
}

// ReferenceCounts counts allocations and credit notes pointing at the
// invoice, in any state and in non-cancelled state.
func (r *Repository) ReferenceCounts(ctx context.Context, tenantID, id uuid.UUID) (ReferenceCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*)
			 FROM receipt_allocations a
			 JOIN receipts r ON r.id = a.receipt_id
			 WHERE a.invoice_id = $2 AND r.tenant_id = $1),
			(SELECT COUNT(*)
			 FROM receipt_allocations a
			 JOIN receipts r ON r.id = a.receipt_id
			 WHERE a.invoice_id = $2 AND r.tenant_id = $1 AND r.status <> 'cancelled'),
			(SELECT COUNT(*)
			 FROM credit_notes c
			 WHERE c.invoice_id = $2 AND c.tenant_id = $1),
			(SELECT COUNT(*)
			 FROM credit_notes c
			 WHERE c.invoice_id = $2 AND c.tenant_id = $1 AND c.status <> 'cancelled')`

	var counts ReferenceCounts
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&counts.TotalAllocations, &counts.ActiveAllocations,
		&counts.TotalCredits, &counts.ActiveCredits,
	)
	if err != nil {
		return ReferenceCounts{}, shared.Storage("invoices: reference counts", err)
	}
	return counts, nil
}

// UpdateStatus persists a derived status plus the payment-complete
// timestamp.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status, paidAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status = $3, paid_at = $4, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, status, paidAt,
	)
	if err != nil {
		return shared.Storage("invoices: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("invoice %s not found", id)
	}
	return nil
}

func (r *Repository) lines(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error) {
	query := `
		SELECT id, invoice_id, description, quantity, rate, amount, tax_rate, tax_amount, total
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY position`

	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, shared.Storage("invoices: lines", err)
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(
			&l.ID, &l.InvoiceID, &l.Description, &l.Quantity, &l.Rate,
			&l.Amount, &l.TaxRate, &l.TaxAmount, &l.Total,
		); err != nil {
			return nil, shared.Storage("invoices: scan line", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func insertLines(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, lines []LineItem) error {
	query := `
		INSERT INTO invoice_lines (id, invoice_id, position, description, quantity, rate, amount, tax_rate, tax_amount, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i, l := range lines {
		if _, err := tx.Exec(ctx, query,
			l.ID, invoiceID, i, l.Description, l.Quantity, l.Rate,
			l.Amount, l.TaxRate, l.TaxAmount, l.Total,
		); err != nil {
			return shared.Storage("invoices: insert line", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// storageErr passes typed errors through and wraps anything else, such as
// begin or commit failures, as a storage error.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *shared.Error
	if errors.As(err, &appErr) {
		return err
	}
	return shared.Storage(op, err)
}
