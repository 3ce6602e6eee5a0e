package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository runs the aggregate projections against PostgreSQL. All
// queries exclude cancelled documents; outstanding amounts subtract live
// allocations and credits from the grand total.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const appliedExpr = `
	COALESCE((
		SELECT SUM(ra.amount)
		FROM receipt_allocations ra
		JOIN receipts rc ON rc.id = ra.receipt_id
		WHERE ra.invoice_id = i.id AND rc.status <> 'cancelled'
	), 0)
	+
	COALESCE((
		SELECT SUM(c.total_credit)
		FROM credit_notes c
		WHERE c.invoice_id = i.id AND c.status <> 'cancelled'
	), 0)`

// Receivables sums outstanding amounts over open invoices.
func (r *Repository) Receivables(ctx context.Context, tenantID uuid.UUID, today time.Time) (Receivables, error) {
	query := `
		SELECT
			COALESCE(SUM(outstanding), 0),
			COALESCE(SUM(outstanding) FILTER (WHERE due_date < $2::date), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE due_date < $2::date)
		FROM (
			SELECT i.due_date, i.grand_total - (` + appliedExpr + `) AS outstanding
			FROM invoices i
			WHERE i.tenant_id = $1 AND i.status IN ('pending', 'overdue', 'partially_paid')
		) open`

	var out Receivables
	err := r.pool.QueryRow(ctx, query, tenantID, today).Scan(
		&out.TotalOutstanding, &out.TotalOverdue, &out.OpenCount, &out.OverdueCount,
	)
	if err != nil {
		return Receivables{}, shared.Storage("dashboard: receivables", err)
	}
	return out, nil
}

// PaidRevenue sums grand totals of paid invoices issued in [from, to].
func (r *Repository) PaidRevenue(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(grand_total), 0)
		FROM invoices
		WHERE tenant_id = $1 AND status = 'paid'
		  AND issue_date >= $2 AND issue_date <= $3`,
		tenantID, from, to,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, shared.Storage("dashboard: paid revenue", err)
	}
	return total, nil
}

// PaidIntervals returns issue and payment dates of paid invoices that
// carry a payment-complete timestamp.
func (r *Repository) PaidIntervals(ctx context.Context, tenantID uuid.UUID) ([]PaidInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT issue_date, paid_at
		FROM invoices
		WHERE tenant_id = $1 AND status = 'paid' AND paid_at IS NOT NULL`,
		tenantID)
	if err != nil {
		return nil, shared.Storage("dashboard: paid intervals", err)
	}
	defer rows.Close()

	var out []PaidInterval
	for rows.Next() {
		var iv PaidInterval
		if err := rows.Scan(&iv.IssueDate, &iv.PaidAt); err != nil {
			return nil, shared.Storage("dashboard: scan interval", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// OutstandingInvoices returns due date and remaining amount of every open
// invoice.
func (r *Repository) OutstandingInvoices(ctx context.Context, tenantID uuid.UUID) ([]OutstandingInvoice, error) {
	query := `
		SELECT i.due_date, i.grand_total - (` + appliedExpr + `) AS outstanding
		FROM invoices i
		WHERE i.tenant_id = $1 AND i.status IN ('pending', 'overdue', 'partially_paid')`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, shared.Storage("dashboard: outstanding invoices", err)
	}
	defer rows.Close()

	var out []OutstandingInvoice
	for rows.Next() {
		var inv OutstandingInvoice
		if err := rows.Scan(&inv.DueDate, &inv.Outstanding); err != nil {
			return nil, shared.Storage("dashboard: scan outstanding", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// PaidRevenueByCategory groups paid revenue by customer category.
func (r *Repository) PaidRevenueByCategory(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(NULLIF(c.category, ''), 'uncategorized'), COALESCE(SUM(i.grand_total), 0)
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.tenant_id = $1 AND i.status = 'paid'
		  AND i.issue_date >= $2 AND i.issue_date <= $3
		GROUP BY 1`,
		tenantID, from, to)
	if err != nil {
		return nil, shared.Storage("dashboard: revenue by category", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			category string
			revenue  decimal.Decimal
		)
		if err := rows.Scan(&category, &revenue); err != nil {
			return nil, shared.Storage("dashboard: scan category", err)
		}
		out[category] = revenue
	}
	return out, rows.Err()
}

// MonthlyPaidRevenue returns paid revenue per calendar month of one year.
func (r *Repository) MonthlyPaidRevenue(ctx context.Context, tenantID uuid.UUID, year int) (map[int]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT EXTRACT(MONTH FROM issue_date)::int, COALESCE(SUM(grand_total), 0)
		FROM invoices
		WHERE tenant_id = $1 AND status = 'paid'
		  AND EXTRACT(YEAR FROM issue_date) = $2
		GROUP BY 1`,
		tenantID, year)
	if err != nil {
		return nil, shared.Storage("dashboard: monthly revenue", err)
	}
	defer rows.Close()

	out := make(map[int]decimal.Decimal)
	for rows.Next() {
		var (
			month   int
			revenue decimal.Decimal
		)
		if err := rows.Scan(&month, &revenue); err != nil {
			return nil, shared.Storage("dashboard: scan month", err)
		}
		out[month] = revenue
	}
	return out, rows.Err()
}

// PendingInvoiceCount counts invoices still awaiting any payment.
func (r *Repository) PendingInvoiceCount(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM invoices
		WHERE tenant_id = $1 AND status IN ('pending', 'overdue')`,
		tenantID).Scan(&count)
	if err != nil {
		return 0, shared.Storage("dashboard: pending count", err)
	}
	return count, nil
}

// IssuedCreditTotal sums live credit notes.
func (r *Repository) IssuedCreditTotal(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_credit), 0)
		FROM credit_notes
		WHERE tenant_id = $1 AND status = 'issued'`,
		tenantID).Scan(&total)
	if err != nil {
		return decimal.Zero, shared.Storage("dashboard: credit total", err)
	}
	return total, nil
}
