package creditnote

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository provides PostgreSQL backed persistence for credit notes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the credit note. When the note targets an invoice the
// insert runs after locking that invoice row and checking that total
// applied money stays within the grand total; the customer is copied from
// the invoice under the same lock. Standalone notes insert directly with a
// NULL invoice reference.
func (r *Repository) Create(ctx context.Context, note *CreditNote) error {
	if note.InvoiceID == uuid.Nil {
		return r.insert(ctx, r.pool, note)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return shared.Storage("credit notes: begin", err)
	}
	defer tx.Rollback(ctx)

	var (
		invNumber  string
		customerID uuid.UUID
		invStatus  string
		grandTotal decimal.Decimal
	)
	err = tx.QueryRow(ctx, `
		SELECT number, customer_id, status, grand_total
		FROM invoices
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE`, note.TenantID, note.InvoiceID,
	).Scan(&invNumber, &customerID, &invStatus, &grandTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFoundf("invoice %s not found", note.InvoiceID)
	}
	if err != nil {
		return shared.Storage("credit notes: lock invoice", err)
	}
	if invStatus == "cancelled" {
		return shared.Invariantf("invoice %s is cancelled", invNumber)
	}
	note.CustomerID = customerID

	var applied decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT
			COALESCE((
				SELECT SUM(ra.amount)
				FROM receipt_allocations ra
				JOIN receipts rc ON rc.id = ra.receipt_id
				WHERE ra.invoice_id = $1 AND rc.status <> 'cancelled'
			), 0)
			+
			COALESCE((
				SELECT SUM(c.total_credit)
				FROM credit_notes c
				WHERE c.invoice_id = $1 AND c.status <> 'cancelled'
			), 0)`, note.InvoiceID,
	).Scan(&applied)
	if err != nil {
		return shared.Storage("credit notes: applied sum", err)
	}
	if applied.Add(note.TotalCredit).GreaterThan(grandTotal) {
		return shared.Invariantf(
			"credit of %s exceeds outstanding %s on invoice %s",
			note.TotalCredit.StringFixed(2), grandTotal.Sub(applied).StringFixed(2), invNumber,
		)
	}

	if err := r.insert(ctx, tx, note); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return shared.Storage("credit notes: commit", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) insert(ctx context.Context, q rowQuerier, note *CreditNote) error {
	query := `
		INSERT INTO credit_notes (id, tenant_id, number, invoice_id, customer_id, note_date, amount, tax_rate, tax_amount, total_credit, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := q.QueryRow(ctx, query,
		note.ID, note.TenantID, note.Number, nullableID(note.InvoiceID), note.CustomerID, note.Date,
		note.Amount, note.TaxRate, note.TaxAmount, note.TotalCredit, note.Reason, note.Status,
	).Scan(&note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.Conflictf("credit note number %s already exists", note.Number)
		}
		return shared.Storage("credit notes: insert", err)
	}
	return nil
}

func nullableID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

// Get loads a credit note.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*CreditNote, error) {
	query := `
		SELECT id, tenant_id, number, invoice_id, customer_id, note_date, amount, tax_rate, tax_amount, total_credit, reason, status, created_at, updated_at
		FROM credit_notes
		WHERE tenant_id = $1 AND id = $2`

	var (
		note      CreditNote
		invoiceID uuid.NullUUID
	)
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&note.ID, &note.TenantID, &note.Number, &invoiceID, &note.CustomerID, &note.Date,
		&note.Amount, &note.TaxRate, &note.TaxAmount, &note.TotalCredit, &note.Reason, &note.Status,
		&note.CreatedAt, &note.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("credit note %s not found", id)
	}
	if err != nil {
		return nil, shared.Storage("credit notes: get", err)
	}
	note.InvoiceID = invoiceID.UUID
	return &note, nil
}

// List returns credit notes matching the filter, most recent first, with
// the unpaginated match count.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]CreditNote, int, error) {
	cond := "tenant_id = $1"
	args := []any{tenantID}
	if filter.InvoiceID != uuid.Nil {
		args = append(args, filter.InvoiceID)
		cond += " AND invoice_id = $" + strconv.Itoa(len(args))
	}
	if filter.CustomerID != uuid.Nil {
		args = append(args, filter.CustomerID)
		cond += " AND customer_id = $" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		cond += " AND status = $" + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM credit_notes WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, shared.Storage("credit notes: count", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := `
		SELECT id, tenant_id, number, invoice_id, customer_id, note_date, amount, tax_rate, tax_amount, total_credit, reason, status, created_at, updated_at
		FROM credit_notes
		WHERE ` + cond + `
		ORDER BY note_date DESC, number DESC
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, shared.Storage("credit notes: list", err)
	}
	defer rows.Close()

	var out []CreditNote
	for rows.Next() {
		var (
			note      CreditNote
			invoiceID uuid.NullUUID
		)
		if err := rows.Scan(
			&note.ID, &note.TenantID, &note.Number, &invoiceID, &note.CustomerID, &note.Date,
			&note.Amount, &note.TaxRate, &note.TaxAmount, &note.TotalCredit, &note.Reason, &note.Status,
			&note.CreatedAt, &note.UpdatedAt,
		); err != nil {
			return nil, 0, shared.Storage("credit notes: scan", err)
		}
		note.InvoiceID = invoiceID.UUID
		out = append(out, note)
	}
	return out, total, rows.Err()
}

// UpdateStatus flips the credit note status.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE credit_notes SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, status,
	)
	if err != nil {
		return shared.Storage("credit notes: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("credit note %s not found", id)
	}
	return nil
}

// NumberExists reports whether the tenant already has a credit note with
// the given number.
func (r *Repository) NumberExists(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_notes WHERE tenant_id = $1 AND number = $2)`,
		tenantID, number,
	).Scan(&exists)
	if err != nil {
		return false, shared.Storage("credit notes: number exists", err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
