package receipt

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

// Repository provides PostgreSQL backed persistence for receipts and their
// allocations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the receipt and applies its allocations in one
// transaction. Each touched invoice row is locked and its remaining
// headroom checked under the lock.
func (r *Repository) Create(ctx context.Context, rec *Receipt) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return shared.Storage("receipts: begin", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO receipts (id, tenant_id, number, customer_id, receipt_date, amount, method, reference, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at`

	err = tx.QueryRow(ctx, query,
		rec.ID, rec.TenantID, rec.Number, rec.CustomerID, rec.Date, rec.Amount,
		rec.Method, rec.Reference, rec.Notes, rec.Status,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.Conflictf("receipt number %s already exists", rec.Number)
		}
		return shared.Storage("receipts: insert", err)
	}

	for i := range rec.Allocations {
		a := &rec.Allocations[i]
		if err := applyAllocation(ctx, tx, rec.TenantID, rec.CustomerID, a); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return shared.Storage("receipts: commit", err)
	}
	return nil
}

// Allocate adds allocations to an existing receipt. The receipt row is
// locked so the unapplied headroom check cannot race a concurrent call,
// then each invoice is locked and checked in turn.
func (r *Repository) Allocate(ctx context.Context, tenantID, receiptID uuid.UUID, allocs []AllocationInput) ([]Allocation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, shared.Storage("receipts: begin", err)
	}
	defer tx.Rollback(ctx)

	var (
		number     string
		customerID uuid.UUID
		amount     decimal.Decimal
		status     Status
	)
	err = tx.QueryRow(ctx, `
		SELECT number, customer_id, amount, status
		FROM receipts
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE`, tenantID, receiptID,
	).Scan(&number, &customerID, &amount, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("receipt %s not found", receiptID)
	}
	if err != nil {
		return nil, shared.Storage("receipts: lock", err)
	}
	if status == StatusCancelled {
		return nil, shared.Invariantf("receipt %s is cancelled", number)
	}

	var applied decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM receipt_allocations WHERE receipt_id = $1`,
		receiptID,
	).Scan(&applied)
	if err != nil {
		return nil, shared.Storage("receipts: sum allocations", err)
	}

	incoming := decimal.Zero
	for _, a := range allocs {
		incoming = incoming.Add(a.Amount)
	}
	if applied.Add(incoming).GreaterThan(amount) {
		return nil, shared.Invariantf("receipt %s has only %s unapplied", number, amount.Sub(applied).StringFixed(2))
	}

	out := make([]Allocation, 0, len(allocs))
	for _, in := range allocs {
		a := Allocation{
			ID:        uuid.New(),
			ReceiptID: receiptID,
			InvoiceID: in.InvoiceID,
			Amount:    in.Amount,
		}
		if err := applyAllocation(ctx, tx, tenantID, customerID, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, shared.Storage("receipts: commit", err)
	}
	return out, nil
}

// applyAllocation locks the invoice row, verifies it can absorb the amount
// and inserts the allocation, all inside the caller's transaction.
func applyAllocation(ctx context.Context, tx pgx.Tx, tenantID, customerID uuid.UUID, a *Allocation) error {
	var (
		number        string
		invCustomerID uuid.UUID
		invStatus     string
		grandTotal    decimal.Decimal
	)
	err := tx.QueryRow(ctx, `
		SELECT number, customer_id, status, grand_total
		FROM invoices
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE`, tenantID, a.InvoiceID,
	).Scan(&number, &invCustomerID, &invStatus, &grandTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFoundf("invoice %s not found", a.InvoiceID)
	}
	if err != nil {
		return shared.Storage("receipts: lock invoice", err)
	}
	if invStatus == "cancelled" {
		return shared.Invariantf("invoice %s is cancelled", number)
	}
	if invCustomerID != customerID {
		return shared.Invariantf("invoice %s belongs to a different customer", number)
	}

	var applied decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT
			COALESCE((
				SELECT SUM(ra.amount)
				FROM receipt_allocations ra
				JOIN receipts r ON r.id = ra.receipt_id
				WHERE ra.invoice_id = $1 AND r.status <> 'cancelled'
			), 0)
			+
			COALESCE((
				SELECT SUM(c.total_credit)
				FROM credit_notes c
				WHERE c.invoice_id = $1 AND c.status <> 'cancelled'
			), 0)`, a.InvoiceID,
	).Scan(&applied)
	if err != nil {
		return shared.Storage("receipts: applied sum", err)
	}
	if applied.Add(a.Amount).GreaterThan(grandTotal) {
		return shared.Invariantf(
			"allocation of %s exceeds outstanding %s on invoice %s",
			a.Amount.StringFixed(2), grandTotal.Sub(applied).StringFixed(2), number,
		)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO receipt_allocations (id, receipt_id, invoice_id, amount, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		a.ID, a.ReceiptID, a.InvoiceID, a.Amount,
	)
	if err != nil {
		return shared.Storage("receipts: insert allocation", err)
	}
	return nil
}

// Get loads a receipt with its allocations.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*Receipt, error) {
	query := `
		SELECT id, tenant_id, number, customer_id, receipt_date, amount, method, reference, notes, status, created_at, updated_at
		FROM receipts
		WHERE tenant_id = $1 AND id = $2`

	var rec Receipt
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&rec.ID, &rec.TenantID, &rec.Number, &rec.CustomerID, &rec.Date, &rec.Amount,
		&rec.Method, &rec.Reference, &rec.Notes, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("receipt %s not found", id)
	}
	if err != nil {
		return nil, shared.Storage("receipts: get", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, receipt_id, invoice_id, amount, created_at
		 FROM receipt_allocations WHERE receipt_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, shared.Storage("receipts: allocations", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.ReceiptID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, shared.Storage("receipts: scan allocation", err)
		}
		rec.Allocations = append(rec.Allocations, a)
	}
	return &rec, rows.Err()
}

// List returns receipts matching the filter, most recent first, with the
// unpaginated match count.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Receipt, int, error) {
	cond := "tenant_id = $1"
	args := []any{tenantID}
	if filter.CustomerID != uuid.Nil {
		args = append(args, filter.CustomerID)
		cond += " AND customer_id = $2"
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		cond += " AND status = $" + itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		cond += " AND receipt_date >= $" + itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		cond += " AND receipt_date <= $" + itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM receipts WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, shared.Storage("receipts: count", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := `
		SELECT id, tenant_id, number, customer_id, receipt_date, amount, method, reference, notes, status, created_at, updated_at
		FROM receipts
		WHERE ` + cond + `
		ORDER BY receipt_date DESC, number DESC
		LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, shared.Storage("receipts: list", err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var rec Receipt
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.Number, &rec.CustomerID, &rec.Date, &rec.Amount,
			&rec.Method, &rec.Reference, &rec.Notes, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, 0, shared.Storage("receipts: scan", err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// UpdateStatus flips the receipt status.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE receipts SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, status,
	)
	if err != nil {
		return shared.Storage("receipts: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("receipt %s not found", id)
	}
	return nil
}

// NumberExists reports whether the tenant already has a receipt with the
// given number.
func (r *Repository) NumberExists(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM receipts WHERE tenant_id = $1 AND number = $2)`,
		tenantID, number,
	).Scan(&exists)
	if err != nil {
		return false, shared.Storage("receipts: number exists", err)
	}
	return exists, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
