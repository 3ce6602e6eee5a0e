package customers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository provides PostgreSQL backed persistence for customers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a customer row.
func (r *Repository) Create(ctx context.Context, customer Customer) (*Customer, error) {
	query := `
		INSERT INTO customers (id, tenant_id, code, name, category, email, payment_terms, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		customer.ID, customer.TenantID, customer.Code, customer.Name,
		customer.Category, customer.Email, customer.PaymentTerms, customer.Active,
	).Scan(&customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		return nil, shared.Storage("customers: create", err)
	}
	return &customer, nil
}

// Get retrieves a customer by id within the tenant.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*Customer, error) {
	query := `
		SELECT id, tenant_id, code, name, category, email, payment_terms, is_active, created_at, updated_at
		FROM customers
		WHERE tenant_id = $1 AND id = $2`

	var c Customer
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&c.ID, &c.TenantID, &c.Code, &c.Name, &c.Category, &c.Email,
		&c.PaymentTerms, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("customer %s not found", id)
	}
	if err != nil {
		return nil, shared.Storage("customers: get", err)
	}
	return &c, nil
}

// List returns the tenant's customers ordered by name.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]Customer, error) {
	query := `
		SELECT id, tenant_id, code, name, category, email, payment_terms, is_active, created_at, updated_at
		FROM customers
		WHERE tenant_id = $1
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, shared.Storage("customers: list", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.Code, &c.Name, &c.Category, &c.Email,
			&c.PaymentTerms, &c.Active, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, shared.Storage("customers: scan", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
