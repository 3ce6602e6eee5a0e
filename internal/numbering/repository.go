package numbering

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides the PostgreSQL backed sequence store. The upsert is a
// single statement, so the read-modify-write is atomic per
// (tenant, kind, period) and never hands the same value to two callers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Next increments and returns the sequence value.
func (r *Repository) Next(ctx context.Context, tenantID uuid.UUID, kind Kind, period string) (int64, error) {
	query := `
		INSERT INTO document_sequences (tenant_id, kind, period, value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, kind, period)
		DO UPDATE SET value = document_sequences.value + 1
		RETURNING value`

	var value int64
	if err := r.pool.QueryRow(ctx, query, tenantID, string(kind), period).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}
