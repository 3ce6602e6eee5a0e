package numbering

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// SequenceStore increments the counter for (tenant, kind, period) and
// returns the new value. The increment must be atomic: two concurrent calls
// must never observe the same value. Stores with compare-and-swap semantics
// may return ErrSequenceConflict on contention; the value starts at 1.
type SequenceStore interface {
	Next(ctx context.Context, tenantID uuid.UUID, kind Kind, period string) (int64, error)
}

// maxRetries bounds the internal retry loop for CAS-style stores.
const maxRetries = 5

// Service assigns gapless per-tenant document numbers.
type Service struct {
	store SequenceStore
}

// NewService builds Service instance.
func NewService(store SequenceStore) *Service {
	return &Service{store: store}
}

// Next returns the next document number for the tenant, kind and period.
func (s *Service) Next(ctx context.Context, tenantID uuid.UUID, kind Kind, period string) (string, error) {
	if tenantID == uuid.Nil {
		return "", shared.Validationf("tenantId", "tenant is required")
	}
	if !kind.Valid() {
		return "", shared.Validationf("kind", "unknown document kind %q", kind)
	}
	if period == "" {
		return "", shared.Validationf("period", "period is required")
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		seq, err := s.store.Next(ctx, tenantID, kind, period)
		if err == nil {
			return Format(kind, period, seq), nil
		}
		if !errors.Is(err, ErrSequenceConflict) {
			return "", shared.Storage("numbering: next sequence", err)
		}
		lastErr = err
	}
	return "", shared.Conflictf("numbering: gave up after %d attempts: %v", maxRetries, lastErr)
}
