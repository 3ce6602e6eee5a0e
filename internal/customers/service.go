package customers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// RepositoryPort defines data access for the customer directory.
type RepositoryPort interface {
	Create(ctx context.Context, customer Customer) (*Customer, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Customer, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]Customer, error)
}

// Service is the tenant-scoped customer directory the ledger core consumes.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create registers a customer.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, input CreateInput) (*Customer, error) {
	if tenantID == uuid.Nil {
		return nil, shared.Validationf("tenantId", "tenant is required")
	}
	if input.Name == "" {
		return nil, shared.Validationf("name", "name is required")
	}
	if input.PaymentTerms < 0 {
		return nil, shared.Validationf("paymentTerms", "payment terms must not be negative")
	}
	terms := input.PaymentTerms
	if terms == 0 {
		terms = 30
	}
	return s.repo.Create(ctx, Customer{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Code:         input.Code,
		Name:         input.Name,
		Category:     input.Category,
		Email:        input.Email,
		PaymentTerms: terms,
		Active:       true,
	})
}

// Lookup returns the customer by id within the tenant.
func (s *Service) Lookup(ctx context.Context, tenantID, id uuid.UUID) (*Customer, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns all customers in the tenant.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Customer, error) {
	return s.repo.List(ctx, tenantID)
}
