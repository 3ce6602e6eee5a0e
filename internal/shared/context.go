package shared

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const tenantKey ctxKey = iota

// WithTenant stamps the request context with the resolved tenant.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext returns the tenant set by the tenant middleware.
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantKey).(uuid.UUID)
	return id, ok
}
