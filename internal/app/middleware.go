package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/unrolled/secure"

	"github.com/ledgerline/ledgerline/internal/shared"
)

const tenantHeader = "X-Tenant-ID"

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// MiddlewareStack installs the middleware chain: panic recovery, request
// IDs, security headers, rate limiting and per-request timeout.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	requests := 300
	window := time.Minute
	timeout := 30 * time.Second
	if cfg.Config != nil {
		requests = cfg.Config.RateLimitRequests
		window = cfg.Config.RateLimitWindow
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		secureMiddleware.Handler,
		httprate.LimitByIP(requests, window),
	}
}

// TenantMiddleware resolves the tenant from the X-Tenant-ID header and
// stamps it on the request context. Requests without a valid tenant are
// rejected before reaching any handler.
func TenantMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(tenantHeader)
			if raw == "" {
				shared.RespondError(w, logger, shared.Validationf("tenant", "%s header is required", tenantHeader))
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				shared.RespondError(w, logger, shared.Validationf("tenant", "%s must be a UUID", tenantHeader))
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.WithTenant(r.Context(), tenantID)))
		})
	}
}
