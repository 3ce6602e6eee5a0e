package dashboard

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler manages dashboard endpoints. Amounts are reported both as exact
// decimals and as grouped display strings; only the display form is
// rounded.
type Handler struct {
	logger  *slog.Logger
	service *Service
	printer *message.Printer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		printer: message.NewPrinter(language.English),
	}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.summary)
	r.Get("/receivables", h.receivables)
	r.Get("/revenue", h.revenue)
	r.Get("/collection-period", h.collectionPeriod)
	r.Get("/aging", h.aging)
	r.Get("/revenue-by-category", h.revenueByCategory)
	r.Get("/monthly-trend", h.monthlyTrend)
	r.Post("/refresh", h.refresh)
}

func (h *Handler) display(v decimal.Decimal) string {
	f, _ := v.Round(2).Float64()
	return h.printer.Sprintf("%.2f", f)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	summary, err := h.service.Summary(r.Context(), tenantID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, struct {
		Summary
		DisplayOutstanding string `json:"displayOutstanding"`
		DisplayRevenueYear string `json:"displayRevenueYear"`
	}{
		Summary:            summary,
		DisplayOutstanding: h.display(summary.Receivables.TotalOutstanding),
		DisplayRevenueYear: h.display(summary.RevenueYear),
	})
}

func (h *Handler) receivables(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	out, err := h.service.Receivables(r.Context(), tenantID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) revenue(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	from, to, err := parsePeriod(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	total, err := h.service.Revenue(r.Context(), tenantID, from, to)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, struct {
		From    string          `json:"from"`
		To      string          `json:"to"`
		Revenue decimal.Decimal `json:"revenue"`
		Display string          `json:"display"`
	}{
		From:    from.Format(time.DateOnly),
		To:      to.Format(time.DateOnly),
		Revenue: total,
		Display: h.display(total),
	})
}

func (h *Handler) collectionPeriod(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	days, err := h.service.AverageCollectionPeriod(r.Context(), tenantID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]float64{"avgCollectionDays": days})
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	report, err := h.service.Aging(r.Context(), tenantID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, report)
}

func (h *Handler) revenueByCategory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	from, to, err := parsePeriod(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	out, err := h.service.RevenueByCategory(r.Context(), tenantID, from, to)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (h *Handler) monthlyTrend(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			shared.RespondError(w, h.logger, shared.Validationf("year", "invalid year"))
			return
		}
		year = n
	}
	points, err := h.service.MonthlyRevenueTrend(r.Context(), tenantID, year)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"year": year, "months": points})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	if err := h.service.Invalidate(r.Context(), tenantID); err != nil {
		shared.RespondError(w, h.logger, shared.Storage("dashboard: invalidate", err))
		return
	}
	shared.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func parsePeriod(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := time.Now().UTC()
	from := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	to := now
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, time.Time{}, shared.Validationf("from", "expected YYYY-MM-DD")
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, time.Time{}, shared.Validationf("to", "expected YYYY-MM-DD")
		}
		to = parsed
	}
	return from, to, nil
}
