package invoice

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler manages invoice endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.edit)
	r.Delete("/{id}", h.remove)
	r.Post("/{id}/cancel", h.cancel)
}

type lineItemPayload struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	TaxRate     decimal.Decimal `json:"taxRate"`
}

type createPayload struct {
	CustomerID uuid.UUID         `json:"customerId" validate:"required"`
	IssueDate  string            `json:"issueDate" validate:"required"`
	DueDate    string            `json:"dueDate" validate:"required"`
	Number     string            `json:"number"`
	Reference  string            `json:"reference"`
	Notes      string            `json:"notes"`
	LineItems  []lineItemPayload `json:"lineItems" validate:"required,min=1"`
}

type editPayload struct {
	IssueDate string            `json:"issueDate" validate:"required"`
	DueDate   string            `json:"dueDate" validate:"required"`
	Reference string            `json:"reference"`
	Notes     string            `json:"notes"`
	LineItems []lineItemPayload `json:"lineItems" validate:"required,min=1"`
}

type lineItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
	Total       decimal.Decimal `json:"total"`
}

type invoiceResponse struct {
	ID         uuid.UUID          `json:"id"`
	Number     string             `json:"number"`
	CustomerID uuid.UUID          `json:"customerId"`
	IssueDate  string             `json:"issueDate"`
	DueDate    string             `json:"dueDate"`
	Reference  string             `json:"reference,omitempty"`
	Notes      string             `json:"notes,omitempty"`
	LineItems  []lineItemResponse `json:"lineItems,omitempty"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	TaxTotal   decimal.Decimal    `json:"taxTotal"`
	GrandTotal decimal.Decimal    `json:"grandTotal"`
	Status     Status             `json:"status"`
	PaidAt     *string            `json:"paidAt,omitempty"`
}

type listResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
	Total    int               `json:"total"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	var payload createPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		shared.RespondError(w, h.logger, shared.Validationf("body", "%v", err))
		return
	}
	issueDate, dueDate, err := parseDates(payload.IssueDate, payload.DueDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}

	inv, err := h.service.Create(r.Context(), tenantID, CreateInput{
		CustomerID: payload.CustomerID,
		IssueDate:  issueDate,
		DueDate:    dueDate,
		Number:     payload.Number,
		Reference:  payload.Reference,
		Notes:      payload.Notes,
		Lines:      toLineInputs(payload.LineItems),
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toResponse(inv, true))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(inv, true))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	invs, total, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	out := listResponse{Invoices: make([]invoiceResponse, 0, len(invs)), Total: total}
	for i := range invs {
		out.Invoices = append(out.Invoices, toResponse(&invs[i], false))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var payload editPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		shared.RespondError(w, h.logger, shared.Validationf("body", "%v", err))
		return
	}
	issueDate, dueDate, err := parseDates(payload.IssueDate, payload.DueDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}

	inv, err := h.service.Edit(r.Context(), tenantID, id, EditInput{
		IssueDate: issueDate,
		DueDate:   dueDate,
		Reference: payload.Reference,
		Notes:     payload.Notes,
		Lines:     toLineInputs(payload.LineItems),
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(inv, true))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), tenantID, id); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Cancel(r.Context(), tenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(inv, true))
}

func (h *Handler) scope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, shared.Validationf("tenant", "tenant header is required")
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, shared.Validationf("id", "invalid invoice id")
	}
	return tenantID, id, nil
}

func parseDates(issue, due string) (time.Time, time.Time, error) {
	issueDate, err := time.Parse(time.DateOnly, issue)
	if err != nil {
		return time.Time{}, time.Time{}, shared.Validationf("issueDate", "expected YYYY-MM-DD")
	}
	dueDate, err := time.Parse(time.DateOnly, due)
	if err != nil {
		return time.Time{}, time.Time{}, shared.Validationf("dueDate", "expected YYYY-MM-DD")
	}
	return issueDate, dueDate, nil
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Search: q.Get("search"),
	}
	if raw := q.Get("customerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ListFilter{}, shared.Validationf("customerId", "invalid customer id")
		}
		filter.CustomerID = id
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return ListFilter{}, shared.Validationf("from", "expected YYYY-MM-DD")
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return ListFilter{}, shared.Validationf("to", "expected YYYY-MM-DD")
		}
		filter.To = to
	}
	filter.Limit = queryInt(q.Get("limit"), 50)
	filter.Offset = queryInt(q.Get("offset"), 0)
	return filter, nil
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func toLineInputs(payloads []lineItemPayload) []LineItemInput {
	out := make([]LineItemInput, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, LineItemInput{
			Description: p.Description,
			Quantity:    p.Quantity,
			Rate:        p.Rate,
			TaxRate:     p.TaxRate,
		})
	}
	return out
}

func toResponse(inv *Invoice, withLines bool) invoiceResponse {
	resp := invoiceResponse{
		ID:         inv.ID,
		Number:     inv.Number,
		CustomerID: inv.CustomerID,
		IssueDate:  inv.IssueDate.Format(time.DateOnly),
		DueDate:    inv.DueDate.Format(time.DateOnly),
		Reference:  inv.Reference,
		Notes:      inv.Notes,
		Subtotal:   inv.Subtotal,
		TaxTotal:   inv.TaxTotal,
		GrandTotal: inv.GrandTotal,
		Status:     inv.Status,
	}
	if inv.PaidAt != nil {
		s := inv.PaidAt.Format(time.DateOnly)
		resp.PaidAt = &s
	}
	if withLines {
		resp.LineItems = make([]lineItemResponse, 0, len(inv.Lines))
		for _, l := range inv.Lines {
			resp.LineItems = append(resp.LineItems, lineItemResponse{
				ID:          l.ID,
				Description: l.Description,
				Quantity:    l.Quantity,
				Rate:        l.Rate,
				Amount:      l.Amount,
				TaxRate:     l.TaxRate,
				TaxAmount:   l.TaxAmount,
				Total:       l.Total,
			})
		}
	}
	return resp
}
