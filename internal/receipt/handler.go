package receipt

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

// Handler manages receipt endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.record)
	r.Get("/{id}", h.get)
	r.Post("/{id}/allocations", h.allocate)
	r.Post("/{id}/cancel", h.cancel)
}

type allocationPayload struct {
	InvoiceID uuid.UUID       `json:"invoiceId" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type recordPayload struct {
	CustomerID  uuid.UUID           `json:"customerId" validate:"required"`
	Date        string              `json:"date" validate:"required"`
	Amount      decimal.Decimal     `json:"amount"`
	Method      string              `json:"method" validate:"required"`
	Number      string              `json:"number"`
	Reference   string              `json:"reference"`
	Notes       string              `json:"notes"`
	Allocations []allocationPayload `json:"allocations"`
}

type allocatePayload struct {
	Allocations []allocationPayload `json:"allocations" validate:"required,min=1"`
}

type allocationResponse struct {
	ID        uuid.UUID       `json:"id"`
	InvoiceID uuid.UUID       `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
}

type receiptResponse struct {
	ID          uuid.UUID            `json:"id"`
	Number      string               `json:"number"`
	CustomerID  uuid.UUID            `json:"customerId"`
	Date        string               `json:"date"`
	Amount      decimal.Decimal      `json:"amount"`
	Method      string               `json:"method"`
	Reference   string               `json:"reference,omitempty"`
	Notes       string               `json:"notes,omitempty"`
	Status      Status               `json:"status"`
	Allocations []allocationResponse `json:"allocations"`
	Unapplied   decimal.Decimal      `json:"unappliedAmount"`
}

type listResponse struct {
	Receipts []receiptResponse `json:"receipts"`
	Total    int               `json:"total"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	var payload recordPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		shared.RespondError(w, h.logger, shared.Validationf("body", "%v", err))
		return
	}
	date, err := time.Parse(time.DateOnly, payload.Date)
	if err != nil {
		shared.RespondError(w, h.logger, shared.Validationf("date", "expected YYYY-MM-DD"))
		return
	}

	rec, err := h.service.Record(r.Context(), tenantID, CreateInput{
		CustomerID:  payload.CustomerID,
		Date:        date,
		Amount:      payload.Amount,
		Method:      payload.Method,
		Number:      payload.Number,
		Reference:   payload.Reference,
		Notes:       payload.Notes,
		Allocations: toAllocationInputs(payload.Allocations),
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toResponse(rec))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	rec, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("customerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondError(w, h.logger, shared.Validationf("customerId", "invalid customer id"))
			return
		}
		filter.CustomerID = id
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	recs, total, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	out := listResponse{Receipts: make([]receiptResponse, 0, len(recs)), Total: total}
	for i := range recs {
		out.Receipts = append(out.Receipts, toResponse(&recs[i]))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var payload allocatePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		shared.RespondError(w, h.logger, shared.Validationf("body", "%v", err))
		return
	}
	rec, err := h.service.Allocate(r.Context(), tenantID, id, toAllocationInputs(payload.Allocations))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	rec, err := h.service.Cancel(r.Context(), tenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) scope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, shared.Validationf("tenant", "tenant header is required")
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, shared.Validationf("id", "invalid receipt id")
	}
	return tenantID, id, nil
}

func toAllocationInputs(payloads []allocationPayload) []AllocationInput {
	out := make([]AllocationInput, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, AllocationInput{InvoiceID: p.InvoiceID, Amount: p.Amount})
	}
	return out
}

func toResponse(rec *Receipt) receiptResponse {
	resp := receiptResponse{
		ID:          rec.ID,
		Number:      rec.Number,
		CustomerID:  rec.CustomerID,
		Date:        rec.Date.Format(time.DateOnly),
		Amount:      rec.Amount,
		Method:      rec.Method,
		Reference:   rec.Reference,
		Notes:       rec.Notes,
		Status:      rec.Status,
		Allocations: make([]allocationResponse, 0, len(rec.Allocations)),
		Unapplied:   rec.Unapplied(),
	}
	for _, a := range rec.Allocations {
		resp.Allocations = append(resp.Allocations, allocationResponse{
			ID:        a.ID,
			InvoiceID: a.InvoiceID,
			Amount:    a.Amount,
		})
	}
	return resp
}
