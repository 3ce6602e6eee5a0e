package creditnote

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

// Handler manages credit note endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers credit note routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.issue)
	r.Get("/{id}", h.get)
	r.Post("/{id}/cancel", h.cancel)
}

type issuePayload struct {
	InvoiceID  uuid.UUID       `json:"invoiceId"`
	CustomerID uuid.UUID       `json:"customerId"`
	Date       string          `json:"date" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	TaxRate    decimal.Decimal `json:"taxRate"`
	Number     string          `json:"number"`
	Reason     string          `json:"reason"`
}

type creditNoteResponse struct {
	ID          uuid.UUID       `json:"id"`
	Number      string          `json:"number"`
	InvoiceID   *uuid.UUID      `json:"invoiceId,omitempty"`
	CustomerID  uuid.UUID       `json:"customerId"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
	Reason      string          `json:"reason,omitempty"`
	Status      Status          `json:"status"`
}

type listResponse struct {
	CreditNotes []creditNoteResponse `json:"creditNotes"`
	Total       int                  `json:"total"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	var payload issuePayload
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

	note, err := h.service.Issue(r.Context(), tenantID, CreateInput{
		InvoiceID:  payload.InvoiceID,
		CustomerID: payload.CustomerID,
		Date:       date,
		Amount:     payload.Amount,
		TaxRate:    payload.TaxRate,
		Number:     payload.Number,
		Reason:     payload.Reason,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toResponse(note))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	note, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(note))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("invoiceId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondError(w, h.logger, shared.Validationf("invoiceId", "invalid invoice id"))
			return
		}
		filter.InvoiceID = id
	}
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

	notes, total, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	out := listResponse{CreditNotes: make([]creditNoteResponse, 0, len(notes)), Total: total}
	for i := range notes {
		out.CreditNotes = append(out.CreditNotes, toResponse(&notes[i]))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	note, err := h.service.Cancel(r.Context(), tenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(note))
}

func (h *Handler) scope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, shared.Validationf("tenant", "tenant header is required")
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, shared.Validationf("id", "invalid credit note id")
	}
	return tenantID, id, nil
}

func toResponse(note *CreditNote) creditNoteResponse {
	resp := creditNoteResponse{
		ID:          note.ID,
		Number:      note.Number,
		CustomerID:  note.CustomerID,
		Date:        note.Date.Format(time.DateOnly),
		Amount:      note.Amount,
		TaxRate:     note.TaxRate,
		TaxAmount:   note.TaxAmount,
		TotalCredit: note.TotalCredit,
		Reason:      note.Reason,
		Status:      note.Status,
	}
	if note.InvoiceID != uuid.Nil {
		id := note.InvoiceID
		resp.InvoiceID = &id
	}
	return resp
}
