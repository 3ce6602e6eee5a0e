package customers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler manages customer directory endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers customer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
}

type createPayload struct {
	Code         string `json:"code"`
	Name         string `json:"name" validate:"required"`
	Category     string `json:"category"`
	Email        string `json:"email" validate:"omitempty,email"`
	PaymentTerms int    `json:"paymentTerms"`
}

type customerResponse struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code,omitempty"`
	Name         string    `json:"name"`
	Category     string    `json:"category,omitempty"`
	Email        string    `json:"email,omitempty"`
	PaymentTerms int       `json:"paymentTerms"`
	Active       bool      `json:"active"`
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
	customer, err := h.service.Create(r.Context(), tenantID, CreateInput{
		Code:         payload.Code,
		Name:         payload.Name,
		Category:     payload.Category,
		Email:        payload.Email,
		PaymentTerms: payload.PaymentTerms,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toResponse(customer))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondError(w, h.logger, shared.Validationf("id", "invalid customer id"))
		return
	}
	customer, err := h.service.Lookup(r.Context(), tenantID, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResponse(customer))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		shared.RespondError(w, h.logger, shared.Validationf("tenant", "tenant header is required"))
		return
	}
	list, err := h.service.List(r.Context(), tenantID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	out := make([]customerResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"customers": out})
}

func toResponse(c *Customer) customerResponse {
	return customerResponse{
		ID:           c.ID,
		Code:         c.Code,
		Name:         c.Name,
		Category:     c.Category,
		Email:        c.Email,
		PaymentTerms: c.PaymentTerms,
		Active:       c.Active,
	}
}
