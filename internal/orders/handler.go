package orders

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

// Handler exposes purchase order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Post("/{id}/status", h.advanceStatus)
	r.Post("/{id}/invoices", h.registerInvoice)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromQuery(r.URL.Query())
	filters := ListFilters{
		Status:  Status(r.URL.Query().Get("status")),
		Page:    page,
		PerPage: perPage,
	}
	if requestID, err := strconv.ParseInt(r.URL.Query().Get("request_id"), 10, 64); err == nil {
		filters.RequestID = requestID
	}
	if filters.Status != "" && !filters.Status.Valid() {
		httpx.Fail(w, http.StatusBadRequest, "estado desconocido")
		return
	}
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"orders":     list,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "identificador inválido")
		return
	}
	order, invoices, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"order": order, "invoices": invoices})
}

type statusPayload struct {
	Status         string     `json:"status" validate:"required"`
	ActualDelivery *time.Time `json:"actual_delivery"`
	Notes          string     `json:"notes"`
}

func (h *Handler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var payload statusPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "datos inválidos: "+err.Error())
		return
	}
	order, err := h.service.AdvanceStatus(r.Context(), actor, id, Status(payload.Status), payload.ActualDelivery, payload.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, order)
}

type invoicePayload struct {
	SupplierID    *int64    `json:"supplier_id"`
	InvoiceNumber string    `json:"invoice_number" validate:"required"`
	InvoiceDate   time.Time `json:"invoice_date" validate:"required"`
	Subtotal      float64   `json:"subtotal" validate:"gte=0"`
	Tax           float64   `json:"tax" validate:"gte=0"`
	Total         float64   `json:"total" validate:"gte=0"`
	FilePath      string    `json:"file_path"`
}

func (h *Handler) registerInvoice(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var payload invoicePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "datos inválidos: "+err.Error())
		return
	}
	inv, err := h.service.RegisterInvoice(r.Context(), actor, id, InvoiceInput{
		SupplierID:    payload.SupplierID,
		InvoiceNumber: payload.InvoiceNumber,
		InvoiceDate:   payload.InvoiceDate,
		Subtotal:      shared.CentavosFromFloat(payload.Subtotal),
		Tax:           shared.CentavosFromFloat(payload.Tax),
		Total:         shared.CentavosFromFloat(payload.Total),
		FilePath:      payload.FilePath,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, inv)
}

// IssueFromRequest serves POST /api/requests/{id}/issue-order.
func (h *Handler) IssueFromRequest(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var payload struct {
		ExpectedDelivery *time.Time `json:"expected_delivery"`
		Notes            string     `json:"notes"`
	}
	_ = httpx.DecodeJSON(r, &payload) // body optional
	result, err := h.service.IssueFromRequest(r.Context(), actor, id, IssueInput{
		ExpectedDelivery: payload.ExpectedDelivery,
		Notes:            payload.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, result)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "identificador inválido")
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}
