package quotations

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

// Handler exposes quotation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers quotation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.attach)
	r.Post("/items/{id}/select", h.selectItem)
}

type attachItemPayload struct {
	RequestItemID  int64      `json:"request_item_id" validate:"required"`
	UnitPrice      float64    `json:"unit_price" validate:"gte=0"`
	HasInvoice     bool       `json:"has_invoice"`
	DeliveryDate   *time.Time `json:"delivery_date"`
	HasWarranty    bool       `json:"has_warranty"`
	WarrantyMonths int        `json:"warranty_months"`
}

type attachPayload struct {
	RequestID    int64               `json:"request_id" validate:"required"`
	SupplierID   int64               `json:"supplier_id" validate:"required"`
	PaymentTerms string              `json:"payment_terms"`
	ValidUntil   *time.Time          `json:"valid_until"`
	Items        []attachItemPayload `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) attach(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
		return
	}
	var payload attachPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "datos inválidos: "+err.Error())
		return
	}
	input := AttachInput{
		RequestID:    payload.RequestID,
		SupplierID:   payload.SupplierID,
		PaymentTerms: payload.PaymentTerms,
		ValidUntil:   payload.ValidUntil,
	}
	for _, item := range payload.Items {
		input.Items = append(input.Items, AttachItemInput{
			RequestItemID:  item.RequestItemID,
			UnitPrice:      shared.CentavosFromFloat(item.UnitPrice),
			HasInvoice:     item.HasInvoice,
			DeliveryDate:   item.DeliveryDate,
			HasWarranty:    item.HasWarranty,
			WarrantyMonths: item.WarrantyMonths,
		})
	}
	created, err := h.service.Attach(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) selectItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "identificador inválido")
		return
	}
	item, err := h.service.SelectItem(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, item)
}

// Comparison serves the bid matrix; mounted under /api/requests/{id}/comparison.
func (h *Handler) Comparison(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "identificador inválido")
		return
	}
	comparison, err := h.service.Comparison(r.Context(), id)
	if err != nil {
		h.logger.Error("compute comparison", slog.Any("error", err), slog.Int64("request_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, comparison)
}
