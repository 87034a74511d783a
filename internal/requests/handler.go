package requests

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

// Handler exposes request lifecycle endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers request routes. The comparison and issue-order
// routes live in the quotations and orders handlers and are mounted by the
// router next to these.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/schedules", h.schedules)
	r.Post("/no-requirements", h.noRequirements)
	r.Get("/{id}", h.show)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/authorize", h.authorize)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/budget-approve", h.budgetApprove)
}

type itemPayload struct {
	Material      string   `json:"material" validate:"required"`
	Specification string   `json:"specification"`
	Quantity      float64  `json:"quantity" validate:"required,gt=0"`
	Unit          string   `json:"unit"`
	ApproxCost    *float64 `json:"approx_cost"`
	InStock       bool     `json:"in_stock"`
	StockLocation string   `json:"stock_location"`
}

type createPayload struct {
	Priority      string        `json:"priority" validate:"omitempty,oneof=normal urgente critica"`
	Justification string        `json:"justification"`
	NeededBy      *time.Time    `json:"needed_by"`
	ScheduledFor  *time.Time    `json:"scheduled_for"`
	AsDraft       bool          `json:"as_draft"`
	Items         []itemPayload `json:"items" validate:"omitempty,dive"`
}

func (p createPayload) toInput() CreateInput {
	input := CreateInput{
		Priority:      Priority(p.Priority),
		Justification: p.Justification,
		NeededBy:      p.NeededBy,
		ScheduledFor:  p.ScheduledFor,
		AsDraft:       p.AsDraft,
	}
	for _, item := range p.Items {
		ri := RequestItem{
			Material:      item.Material,
			Specification: item.Specification,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			InStock:       item.InStock,
			StockLocation: item.StockLocation,
		}
		if ri.Unit == "" {
			ri.Unit = "pieza"
		}
		if item.ApproxCost != nil {
			cost := shared.CentavosFromFloat(*item.ApproxCost)
			ri.ApproxCost = &cost
		}
		input.Items = append(input.Items, ri)
	}
	return input
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
		return
	}
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "datos inválidos: "+err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), actor, payload.toInput())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
		return
	}
	page, perPage := shared.PageFromQuery(r.URL.Query())
	filters := ListFilters{
		Status:  Status(r.URL.Query().Get("status")),
		Page:    page,
		PerPage: perPage,
	}
	if filters.Status != "" && !filters.Status.Valid() {
		httpx.Fail(w, http.StatusBadRequest, "estado desconocido")
		return
	}
	list, total, err := h.service.List(r.Context(), actor, filters)
	if err != nil {
		h.logger.Error("list requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"requests":   list,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, req)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Submit(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, req)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Authorize(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, req)
}

type reasonPayload struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var payload reasonPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	req, err := h.service.Reject(r.Context(), actor, id, payload.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, req)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var payload reasonPayload
	_ = httpx.DecodeJSON(r, &payload) // reason optional
	req, err := h.service.Cancel(r.Context(), actor, id, payload.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, req)
}

func (h *Handler) budgetApprove(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	req, err := h.service.BudgetApprove(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, req)
}

type noRequirementsPayload struct {
	Year  int    `json:"year" validate:"required"`
	Month int    `json:"month" validate:"required,min=1,max=12"`
	Note  string `json:"note"`
}

func (h *Handler) noRequirements(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
		return
	}
	var payload noRequirementsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "datos inválidos: "+err.Error())
		return
	}
	decl, err := h.service.DeclareNoRequirements(r.Context(), actor, payload.Year, payload.Month, payload.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, decl)
}

func (h *Handler) schedules(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListSchedules(r.Context())
	if err != nil {
		h.logger.Error("list schedules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"schedules": list})
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
