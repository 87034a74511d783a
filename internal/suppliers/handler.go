package suppliers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

// Handler exposes supplier endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers supplier routes. Reads are open to any authenticated
// user; the catalog is maintained by compradores.
func (h *Handler) MountRoutes(r chi.Router, guard func(...shared.Role) func(http.Handler) http.Handler) {
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.With(guard(shared.RoleComprador)).Post("/", h.create)
	r.With(guard(shared.RoleComprador)).Put("/{id}", h.update)
	r.With(guard(shared.RoleComprador)).Delete("/{id}", h.deactivate)
}

type supplierPayload struct {
	Name        string `json:"name"`
	RFC         string `json:"rfc"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Category    string `json:"category"`
	Rating      int    `json:"rating"`
	IsActive    *bool  `json:"is_active"`
	CanInvoice  *bool  `json:"can_invoice"`
	Notes       string `json:"notes"`
}

func (p supplierPayload) toDomain() Supplier {
	s := Supplier{
		Name:        p.Name,
		RFC:         p.RFC,
		ContactName: p.ContactName,
		Email:       p.Email,
		Phone:       p.Phone,
		Category:    p.Category,
		Rating:      p.Rating,
		Notes:       p.Notes,
		IsActive:    true,
		CanInvoice:  true,
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	if p.CanInvoice != nil {
		s.CanInvoice = *p.CanInvoice
	}
	return s
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromQuery(r.URL.Query())
	filters := ListFilters{
		Search:     r.URL.Query().Get("search"),
		Category:   r.URL.Query().Get("category"),
		OnlyActive: r.URL.Query().Get("active") == "true",
		Page:       page,
		PerPage:    perPage,
	}

	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"suppliers":  list,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "identificador inválido")
		return
	}
	supplier, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, supplier)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload supplierPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	created, err := h.service.Create(r.Context(), payload.toDomain())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "identificador inválido")
		return
	}
	var payload supplierPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	if err := h.service.Update(r.Context(), id, payload.toDomain()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]string{"message": "proveedor actualizado"})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "identificador inválido")
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]string{"message": "proveedor desactivado"})
}
