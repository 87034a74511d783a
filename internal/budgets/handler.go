package budgets

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

// Handler exposes budget endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers budget routes. "my" is open to any authenticated
// user; listing and export are for directors and compradores, assignment is
// admin only.
func (h *Handler) MountRoutes(r chi.Router, guard func(...shared.Role) func(http.Handler) http.Handler) {
	r.Get("/my", h.my)
	r.With(guard(shared.RoleDirector, shared.RoleComprador)).Get("/", h.list)
	r.With(guard(shared.RoleDirector, shared.RoleComprador)).Get("/export", h.export)
	r.With(guard(shared.RoleAdmin)).Put("/", h.assign)
}

func (h *Handler) my(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
		return
	}
	budget, err := h.service.Get(r.Context(), actor.Area, yearFromQuery(r))
	if err != nil {
		h.logger.Error("get budget", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, budgetView(budget))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if area := r.URL.Query().Get("area"); area != "" {
		budget, err := h.service.Get(r.Context(), area, yearFromQuery(r))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.OK(w, budgetView(budget))
		return
	}
	list, err := h.service.ListYear(r.Context(), yearFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(list))
	for _, b := range list {
		views = append(views, budgetView(b))
	}
	httpx.OK(w, map[string]any{"budgets": views})
}

type assignPayload struct {
	Area  string  `json:"area"`
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var payload assignPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	budget, err := h.service.Assign(r.Context(), payload.Area, payload.Year, shared.CentavosFromFloat(payload.Total))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, budgetView(budget))
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	year := yearFromQuery(r)
	data, err := h.service.Export(r.Context(), year)
	if err != nil {
		h.logger.Error("export budgets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="presupuestos_%d.xlsx"`, year))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func budgetView(b Budget) map[string]any {
	return map[string]any{
		"id":             b.ID,
		"area":           b.Area,
		"year":           b.Year,
		"total":          b.Total.Float64(),
		"spent":          b.Spent.Float64(),
		"available":      b.Available().Float64(),
		"percent_used":   b.PercentUsed(),
		"is_overspent":   b.IsOverspent(),
		"total_centavos": int64(b.Total),
		"spent_centavos": int64(b.Spent),
	}
}

func yearFromQuery(r *http.Request) int {
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	if year == 0 {
		year = time.Now().Year()
	}
	return year
}
