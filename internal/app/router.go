package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/compras-erp/compras-erp/internal/auth"
	"github.com/compras-erp/compras-erp/internal/budgets"
	"github.com/compras-erp/compras-erp/internal/notifications"
	"github.com/compras-erp/compras-erp/internal/observability"
	"github.com/compras-erp/compras-erp/internal/orders"
	"github.com/compras-erp/compras-erp/internal/quotations"
	"github.com/compras-erp/compras-erp/internal/requests"
	"github.com/compras-erp/compras-erp/internal/shared"
	"github.com/compras-erp/compras-erp/internal/suppliers"
	"github.com/compras-erp/compras-erp/jobs"
)

// RouterParams aggregates everything the HTTP router mounts.
type RouterParams struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	AuthMiddleware auth.Middleware

	Auth          *auth.Handler
	Requests      *requests.Handler
	Quotations    *quotations.Handler
	Orders        *orders.Handler
	Suppliers     *suppliers.Handler
	Budgets       *budgets.Handler
	Notifications *notifications.Handler
	Jobs          *jobs.Handler
}

// NewRouter assembles the chi router with the shared middleware chain and
// every API mount. Cross-entity routes (comparison, issue-order) live under
// /api/requests but are served by the quotations and orders handlers.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", p.Auth.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(p.AuthMiddleware.RequireAuth)

			r.Route("/requests", func(r chi.Router) {
				p.Requests.MountRoutes(r)
				r.Get("/{id}/comparison", p.Quotations.Comparison)
				r.With(p.AuthMiddleware.RequireRole(shared.RoleComprador)).
					Post("/{id}/issue-order", p.Orders.IssueFromRequest)
			})

			r.Route("/quotations", func(r chi.Router) {
				r.Use(p.AuthMiddleware.RequireRole(shared.RoleComprador))
				p.Quotations.MountRoutes(r)
			})

			r.Route("/orders", p.Orders.MountRoutes)
			r.Route("/suppliers", func(r chi.Router) {
				p.Suppliers.MountRoutes(r, p.AuthMiddleware.RequireRole)
			})
			r.Route("/budgets", func(r chi.Router) {
				p.Budgets.MountRoutes(r, p.AuthMiddleware.RequireRole)
			})
			r.Route("/notifications", p.Notifications.MountRoutes)

			if p.Jobs != nil {
				r.Route("/jobs", p.Jobs.MountRoutes)
			}
		})
	})

	return r
}
