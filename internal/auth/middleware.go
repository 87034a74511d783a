package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

// Middleware authenticates bearer tokens and enforces role checks.
type Middleware struct {
	Tokens *TokenStore
	Logger *slog.Logger
}

// RequireAuth resolves the bearer token and stores the actor in context.
// Missing or unknown tokens yield 401 with the standard envelope.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		actor, err := m.Tokens.Resolve(r.Context(), token)
		if err != nil {
			httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireRole ensures the actor holds one of the given roles. Admin always passes.
func (m Middleware) RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "sesión inválida o expirada")
				return
			}
			if actor.Role == shared.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("role denied", slog.Int64("user_id", actor.ID), slog.String("role", string(actor.Role)), slog.String("path", r.URL.Path))
			}
			httpx.Fail(w, http.StatusForbidden, "permisos insuficientes")
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
