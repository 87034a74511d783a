package shared

import "context"

// Role enumerates application roles checked by handlers.
type Role string

const (
	RoleSolicitante Role = "solicitante"
	RoleDirector    Role = "director"
	RoleComprador   Role = "comprador"
	RoleAdmin       Role = "admin"
)

// Actor identifies the authenticated user for the current request.
type Actor struct {
	ID   int64
	Name string
	Role Role
	Area string
}

// IsDirector reports whether the actor may authorize or reject requests.
func (a Actor) IsDirector() bool {
	return a.Role == RoleDirector || a.Role == RoleAdmin
}

// IsComprador reports whether the actor may quote and issue orders.
func (a Actor) IsComprador() bool {
	return a.Role == RoleComprador || a.Role == RoleAdmin
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
