package shared

import (
	"context"

	"github.com/google/uuid"
)

// Actor identifies the authenticated caller of a core operation.
type Actor struct {
	TenantID string
	UserID   uuid.UUID
	Email    string
	Role     Role
	IP       string
}

// SystemActor is used for scheduler-triggered operations.
func SystemActor(tenantID string) Actor {
	return Actor{TenantID: tenantID, Role: RoleAdmin, Email: "system"}
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
