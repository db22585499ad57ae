package shared

import (
	"context"
	"fmt"
	"strings"
)

// Role names carried in actor claims.
type Role string

const (
	RoleAdmin            Role = "Admin"
	RoleInventoryManager Role = "InventoryManager"
	RoleCashier          Role = "Cashier"
)

// ParseRole matches a role name case-insensitively.
func ParseRole(raw string) (Role, bool) {
	for _, r := range []Role{RoleAdmin, RoleInventoryManager, RoleCashier} {
		if strings.EqualFold(strings.TrimSpace(raw), string(r)) {
			return r, true
		}
	}
	return "", false
}

// CurrentActor identifies who performs an operation. Core services receive it
// explicitly and never read it from ambient request state.
type CurrentActor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Valid reports whether the actor carries an identity and a role.
func (a CurrentActor) Valid() bool {
	return a.ID != "" && a.Role != ""
}

// HasAnyRole reports whether the actor holds one of roles.
func (a CurrentActor) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// RequireRole returns ErrForbidden unless the actor holds one of roles.
func RequireRole(actor CurrentActor, roles ...Role) error {
	if !actor.Valid() {
		return fmt.Errorf("%w: actor identity required", ErrForbidden)
	}
	if !actor.HasAnyRole(roles...) {
		return fmt.Errorf("%w: role %s not permitted", ErrForbidden, actor.Role)
	}
	return nil
}

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor for HTTP handlers.
func ContextWithActor(ctx context.Context, actor CurrentActor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor placed by the auth middleware.
func ActorFromContext(ctx context.Context) (CurrentActor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(CurrentActor)
	return actor, ok
}
