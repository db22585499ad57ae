package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" inventorymanager ")
	require.True(t, ok)
	require.Equal(t, RoleInventoryManager, role)

	_, ok = ParseRole("Auditor")
	require.False(t, ok)
}

func TestRequireRole(t *testing.T) {
	manager := CurrentActor{ID: "u-1", Role: RoleInventoryManager}
	require.NoError(t, RequireRole(manager, RoleAdmin, RoleInventoryManager))
	require.ErrorIs(t, RequireRole(manager, RoleAdmin), ErrForbidden)
	require.ErrorIs(t, RequireRole(CurrentActor{Role: RoleAdmin}, RoleAdmin), ErrForbidden)
}

func TestActorContextRoundTrip(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	require.False(t, ok)

	ctx := ContextWithActor(context.Background(), CurrentActor{ID: "u-2", Role: RoleCashier})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u-2", actor.ID)
}
