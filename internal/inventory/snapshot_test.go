package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/inventory/invtest"
	"github.com/odyssey-erp/odyssey-po/internal/platform/cache"
)

func TestSnapshotRefreshAndCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := invtest.New()
	seed(store)
	seedRestocks(store)
	snapshots := inventory.NewSnapshotService(store, cache.NewJSONCache(client, "inventory:snapshot", time.Minute))
	ctx := context.Background()

	snap, err := snapshots.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), snap.TotalVariants)
	require.Equal(t, int64(14), snap.TotalUnits)
	require.Equal(t, int64(5), snap.TotalSafetyStock)
	require.Equal(t, int64(2), snap.LowStockCount)
	require.Equal(t, int64(3), snap.OpenRestockCount)

	// cached copy is served until the next refresh
	store.AddVariant(inventory.Variant{ID: "v-new", ParentProductID: "p-new", Quantity: 100, RestockLevel: 1})
	cached, err := snapshots.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), cached.TotalVariants)

	refreshed, err := snapshots.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), refreshed.TotalVariants)

	current, err := snapshots.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(114), current.TotalUnits)
}

func TestSnapshotWithoutCache(t *testing.T) {
	store := invtest.New()
	seed(store)
	snapshots := inventory.NewSnapshotService(store, nil)

	snap, err := snapshots.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), snap.TotalVariants)
}
