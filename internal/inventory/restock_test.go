package inventory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/inventory/invtest"
	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

func testTime() time.Time {
	return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
}

func seedRestocks(store *invtest.Store) {
	store.AddRestock(inventory.RestockingRequest{ID: "rr-a", ProductID: "p-milk", VariantID: "v-milk-1l", Size: "1 L", Unit: "bottle",
		Priority: inventory.PriorityHigh, Status: inventory.RestockPending, Location: inventory.Location{Warehouse: "north"}, CreatedAt: testTime()})
	store.AddRestock(inventory.RestockingRequest{ID: "rr-b", ProductID: "p-milk", Size: "1l", Unit: "Bottle",
		Priority: inventory.PriorityCritical, Status: inventory.RestockAcknowledged, Location: inventory.Location{Warehouse: "south"}, CreatedAt: testTime()})
	store.AddRestock(inventory.RestockingRequest{ID: "rr-other-size", ProductID: "p-milk", Size: "2 L", Unit: "bottle",
		Priority: inventory.PriorityNormal, Status: inventory.RestockPending, CreatedAt: testTime()})
	store.AddRestock(inventory.RestockingRequest{ID: "rr-dismissed", ProductID: "p-milk", Size: "1 L", Unit: "bottle",
		Priority: inventory.PriorityNormal, Status: inventory.RestockDismissed, CreatedAt: testTime()})
}

func TestReplenishMovesSafetyStockAndResolvesGroup(t *testing.T) {
	store := invtest.New()
	seed(store)
	seedRestocks(store)
	svc, notifier, _ := newService(store)

	res, err := svc.ReplenishSafetyStock(context.Background(), manager, inventory.ReplenishInput{VariantID: "v-milk-1l", Amount: 3})
	require.NoError(t, err)

	v := store.Variant("v-milk-1l")
	require.Equal(t, int64(13), v.Quantity)
	require.Equal(t, int64(2), v.SafetyStock)
	require.Equal(t, inventory.MovementSafetyRelease, res.Movement.MovementType)
	require.Equal(t, int64(3), res.Movement.Quantity)
	require.ElementsMatch(t, []string{"rr-a", "rr-b"}, res.ResolvedRequests)

	require.Equal(t, inventory.RestockResolvedSafetyStock, store.Restock("rr-a").Status)
	require.Equal(t, inventory.RestockResolvedSafetyStock, store.Restock("rr-b").Status)
	require.NotNil(t, store.Restock("rr-b").ResolvedAt)
	require.Equal(t, inventory.RestockPending, store.Restock("rr-other-size").Status)
	require.Equal(t, inventory.RestockDismissed, store.Restock("rr-dismissed").Status)

	require.Len(t, notifier.items, 1)
	require.Equal(t, notify.TypeReleaseCompleted, notifier.items[0].Type)
}

func TestReplenishZeroAmountReleasesAll(t *testing.T) {
	store := invtest.New()
	seed(store)
	svc, _, _ := newService(store)

	_, err := svc.ReplenishSafetyStock(context.Background(), manager, inventory.ReplenishInput{VariantID: "v-milk-1l"})
	require.NoError(t, err)
	v := store.Variant("v-milk-1l")
	require.Equal(t, int64(15), v.Quantity)
	require.Equal(t, int64(0), v.SafetyStock)
}

func TestReplenishRejectsExcessAmount(t *testing.T) {
	store := invtest.New()
	seed(store)
	seedRestocks(store)
	svc, notifier, _ := newService(store)

	_, err := svc.ReplenishSafetyStock(context.Background(), manager, inventory.ReplenishInput{VariantID: "v-milk-1l", Amount: 6})
	require.ErrorIs(t, err, inventory.ErrInsufficientSafetyStock)
	require.ErrorIs(t, err, shared.ErrValidation)

	v := store.Variant("v-milk-1l")
	require.Equal(t, int64(10), v.Quantity)
	require.Equal(t, int64(5), v.SafetyStock)
	require.Equal(t, inventory.RestockPending, store.Restock("rr-a").Status)
	require.Zero(t, store.MovementCount())
	require.Empty(t, notifier.items)
}

func TestReplenishWithoutSafetyStock(t *testing.T) {
	store := invtest.New()
	seed(store)
	svc, _, _ := newService(store)

	_, err := svc.ReplenishSafetyStock(context.Background(), manager, inventory.ReplenishInput{VariantID: "v-milk-2l", Amount: 1})
	require.ErrorIs(t, err, inventory.ErrNoSafetyStock)
	require.Contains(t, err.Error(), "No Safety Stock")
}

func TestReplenishRequiresManager(t *testing.T) {
	store := invtest.New()
	seed(store)
	svc, _, _ := newService(store)

	_, err := svc.ReplenishSafetyStock(context.Background(), cashier, inventory.ReplenishInput{VariantID: "v-milk-1l", Amount: 1})
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Equal(t, int64(5), store.Variant("v-milk-1l").SafetyStock)
}

func TestReplenishRollsBackOnLedgerFailure(t *testing.T) {
	store := invtest.New()
	seed(store)
	seedRestocks(store)
	store.FailMovementAfter = 1
	store.FailErr = errors.New("ledger unavailable")
	svc, _, _ := newService(store)

	_, err := svc.PostInbound(context.Background(), inventory.InboundInput{VariantID: "v-milk-2l", Quantity: 1, Actor: manager})
	require.NoError(t, err)

	_, err = svc.ReplenishSafetyStock(context.Background(), manager, inventory.ReplenishInput{VariantID: "v-milk-1l", Amount: 2})
	require.EqualError(t, err, "ledger unavailable")
	v := store.Variant("v-milk-1l")
	require.Equal(t, int64(10), v.Quantity)
	require.Equal(t, int64(5), v.SafetyStock)
	require.Equal(t, inventory.RestockPending, store.Restock("rr-a").Status)
	require.Equal(t, 1, store.MovementCount())
}

func TestGroupRestockRequests(t *testing.T) {
	store := invtest.New()
	seedRestocks(store)
	svc, _, _ := newService(store)

	items, err := svc.ListRestockRequests(context.Background(), inventory.RestockFilter{})
	require.NoError(t, err)
	require.Equal(t, inventory.PriorityCritical, items[0].Priority)

	groups := inventory.GroupRestockRequests(items)
	require.Len(t, groups, 2)
	require.Equal(t, inventory.PriorityCritical, groups[0].Priority)
	require.Len(t, groups[0].Requests, 3)
	require.Equal(t, inventory.GroupKey("p-milk", "1 L", "bottle"), groups[0].Key)
}

func TestRestockTransitions(t *testing.T) {
	store := invtest.New()
	seedRestocks(store)
	svc, _, _ := newService(store)
	ctx := context.Background()

	require.NoError(t, svc.AcknowledgeRestockRequest(ctx, manager, "rr-a"))
	require.Equal(t, inventory.RestockAcknowledged, store.Restock("rr-a").Status)

	err := svc.AcknowledgeRestockRequest(ctx, manager, "rr-a")
	require.ErrorIs(t, err, inventory.ErrRestockState)

	require.NoError(t, svc.DismissRestockRequest(ctx, manager, "rr-a", "duplicate"))
	require.Equal(t, "duplicate", store.Restock("rr-a").Note)

	err = svc.DismissRestockRequest(ctx, manager, "rr-a", "")
	require.ErrorIs(t, err, shared.ErrConflict)

	err = svc.AcknowledgeRestockRequest(ctx, cashier, "rr-other-size")
	require.ErrorIs(t, err, shared.ErrForbidden)

	err = svc.AcknowledgeRestockRequest(ctx, manager, "missing")
	require.ErrorIs(t, err, inventory.ErrRestockNotFound)
}

func TestMarkRestockProcessedTx(t *testing.T) {
	store := invtest.New()
	seedRestocks(store)
	svc, _, _ := newService(store)
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		return svc.MarkRestockProcessedTx(ctx, tx, "rr-a", "po-1")
	})
	require.NoError(t, err)
	got := store.Restock("rr-a")
	require.Equal(t, inventory.RestockProcessed, got.Status)
	require.Equal(t, "po-1", got.PurchaseOrderID)

	// same order again is a no-op
	err = store.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		return svc.MarkRestockProcessedTx(ctx, tx, "rr-a", "po-1")
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		return svc.MarkRestockProcessedTx(ctx, tx, "rr-dismissed", "po-1")
	})
	require.ErrorIs(t, err, inventory.ErrRestockState)
}

func TestCreateRestockRequestDerivesPriority(t *testing.T) {
	store := invtest.New()
	seed(store)
	svc, _, _ := newService(store)

	req, err := svc.CreateRestockRequest(context.Background(), manager, inventory.CreateRestockInput{VariantID: "v-milk-2l"})
	require.NoError(t, err)
	require.Equal(t, inventory.RestockPending, req.Status)
	require.Equal(t, inventory.PriorityMedium, req.Priority)
	require.Equal(t, "p-milk", store.Restock(req.ID).ProductID)
}

func TestDerivePriority(t *testing.T) {
	cases := []struct {
		v    inventory.Variant
		want inventory.RestockPriority
	}{
		{inventory.Variant{Quantity: 0, RestockLevel: 10}, inventory.PriorityCritical},
		{inventory.Variant{Quantity: 3, SafetyStock: 3, RestockLevel: 10}, inventory.PriorityUrgent},
		{inventory.Variant{Quantity: 5, SafetyStock: 1, RestockLevel: 10}, inventory.PriorityHigh},
		{inventory.Variant{Quantity: 8, SafetyStock: 1, RestockLevel: 10}, inventory.PriorityMedium},
		{inventory.Variant{Quantity: 20, SafetyStock: 1, RestockLevel: 10}, inventory.PriorityNormal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, inventory.DerivePriority(tc.v))
	}
}
