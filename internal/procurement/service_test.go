package procurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-po/internal/changefeed"
	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	names := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestCreatePOComputesTotalsAndNumber(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := riceOrder(10)
	in.Items = append(in.Items, LineInput{ProductID: "p-oil", ProductName: "Cooking Oil", Quantity: 4, UnitPrice: decimal.RequireFromString("2.40")})
	po, err := f.svc.CreatePO(ctx, manager, in)
	require.NoError(t, err)

	require.Equal(t, StatusDraft, po.Status)
	require.Equal(t, ReceivingPending, po.ReceivingStatus)
	require.Equal(t, "PO-2603-0001", po.PONumber)
	require.Regexp(t, PONumberPattern, po.PONumber)
	require.True(t, po.Items[0].Total.Equal(decimal.NewFromInt(50)))
	require.True(t, po.Items[1].Total.Equal(decimal.RequireFromString("9.6")))
	require.True(t, po.TotalAmount.Equal(decimal.RequireFromString("59.6")))
	require.Equal(t, "u-mgr", po.CreatedBy.ID)

	require.Equal(t, []notify.Type{notify.TypePOCreated}, f.notifier.types())
	require.Len(t, f.feed.changes, 1)
	require.Equal(t, changefeed.TopicPurchaseOrders, f.feed.changes[0].Topic)
	require.Equal(t, "created", f.feed.changes[0].Kind)
}

func TestPONumberCountsWithinMonth(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.CreatePO(ctx, manager, riceOrder(1))
	require.NoError(t, err)
	second, err := f.svc.CreatePO(ctx, manager, riceOrder(2))
	require.NoError(t, err)
	require.Equal(t, "PO-2603-0001", first.PONumber)
	require.Equal(t, "PO-2603-0002", second.PONumber)

	f.advance(20 * 24 * time.Hour)
	april, err := f.svc.CreatePO(ctx, manager, riceOrder(3))
	require.NoError(t, err)
	require.Equal(t, "PO-2604-0001", april.PONumber)
	require.Regexp(t, PONumberPattern, april.PONumber)
}

func TestCreatePOCollectsEveryViolation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreatePO(context.Background(), manager, CreatePOInput{Items: []LineInput{{}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ElementsMatch(t, []string{
		"supplierId", "supplierName", "items[0].productId", "items[0].productName",
		"items[0].quantity", "items[0].unitPrice", "deliveryDate",
	}, fieldNames(t, err))

	_, err = f.svc.CreatePO(context.Background(), manager, CreatePOInput{SupplierID: "s", SupplierName: "S", DeliveryDate: f.now()})
	require.Contains(t, fieldNames(t, err), "items")
	require.Empty(t, f.repo.pos)
	require.Empty(t, f.notifier.items)
}

func TestCreatePORequiresManagerRole(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreatePO(context.Background(), cashier, riceOrder(1))
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.CreatePO(context.Background(), shared.CurrentActor{Role: shared.RoleAdmin}, riceOrder(1))
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, f.repo.pos)
}

func TestCreatePOMarksRestockRequestProcessed(t *testing.T) {
	f := newFixture()
	f.inv.AddRestock(inventory.RestockingRequest{ID: "rr-1", ProductID: "p-oil", VariantID: "v-oil-1l", Status: inventory.RestockPending,
		Priority: inventory.PriorityHigh, CurrentQuantity: 3, RestockLevel: 8})

	in := riceOrder(5)
	in.Items[0].RestockRequestID = "rr-1"
	po, err := f.svc.CreatePO(context.Background(), manager, in)
	require.NoError(t, err)

	rr := f.inv.Restock("rr-1")
	require.Equal(t, inventory.RestockProcessed, rr.Status)
	require.Equal(t, po.ID, rr.PurchaseOrderID)
}

func TestCreatePORollsBackWhenRestockRequestClosed(t *testing.T) {
	f := newFixture()
	f.inv.AddRestock(inventory.RestockingRequest{ID: "rr-2", ProductID: "p-oil", Status: inventory.RestockDismissed})

	in := riceOrder(5)
	in.Items[0].RestockRequestID = "rr-2"
	_, err := f.svc.CreatePO(context.Background(), manager, in)
	require.Error(t, err)
	require.Empty(t, f.repo.pos)
	require.Equal(t, inventory.RestockDismissed, f.inv.Restock("rr-2").Status)
}

func TestUpdatePOLinesOnlyInDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po, err := f.svc.CreatePO(ctx, manager, riceOrder(10))
	require.NoError(t, err)

	items := []LineInput{{ProductID: "p-rice", ProductName: "Rice", Quantity: 4, UnitPrice: decimal.RequireFromString("6")}}
	updated, err := f.svc.UpdatePO(ctx, manager, po.ID, UpdatePOInput{Items: &items})
	require.NoError(t, err)
	require.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(24)))
	require.Equal(t, po.PONumber, updated.PONumber)
	require.Len(t, f.repo.po(po.ID).Items, 1)

	_, _, err = f.svc.SubmitPO(ctx, manager, po.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdatePO(ctx, manager, po.ID, UpdatePOInput{Items: &items})
	require.ErrorIs(t, err, ErrInvalidTransition)

	notes := "deliver to back door"
	later := time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC)
	updated, err = f.svc.UpdatePO(ctx, manager, po.ID, UpdatePOInput{Notes: &notes, DeliveryDate: &later})
	require.NoError(t, err)
	require.Equal(t, notes, updated.Notes)
	require.True(t, later.Equal(updated.DeliveryDate))
	require.Equal(t, StatusPendingApproval, updated.Status)
}

func TestUpdatePOValidatesChangedFields(t *testing.T) {
	f := newFixture()
	po, err := f.svc.CreatePO(context.Background(), manager, riceOrder(10))
	require.NoError(t, err)

	blank := " "
	items := []LineInput{{ProductID: "p-rice", ProductName: "Rice", Quantity: 0, UnitPrice: decimal.Zero}}
	_, err = f.svc.UpdatePO(context.Background(), manager, po.ID, UpdatePOInput{SupplierName: &blank, Items: &items})
	require.ElementsMatch(t, []string{"supplierName", "items[0].quantity", "items[0].unitPrice"}, fieldNames(t, err))
}

func TestStripProtectedDropsImmutableKeys(t *testing.T) {
	payload := map[string]any{
		"poNumber": "PO-1111-9999", "createdAt": "2020-01-01T00:00:00Z", "createdBy": map[string]any{"id": "x"},
		"status": "approved", "totalAmount": 1, "notes": "keep",
	}
	got := StripProtected(payload)
	require.Equal(t, map[string]any{"notes": "keep"}, got)
}

func TestDeletePOOnlyDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	draft, err := f.svc.CreatePO(ctx, manager, riceOrder(1))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeletePO(ctx, manager, draft.ID))
	_, err = f.svc.GetPO(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	approved := f.approvedOrder(5)
	err = f.svc.DeletePO(ctx, manager, approved.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, StatusApproved, f.repo.po(approved.ID).Status)
}

func TestSubmitPOCreatesApprovalChain(t *testing.T) {
	f := newFixture(shared.RoleInventoryManager, shared.RoleAdmin)
	ctx := context.Background()
	po, err := f.svc.CreatePO(ctx, manager, riceOrder(10))
	require.NoError(t, err)

	submitted, approval, err := f.svc.SubmitPO(ctx, manager, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	require.Equal(t, approval.ID, submitted.ApprovalID)
	require.Equal(t, ApprovalPending, approval.Status)
	require.Len(t, approval.Steps, 2)
	require.Equal(t, shared.RoleInventoryManager, approval.Steps[0].Role)
	require.Equal(t, 2, approval.Steps[1].Level)

	stored, err := f.svc.GetApproval(ctx, approval.ID)
	require.NoError(t, err)
	require.Equal(t, po.ID, stored.POID)
	require.Contains(t, f.notifier.types(), notify.TypePOSubmitted)
}

func TestSubmitPOGuardsStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po, err := f.svc.CreatePO(ctx, manager, riceOrder(10))
	require.NoError(t, err)
	_, _, err = f.svc.SubmitPO(ctx, manager, po.ID)
	require.NoError(t, err)
	before := f.repo.po(po.ID)

	_, _, err = f.svc.SubmitPO(ctx, manager, po.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, before, f.repo.po(po.ID))
	require.Len(t, f.repo.approvals, 1)
}

func TestListPOsNewestFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first, err := f.svc.CreatePO(ctx, manager, riceOrder(1))
	require.NoError(t, err)
	f.advance(time.Hour)
	second, err := f.svc.CreatePO(ctx, manager, riceOrder(2))
	require.NoError(t, err)
	_, _, err = f.svc.SubmitPO(ctx, manager, second.ID)
	require.NoError(t, err)

	items, total, err := f.svc.ListPOs(ctx, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, second.ID, items[0].ID)
	require.Equal(t, first.ID, items[1].ID)

	items, total, err = f.svc.ListPOs(ctx, ListFilter{Status: StatusDraft})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, first.ID, items[0].ID)

	_, _, err = f.svc.ListPOs(ctx, ListFilter{CreatedFrom: f.now(), CreatedTo: f.now().Add(-time.Hour)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNormalizeStatusLegacyValues(t *testing.T) {
	cases := map[string]POStatus{
		"completed":             StatusReceived,
		"partial":               StatusReceiving,
		"Pending":               StatusPendingApproval,
		"receiving_in_progress": StatusReceiving,
		"draft":                 StatusDraft,
	}
	for raw, want := range cases {
		got, ok := NormalizeStatus(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := NormalizeStatus("shipped")
	require.False(t, ok)
	require.True(t, StatusReceived.Terminal())
	require.False(t, CanTransition(StatusReceived, StatusReceiving))
	require.False(t, CanTransition(StatusDraft, StatusApproved))
}
