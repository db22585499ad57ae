package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestGroupKeyFoldsSizeAndUnit(t *testing.T) {
	require.Equal(t, GroupKey("p-1", "500 ML", "Bottle"), GroupKey("p-1", "500ml", "bottle"))
	require.Equal(t, GroupKey("p-1", "５００ｍｌ", "BOTTLE"), GroupKey("p-1", "500ml", "bottle"))
	require.NotEqual(t, GroupKey("p-1", "500ml", "bottle"), GroupKey("p-2", "500ml", "bottle"))
	require.NotEqual(t, GroupKey("p-1", "500ml", "bottle"), GroupKey("p-1", "1l", "bottle"))
}

func TestDecodeVariantDocumentAliases(t *testing.T) {
	doc := map[string]any{
		"docId":           "v-9",
		"productId":       "p-9",
		"productName":     "Rice",
		"specifications":  map[string]any{"size": "5 kg", "unit": "sack"},
		"stock":           float64(42),
		"safety_stock":    "6",
		"reorderPoint":    float64(10),
		"price":           "12.40",
		"storageLocation": "Main",
		"location":        map[string]any{"shelf": "B", "row": "2", "column": float64(4)},
		"supplier":        map[string]any{"id": "s-1", "name": "Farm Co", "supplierPrimaryCode": "FC-01"},
		"updatedAt":       map[string]any{"_seconds": float64(1700000000), "_nanoseconds": float64(0)},
	}
	v, err := DecodeVariantDocument(doc)
	require.NoError(t, err)
	require.Equal(t, "v-9", v.ID)
	require.Equal(t, "p-9", v.ParentProductID)
	require.Equal(t, "Rice", v.Name)
	require.Equal(t, "5 kg", v.Size)
	require.Equal(t, "sack", v.Unit)
	require.Equal(t, int64(42), v.Quantity)
	require.Equal(t, int64(6), v.SafetyStock)
	require.Equal(t, int64(10), v.RestockLevel)
	require.True(t, v.UnitPrice.Equal(decimal.RequireFromString("12.40")))
	require.Equal(t, Location{Warehouse: "Main", Shelf: "B", Row: "2", Column: "4"}, v.Location)
	require.Equal(t, []SupplierRef{{ID: "s-1", Name: "Farm Co", Code: "FC-01"}}, v.Suppliers)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), v.UpdatedAt)
}

func TestDecodeVariantDocumentPrefersCanonicalNames(t *testing.T) {
	v, err := DecodeVariantDocument(map[string]any{
		"id":              "v-1",
		"parentProductId": "p-1",
		"productId":       "ignored",
		"quantity":        float64(3),
		"stock":           float64(99),
		"unitPrice":       float64(2.5),
		"supplierCode":    "X-1",
	})
	require.NoError(t, err)
	require.Equal(t, "p-1", v.ParentProductID)
	require.Equal(t, int64(3), v.Quantity)
	require.True(t, v.UnitPrice.Equal(decimal.NewFromFloat(2.5)))
	require.Equal(t, []SupplierRef{{Code: "X-1"}}, v.Suppliers)
}

func TestDecodeVariantDocumentRequiresIdentity(t *testing.T) {
	_, err := DecodeVariantDocument(map[string]any{"productId": "p-1"})
	require.Error(t, err)
	_, err = DecodeVariantDocument(map[string]any{"id": "v-1"})
	require.Error(t, err)
}

func TestDecodeRestockDocument(t *testing.T) {
	r, err := DecodeRestockDocument(map[string]any{
		"id":                  "rr-1",
		"product_id":          "p-1",
		"variantSize":         "1 L",
		"uom":                 "bottle",
		"currentQty":          float64(2),
		"rop":                 float64(10),
		"priorityLevel":       "CRITICAL",
		"status":              "resolved",
		"warehouse":           "North",
		"poId":                "po-7",
		"createdAt":           "2024-05-01T10:00:00Z",
		"safetyStockQuantity": float64(4),
	})
	require.NoError(t, err)
	require.Equal(t, "p-1", r.ProductID)
	require.Equal(t, "1 L", r.Size)
	require.Equal(t, "bottle", r.Unit)
	require.Equal(t, int64(2), r.CurrentQuantity)
	require.Equal(t, int64(10), r.RestockLevel)
	require.Equal(t, int64(4), r.SafetyStock)
	require.Equal(t, PriorityCritical, r.Priority)
	require.Equal(t, RestockResolvedSafetyStock, r.Status)
	require.Equal(t, "North", r.Location.Warehouse)
	require.Equal(t, "po-7", r.PurchaseOrderID)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), r.CreatedAt)
}

func TestDecodeRestockDocumentDefaults(t *testing.T) {
	r, err := DecodeRestockDocument(map[string]any{"id": "rr-2", "productId": "p-2", "priority": "low"})
	require.NoError(t, err)
	require.Equal(t, PriorityNormal, r.Priority)
	require.Equal(t, RestockPending, r.Status)
}

func TestComputeProductStats(t *testing.T) {
	stats := ComputeProductStats([]Variant{
		{Quantity: 4, UnitPrice: decimal.RequireFromString("3.00")},
		{Quantity: 6, UnitPrice: decimal.RequireFromString("1.25")},
		{Quantity: 0, UnitPrice: decimal.RequireFromString("9.99")},
	})
	require.Equal(t, int64(10), stats.TotalStock)
	require.Equal(t, 3, stats.TotalVariants)
	require.True(t, stats.MinPrice.Equal(decimal.RequireFromString("1.25")))
	require.True(t, stats.MaxPrice.Equal(decimal.RequireFromString("9.99")))

	empty := ComputeProductStats(nil)
	require.Zero(t, empty.TotalVariants)
	require.True(t, empty.MinPrice.IsZero())
}
