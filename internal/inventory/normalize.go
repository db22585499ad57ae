package inventory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeToken folds case, unicode width and whitespace so that "500 ML",
// "500ml" and "５００ｍｌ" compare equal.
func NormalizeToken(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = folder.String(s)
	return strings.Join(strings.Fields(s), "")
}

// GroupKey is the grouping key for "same product across locations".
func GroupKey(productID, size, unit string) string {
	return productID + "|" + NormalizeToken(size) + "|" + NormalizeToken(unit)
}

// Legacy documents spell the same concept several ways. Each alias list is
// ordered by preference; the first present, non-empty alias wins.
var (
	aliasVariantID   = []string{"id", "variantId", "variant_id", "docId"}
	aliasParent      = []string{"parentProductId", "parent_product_id", "productId", "product_id"}
	aliasName        = []string{"name", "variantName", "productName", "product_name"}
	aliasSize        = []string{"size", "variantSize", "specifications.size"}
	aliasUnit        = []string{"unit", "unitOfMeasure", "uom", "specifications.unit"}
	aliasQuantity    = []string{"quantity", "stock", "qty", "currentStock"}
	aliasSafetyStock = []string{"safetyStock", "safety_stock", "safetyStockQuantity"}
	aliasRestock     = []string{"restockLevel", "reorderPoint", "restock_level", "rop"}
	aliasPrice       = []string{"unitPrice", "price", "unit_price"}
	aliasWarehouse   = []string{"storageLocation", "warehouse", "location.warehouse", "storage_location"}
	aliasShelf       = []string{"shelfName", "shelf", "location.shelf"}
	aliasRow         = []string{"rowName", "row", "location.row"}
	aliasColumn      = []string{"columnIndex", "column", "location.column"}
	aliasSupplierID  = []string{"supplierId", "supplier_id", "id"}
	aliasSupplierNm  = []string{"supplierName", "supplier_name", "name"}
	aliasSupplierCd  = []string{"supplierCode", "supplierPrimaryCode", "code", "primaryCode"}
	aliasUpdatedAt   = []string{"updatedAt", "updated_at", "lastUpdated"}

	aliasRestockStatus   = []string{"status", "requestStatus"}
	aliasRestockPriority = []string{"priority", "priorityLevel"}
	aliasCurrentQty      = []string{"currentQuantity", "currentQty", "current_quantity", "quantity"}
	aliasCreatedAt       = []string{"createdAt", "created_at", "timestamp"}
	aliasPOID            = []string{"purchaseOrderId", "poId", "po_id"}
)

// DecodeVariantDocument maps a loosely typed legacy variant document onto the
// canonical Variant record.
func DecodeVariantDocument(doc map[string]any) (Variant, error) {
	v := Variant{
		ID:              pickString(doc, aliasVariantID),
		ParentProductID: pickString(doc, aliasParent),
		Name:            pickString(doc, aliasName),
		Size:            pickString(doc, aliasSize),
		Unit:            pickString(doc, aliasUnit),
		Quantity:        pickInt(doc, aliasQuantity),
		SafetyStock:     pickInt(doc, aliasSafetyStock),
		RestockLevel:    pickInt(doc, aliasRestock),
		UnitPrice:       pickDecimal(doc, aliasPrice),
		Location: Location{
			Warehouse: pickString(doc, aliasWarehouse),
			Shelf:     pickString(doc, aliasShelf),
			Row:       pickString(doc, aliasRow),
			Column:    pickString(doc, aliasColumn),
		},
		UpdatedAt: pickTime(doc, aliasUpdatedAt),
	}
	v.Suppliers = decodeSuppliers(doc)
	if v.ID == "" {
		return Variant{}, fmt.Errorf("inventory: legacy variant without id")
	}
	if v.ParentProductID == "" {
		return Variant{}, fmt.Errorf("inventory: legacy variant %s without parent product", v.ID)
	}
	if v.Quantity < 0 {
		v.Quantity = 0
	}
	if v.SafetyStock < 0 {
		v.SafetyStock = 0
	}
	return v, nil
}

// DecodeRestockDocument maps a legacy RestockingRequests/RestockRequests document.
func DecodeRestockDocument(doc map[string]any) (RestockingRequest, error) {
	r := RestockingRequest{
		ID:              pickString(doc, aliasVariantID),
		ProductID:       pickString(doc, aliasParent),
		ProductName:     pickString(doc, aliasName),
		VariantID:       pickString(doc, []string{"variantId", "variant_id"}),
		Size:            pickString(doc, aliasSize),
		Unit:            pickString(doc, aliasUnit),
		CurrentQuantity: pickInt(doc, aliasCurrentQty),
		RestockLevel:    pickInt(doc, aliasRestock),
		SafetyStock:     pickInt(doc, aliasSafetyStock),
		Priority:        normalizePriority(pickString(doc, aliasRestockPriority)),
		Status:          normalizeRestockStatus(pickString(doc, aliasRestockStatus)),
		Location: Location{
			Warehouse: pickString(doc, aliasWarehouse),
			Shelf:     pickString(doc, aliasShelf),
			Row:       pickString(doc, aliasRow),
			Column:    pickString(doc, aliasColumn),
		},
		PurchaseOrderID: pickString(doc, aliasPOID),
		CreatedAt:       pickTime(doc, aliasCreatedAt),
	}
	if r.ID == "" {
		return RestockingRequest{}, fmt.Errorf("inventory: legacy restocking request without id")
	}
	if r.ProductID == "" {
		return RestockingRequest{}, fmt.Errorf("inventory: legacy restocking request %s without product", r.ID)
	}
	return r, nil
}

func normalizePriority(raw string) RestockPriority {
	switch p := RestockPriority(strings.ToLower(strings.TrimSpace(raw))); p {
	case PriorityCritical, PriorityUrgent, PriorityHigh, PriorityMedium, PriorityNormal:
		return p
	case "low", "":
		return PriorityNormal
	default:
		return PriorityNormal
	}
}

func normalizeRestockStatus(raw string) RestockStatus {
	switch s := RestockStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case RestockPending, RestockAcknowledged, RestockResolvedSafetyStock, RestockDismissed, RestockProcessed:
		return s
	case "resolved", "resolved_with_safety_stock":
		return RestockResolvedSafetyStock
	case "ordered", "po_created":
		return RestockProcessed
	default:
		return RestockPending
	}
}

func decodeSuppliers(doc map[string]any) []SupplierRef {
	var out []SupplierRef
	appendOne := func(m map[string]any) {
		ref := SupplierRef{
			ID:   pickString(m, aliasSupplierID),
			Name: pickString(m, aliasSupplierNm),
			Code: pickString(m, aliasSupplierCd),
		}
		if ref.ID != "" || ref.Code != "" {
			out = append(out, ref)
		}
	}
	for _, key := range []string{"suppliers", "supplierList"} {
		list, ok := doc[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				appendOne(m)
			}
		}
		return out
	}
	if m, ok := doc["supplier"].(map[string]any); ok {
		appendOne(m)
		return out
	}
	// flat legacy shape: supplierId / supplierCode on the variant itself
	flat := SupplierRef{
		ID:   pickString(doc, []string{"supplierId", "supplier_id"}),
		Name: pickString(doc, []string{"supplierName", "supplier_name"}),
		Code: pickString(doc, []string{"supplierCode", "supplierPrimaryCode"}),
	}
	if flat.ID != "" || flat.Code != "" {
		out = append(out, flat)
	}
	return out
}

// lookup resolves dotted paths such as "location.shelf".
func lookup(doc map[string]any, path string) (any, bool) {
	cur := any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func pickString(doc map[string]any, aliases []string) string {
	for _, a := range aliases {
		raw, ok := lookup(doc, a)
		if !ok {
			continue
		}
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			s = strconv.FormatInt(v, 10)
		case int:
			s = strconv.Itoa(v)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func pickInt(doc map[string]any, aliases []string) int64 {
	for _, a := range aliases {
		raw, ok := lookup(doc, a)
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		case int:
			return int64(v)
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return int64(n)
			}
		}
	}
	return 0
}

func pickDecimal(doc map[string]any, aliases []string) decimal.Decimal {
	for _, a := range aliases {
		raw, ok := lookup(doc, a)
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return decimal.NewFromFloat(v)
		case int64:
			return decimal.NewFromInt(v)
		case int:
			return decimal.NewFromInt(int64(v))
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}

func pickTime(doc map[string]any, aliases []string) time.Time {
	for _, a := range aliases {
		raw, ok := lookup(doc, a)
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC()
			}
		case float64:
			return time.UnixMilli(int64(v)).UTC()
		case map[string]any:
			// exported server timestamps: {"_seconds": 1700000000, "_nanoseconds": 0}
			if sec, ok := v["_seconds"].(float64); ok {
				nsec, _ := v["_nanoseconds"].(float64)
				return time.Unix(int64(sec), int64(nsec)).UTC()
			}
		}
	}
	return time.Time{}
}
