package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementIn represents an inbound movement such as a PO receipt.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement such as a sale.
	MovementOut MovementType = "OUT"
	// MovementAdjustment indicates manual corrections.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementSafetyRelease moves reserve units into on-hand stock.
	MovementSafetyRelease MovementType = "SAFETY_STOCK_RELEASE"
)

// Location pins a variant to a storage slot.
type Location struct {
	Warehouse string `json:"warehouse"`
	Shelf     string `json:"shelf,omitempty"`
	Row       string `json:"row,omitempty"`
	Column    string `json:"column,omitempty"`
}

// SupplierRef links a variant to one of its suppliers.
type SupplierRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
}

// Variant is a stock keeping unit and the unit of quantity tracking.
type Variant struct {
	ID              string          `json:"id"`
	ParentProductID string          `json:"parentProductId"`
	Name            string          `json:"name"`
	Size            string          `json:"size,omitempty"`
	Unit            string          `json:"unit,omitempty"`
	Quantity        int64           `json:"quantity"`
	SafetyStock     int64           `json:"safetyStock"`
	RestockLevel    int64           `json:"restockLevel"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Location        Location        `json:"location"`
	Suppliers       []SupplierRef   `json:"suppliers,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Product carries aggregate statistics recomputed from its variants.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	TotalStock     int64           `json:"totalStock"`
	TotalVariants  int             `json:"totalVariants"`
	MinPrice       decimal.Decimal `json:"minPrice"`
	MaxPrice       decimal.Decimal `json:"maxPrice"`
	StatsUpdatedAt time.Time       `json:"statsUpdatedAt"`
}

// ProductStats is the derived part of Product.
type ProductStats struct {
	TotalStock    int64           `json:"totalStock"`
	TotalVariants int             `json:"totalVariants"`
	MinPrice      decimal.Decimal `json:"minPrice"`
	MaxPrice      decimal.Decimal `json:"maxPrice"`
}

// StockMovement is an immutable ledger entry for one quantity change.
type StockMovement struct {
	ID             string       `json:"id"`
	MovementType   MovementType `json:"movementType"`
	ProductID      string       `json:"productId"`
	VariantID      string       `json:"variantId"`
	Quantity       int64        `json:"quantity"`
	BeforeQuantity int64        `json:"beforeQuantity"`
	AfterQuantity  int64        `json:"afterQuantity"`
	RefModule      string       `json:"refModule,omitempty"`
	RefID          string       `json:"refId,omitempty"`
	ReceivingTxID  string       `json:"receivingTransactionId,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	ActorID        string       `json:"actorId"`
	ActorName      string       `json:"actorName,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// RestockPriority orders restocking demand.
type RestockPriority string

const (
	PriorityCritical RestockPriority = "critical"
	PriorityUrgent   RestockPriority = "urgent"
	PriorityHigh     RestockPriority = "high"
	PriorityMedium   RestockPriority = "medium"
	PriorityNormal   RestockPriority = "normal"
)

// Rank returns a sortable weight, higher is more pressing.
func (p RestockPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 5
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// RestockStatus is the lifecycle of a restocking request.
type RestockStatus string

const (
	RestockPending             RestockStatus = "pending"
	RestockAcknowledged        RestockStatus = "acknowledged"
	RestockResolvedSafetyStock RestockStatus = "resolved_safety_stock"
	RestockDismissed           RestockStatus = "dismissed"
	RestockProcessed           RestockStatus = "processed"
)

// Open reports whether the request still awaits resolution.
func (s RestockStatus) Open() bool {
	return s == RestockPending || s == RestockAcknowledged
}

// RestockingRequest signals that a variant fell to or below its reorder point.
type RestockingRequest struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName,omitempty"`
	VariantID       string          `json:"variantId,omitempty"`
	Size            string          `json:"size,omitempty"`
	Unit            string          `json:"unit,omitempty"`
	CurrentQuantity int64           `json:"currentQuantity"`
	RestockLevel    int64           `json:"restockLevel"`
	SafetyStock     int64           `json:"safetyStock"`
	Priority        RestockPriority `json:"priority"`
	Status          RestockStatus   `json:"status"`
	Location        Location        `json:"location"`
	PurchaseOrderID string          `json:"purchaseOrderId,omitempty"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
}

// GroupKey identifies the logical product+variant a request is about.
func (r RestockingRequest) GroupKey() string {
	return GroupKey(r.ProductID, r.Size, r.Unit)
}

// Shortfall is the number of units needed to reach the restock level.
func (r RestockingRequest) Shortfall() int64 {
	if r.RestockLevel <= r.CurrentQuantity {
		return 0
	}
	return r.RestockLevel - r.CurrentQuantity
}

// VariantFilter narrows variant listings.
type VariantFilter struct {
	ProductID    string
	Warehouse    string
	BelowRestock bool
	Limit        int
	Offset       int
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	VariantID string
	ProductID string
	RefID     string
	From      time.Time
	To        time.Time
	Limit     int
}

// RestockFilter narrows restocking request listings.
type RestockFilter struct {
	Status    RestockStatus
	ProductID string
	Priority  RestockPriority
	Limit     int
}

var (
	// ErrVariantNotFound indicates a missing variant document.
	ErrVariantNotFound = fmt.Errorf("inventory: variant %w", shared.ErrNotFound)
	// ErrProductNotFound indicates a missing product document.
	ErrProductNotFound = fmt.Errorf("inventory: product %w", shared.ErrNotFound)
	// ErrRestockNotFound indicates a missing restocking request.
	ErrRestockNotFound = fmt.Errorf("inventory: restocking request %w", shared.ErrNotFound)
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = fmt.Errorf("%w: inventory: negative stock not allowed", shared.ErrValidation)
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: quantity must be positive", shared.ErrValidation)
	// ErrQuantityOverflow indicates a movement beyond the representable stock range.
	ErrQuantityOverflow = fmt.Errorf("%w: inventory: quantity out of range", shared.ErrValidation)
	// ErrNoSafetyStock indicates an empty safety-stock reserve.
	ErrNoSafetyStock = fmt.Errorf("%w: No Safety Stock", shared.ErrValidation)
	// ErrInsufficientSafetyStock indicates a release larger than the reserve.
	ErrInsufficientSafetyStock = fmt.Errorf("%w: inventory: replenish amount exceeds safety stock", shared.ErrValidation)
	// ErrRestockState indicates a restocking request transition not allowed from its status.
	ErrRestockState = fmt.Errorf("%w: inventory: restocking request state", shared.ErrConflict)
)
