package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// POStatus is the lifecycle state of a purchase order.
type POStatus string

const (
	StatusDraft           POStatus = "draft"
	StatusPendingApproval POStatus = "pending_approval"
	StatusApproved        POStatus = "approved"
	StatusRejected        POStatus = "rejected"
	StatusReceiving       POStatus = "receiving_in_progress"
	StatusReceived        POStatus = "received"
)

// NormalizeStatus maps stored or client spellings, including the legacy
// "partial" and "completed" values, onto the canonical statuses.
func NormalizeStatus(raw string) (POStatus, bool) {
	switch s := POStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected, StatusReceiving, StatusReceived:
		return s, true
	case "partial", "partially_received":
		return StatusReceiving, true
	case "completed", "complete":
		return StatusReceived, true
	case "pending":
		return StatusPendingApproval, true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is possible.
func (s POStatus) Terminal() bool {
	return s == StatusRejected || s == StatusReceived
}

// ReceivingStatus tracks reconciliation progress.
type ReceivingStatus string

const (
	ReceivingPending   ReceivingStatus = "pending"
	ReceivingPartial   ReceivingStatus = "partial"
	ReceivingCompleted ReceivingStatus = "completed"
)

// ActorRef snapshots who performed an action.
type ActorRef struct {
	ID   string      `json:"id"`
	Name string      `json:"name,omitempty"`
	Role shared.Role `json:"role,omitempty"`
}

// RefOf snapshots an actor.
func RefOf(a shared.CurrentActor) ActorRef {
	return ActorRef{ID: a.ID, Name: a.Name, Role: a.Role}
}

// LineItem is an ordered product line embedded in a purchase order.
type LineItem struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"productId"`
	ProductName      string          `json:"productName"`
	VariantID        string          `json:"variantId,omitempty"`
	Size             string          `json:"size,omitempty"`
	Unit             string          `json:"unit,omitempty"`
	Quantity         int64           `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	Total            decimal.Decimal `json:"total"`
	RestockRequestID string          `json:"restockRequestId,omitempty"`
	ReceivedQuantity int64           `json:"receivedQuantity"`
}

// Remaining is the quantity still expected.
func (l LineItem) Remaining() int64 {
	if l.ReceivedQuantity >= l.Quantity {
		return 0
	}
	return l.Quantity - l.ReceivedQuantity
}

// FullyReceived reports whether the ordered quantity has arrived.
func (l LineItem) FullyReceived() bool {
	return l.ReceivedQuantity >= l.Quantity
}

// PurchaseOrder is the aggregate root of the procurement flow.
type PurchaseOrder struct {
	ID              string          `json:"id"`
	PONumber        string          `json:"poNumber"`
	SupplierID      string          `json:"supplierId"`
	SupplierName    string          `json:"supplierName"`
	Items           []LineItem      `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	DeliveryDate    time.Time       `json:"deliveryDate"`
	PaymentTerms    string          `json:"paymentTerms,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Status          POStatus        `json:"status"`
	ReceivingStatus ReceivingStatus `json:"receivingStatus"`
	ApprovalID      string          `json:"approvalId,omitempty"`
	CreatedBy       ActorRef        `json:"createdBy"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	SubmittedAt     *time.Time      `json:"submittedAt,omitempty"`
	ApprovedAt      *time.Time      `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time      `json:"rejectedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
}

// FullyReceived reports whether every line has been received in full.
func (po PurchaseOrder) FullyReceived() bool {
	if len(po.Items) == 0 {
		return false
	}
	for _, l := range po.Items {
		if !l.FullyReceived() {
			return false
		}
	}
	return true
}

// Recalculate refreshes line totals and the order total.
func (po *PurchaseOrder) Recalculate() {
	total := decimal.Zero
	for i := range po.Items {
		po.Items[i].Total = po.Items[i].UnitPrice.Mul(decimal.NewFromInt(po.Items[i].Quantity))
		total = total.Add(po.Items[i].Total)
	}
	po.TotalAmount = total
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	Status      POStatus
	SupplierID  string
	CreatedFrom time.Time
	CreatedTo   time.Time
	Limit       int
	Offset      int
}

// DeliveryInfo describes one physical delivery.
type DeliveryInfo struct {
	DRNumber      string    `json:"drNumber"`
	InvoiceNumber string    `json:"invoiceNumber,omitempty"`
	DriverName    string    `json:"driverName,omitempty"`
	DeliveredAt   time.Time `json:"deliveredAt"`
	ReceivedBy    string    `json:"receivedBy,omitempty"`
	Site          string    `json:"site,omitempty"`
}

// ReceivedLine is the reconciled result of one line in a receiving session.
type ReceivedLine struct {
	LineID           string          `json:"lineId"`
	ProductID        string          `json:"productId"`
	ProductName      string          `json:"productName"`
	VariantID        string          `json:"variantId,omitempty"`
	OrderedQuantity  int64           `json:"orderedQuantity"`
	ExpectedQuantity int64           `json:"expectedQuantity"`
	AcceptedQuantity int64           `json:"acceptedQuantity"`
	RejectedQuantity int64           `json:"rejectedQuantity"`
	RejectionReason  string          `json:"rejectionReason,omitempty"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	PhotoURL         string          `json:"photoUrl,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	MovementID       string          `json:"movementId,omitempty"`
}

// ReceivingSummary totals a receiving session.
type ReceivingSummary struct {
	TotalAccepted int64           `json:"totalAccepted"`
	TotalRejected int64           `json:"totalRejected"`
	AcceptedValue decimal.Decimal `json:"acceptedValue"`
	LinesReceived int             `json:"linesReceived"`
	FullyReceived bool            `json:"fullyReceived"`
}

// ReceivingTransaction is the immutable record of one receiving session.
type ReceivingTransaction struct {
	ID         string           `json:"id"`
	POID       string           `json:"purchaseOrderId"`
	PONumber   string           `json:"poNumber"`
	SessionKey string           `json:"sessionKey,omitempty"`
	Delivery   DeliveryInfo     `json:"delivery"`
	Lines      []ReceivedLine   `json:"lines"`
	Summary    ReceivingSummary `json:"summary"`
	ReceivedBy ActorRef         `json:"receivedBy"`
	CreatedAt  time.Time        `json:"createdAt"`
}

var (
	// ErrPONotFound indicates a missing purchase order.
	ErrPONotFound = fmt.Errorf("procurement: purchase order %w", shared.ErrNotFound)
	// ErrApprovalNotFound indicates a missing approval.
	ErrApprovalNotFound = fmt.Errorf("procurement: approval %w", shared.ErrNotFound)
	// ErrReceivingNotFound indicates a missing receiving transaction.
	ErrReceivingNotFound = fmt.Errorf("procurement: receiving transaction %w", shared.ErrNotFound)
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = fmt.Errorf("%w: procurement: invalid state transition", shared.ErrConflict)
	// ErrNoPendingStep indicates the actor's role has no pending approval step.
	ErrNoPendingStep = fmt.Errorf("%w: procurement: no pending approval step for role", shared.ErrConflict)
	// ErrLineNotOnOrder indicates a receiving line that matches no order line.
	ErrLineNotOnOrder = fmt.Errorf("%w: procurement: line not on purchase order", shared.ErrValidation)
	// ErrDuplicateSession indicates a receiving session key that was already applied.
	ErrDuplicateSession = fmt.Errorf("%w: procurement: duplicate receiving session", shared.ErrConflict)
)
