package notify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// Type classifies a notification.
type Type string

const (
	TypePOCreated          Type = "po_created"
	TypePOSubmitted        Type = "po_submitted"
	TypePOApproved         Type = "po_approved"
	TypePORejected         Type = "po_rejected"
	TypeReceivingCompleted Type = "receiving_completed"
	TypeReleaseCompleted   Type = "release_completed"
)

// Notification is a role-targeted message persisted for later delivery.
type Notification struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	TargetRoles []shared.Role  `json:"targetRoles"`
	Details     map[string]any `json:"details,omitempty"`
	Read        bool           `json:"isRead"`
	CreatedAt   time.Time      `json:"createdAt"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
}

// Targets reports whether role is one of the notification's recipients.
func (n Notification) Targets(role shared.Role) bool {
	for _, r := range n.TargetRoles {
		if r == role {
			return true
		}
	}
	return false
}

var managers = []shared.Role{shared.RoleAdmin, shared.RoleInventoryManager}

// POCreated announces a new draft purchase order.
func POCreated(poID, poNumber, supplierName string, total decimal.Decimal, actor shared.CurrentActor) Notification {
	return Notification{
		Type:        TypePOCreated,
		Title:       "Purchase order created",
		Message:     fmt.Sprintf("%s created %s for %s", displayName(actor), poNumber, supplierName),
		TargetRoles: managers,
		Details: map[string]any{
			"poId":         poID,
			"poNumber":     poNumber,
			"supplierName": supplierName,
			"totalAmount":  total.StringFixed(2),
			"createdBy":    actor.ID,
		},
	}
}

// POSubmitted asks approvers to review a purchase order.
func POSubmitted(poID, poNumber string, approverRoles []shared.Role, actor shared.CurrentActor) Notification {
	targets := approverRoles
	if len(targets) == 0 {
		targets = []shared.Role{shared.RoleAdmin}
	}
	return Notification{
		Type:        TypePOSubmitted,
		Title:       "Purchase order awaiting approval",
		Message:     fmt.Sprintf("%s submitted %s for approval", displayName(actor), poNumber),
		TargetRoles: targets,
		Details: map[string]any{
			"poId":        poID,
			"poNumber":    poNumber,
			"submittedBy": actor.ID,
		},
	}
}

// PODecided reports the final approval decision.
func PODecided(poID, poNumber string, approved bool, notes string, actor shared.CurrentActor) Notification {
	n := Notification{
		Type:        TypePORejected,
		Title:       "Purchase order rejected",
		Message:     fmt.Sprintf("%s was rejected by %s", poNumber, displayName(actor)),
		TargetRoles: managers,
		Details: map[string]any{
			"poId":      poID,
			"poNumber":  poNumber,
			"decidedBy": actor.ID,
		},
	}
	if approved {
		n.Type = TypePOApproved
		n.Title = "Purchase order approved"
		n.Message = fmt.Sprintf("%s was approved by %s", poNumber, displayName(actor))
	}
	if notes != "" {
		n.Details["notes"] = notes
	}
	return n
}

// ReceivingCompleted summarises a receiving session.
func ReceivingCompleted(poID, poNumber, receivingID string, accepted, rejected int64, fullyReceived bool, actor shared.CurrentActor) Notification {
	state := "partially received"
	if fullyReceived {
		state = "fully received"
	}
	return Notification{
		Type:        TypeReceivingCompleted,
		Title:       "Delivery received",
		Message:     fmt.Sprintf("%s %s: %d accepted, %d rejected", poNumber, state, accepted, rejected),
		TargetRoles: managers,
		Details: map[string]any{
			"poId":                   poID,
			"poNumber":               poNumber,
			"receivingTransactionId": receivingID,
			"acceptedQuantity":       accepted,
			"rejectedQuantity":       rejected,
			"fullyReceived":          fullyReceived,
			"receivedBy":             actor.ID,
		},
	}
}

// ReleaseCompleted reports a safety-stock release into on-hand stock.
func ReleaseCompleted(productID, variantID, variantName string, amount, newQuantity int64, resolved int, actor shared.CurrentActor) Notification {
	return Notification{
		Type:        TypeReleaseCompleted,
		Title:       "Safety stock released",
		Message:     fmt.Sprintf("%d units of %s moved from safety stock by %s", amount, variantName, displayName(actor)),
		TargetRoles: managers,
		Details: map[string]any{
			"productId":        productID,
			"variantId":        variantID,
			"amount":           amount,
			"newQuantity":      newQuantity,
			"resolvedRequests": resolved,
			"releasedBy":       actor.ID,
		},
	}
}

func displayName(actor shared.CurrentActor) string {
	if actor.Name != "" {
		return actor.Name
	}
	if actor.ID != "" {
		return actor.ID
	}
	return "system"
}
