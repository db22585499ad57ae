package procurement

import (
	"fmt"
	"time"
)

var transitions = map[POStatus][]POStatus{
	StatusDraft:           {StatusPendingApproval},
	StatusPendingApproval: {StatusApproved, StatusRejected},
	StatusApproved:        {StatusReceiving, StatusReceived},
	StatusReceiving:       {StatusReceiving, StatusReceived},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to POStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Receivable reports whether goods may be received against status.
func Receivable(status POStatus) bool {
	return status == StatusApproved || status == StatusReceiving
}

// transition moves po to the target status and stamps the matching timestamp.
func (po *PurchaseOrder) transition(to POStatus, at time.Time) error {
	if !CanTransition(po.Status, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, po.Status, to)
	}
	stamp := at
	switch to {
	case StatusPendingApproval:
		po.SubmittedAt = &stamp
	case StatusApproved:
		po.ApprovedAt = &stamp
	case StatusRejected:
		po.RejectedAt = &stamp
	case StatusReceived:
		po.CompletedAt = &stamp
	}
	po.Status = to
	po.UpdatedAt = at
	return nil
}

func requireStatus(po PurchaseOrder, action string, allowed ...POStatus) error {
	for _, s := range allowed {
		if po.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s purchase order in status %s", ErrInvalidTransition, action, po.Status)
}
