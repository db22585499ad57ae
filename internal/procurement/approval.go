package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// ApprovalStatus is the state of an approval or one of its steps.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalAction is what an approver decides on a step.
type ApprovalAction string

const (
	ActionApprove ApprovalAction = "approve"
	ActionReject  ApprovalAction = "reject"
)

// ApprovalStep is one level of the approval chain.
type ApprovalStep struct {
	Level        int            `json:"level"`
	Role         shared.Role    `json:"role"`
	Required     bool           `json:"required"`
	Status       ApprovalStatus `json:"status"`
	ApproverID   string         `json:"approverId,omitempty"`
	ApproverName string         `json:"approverName,omitempty"`
	ActedAt      *time.Time     `json:"actedAt,omitempty"`
	Notes        string         `json:"notes,omitempty"`
}

// Approval is created when a purchase order is submitted.
type Approval struct {
	ID        string         `json:"id"`
	POID      string         `json:"purchaseOrderId"`
	Status    ApprovalStatus `json:"status"`
	Steps     []ApprovalStep `json:"steps"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// NewApproval builds a pending approval with one required step per role.
func NewApproval(poID string, roles []shared.Role, at time.Time) Approval {
	if len(roles) == 0 {
		roles = []shared.Role{shared.RoleAdmin}
	}
	a := Approval{ID: uuid.NewString(), POID: poID, Status: ApprovalPending, CreatedAt: at, UpdatedAt: at}
	for i, role := range roles {
		a.Steps = append(a.Steps, ApprovalStep{Level: i + 1, Role: role, Required: true, Status: ApprovalPending})
	}
	return a
}

// ResolveApprovalStatus derives the overall status from the steps: rejected if
// any required step is rejected, approved if all required steps are approved,
// pending otherwise.
func ResolveApprovalStatus(steps []ApprovalStep) ApprovalStatus {
	required, approved := 0, 0
	for _, s := range steps {
		if !s.Required {
			continue
		}
		required++
		switch s.Status {
		case ApprovalRejected:
			return ApprovalRejected
		case ApprovalApproved:
			approved++
		}
	}
	if required > 0 && approved == required {
		return ApprovalApproved
	}
	return ApprovalPending
}

// ParseApprovalAction accepts approve/approved and reject/rejected.
func ParseApprovalAction(raw string) (ApprovalAction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return ActionApprove, nil
	case "reject", "rejected":
		return ActionReject, nil
	}
	return "", fmt.Errorf("%w: action must be approve or reject", shared.ErrValidation)
}

// ApprovalResult is the state after an approval step was processed.
type ApprovalResult struct {
	Approval Approval      `json:"approval"`
	Order    PurchaseOrder `json:"purchaseOrder"`
	Resolved bool          `json:"resolved"`
}

// ProcessApprovalStep records the actor's decision on the first pending step
// assigned to their role. When the approval resolves, the order moves to
// approved or rejected in the same unit of work.
func (s *Service) ProcessApprovalStep(ctx context.Context, actor shared.CurrentActor, poID, approvalID string, action ApprovalAction, notes string) (ApprovalResult, error) {
	if !actor.Valid() {
		return ApprovalResult{}, fmt.Errorf("%w: actor identity required", shared.ErrForbidden)
	}
	if action != ActionApprove && action != ActionReject {
		return ApprovalResult{}, fmt.Errorf("%w: action must be approve or reject", shared.ErrValidation)
	}
	var result ApprovalResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.ApprovalID == "" || po.ApprovalID != approvalID {
			return ErrApprovalNotFound
		}
		approval, err := tx.GetApprovalForUpdate(ctx, approvalID)
		if err != nil {
			return err
		}
		if approval.POID != po.ID {
			return ErrApprovalNotFound
		}
		if approval.Status != ApprovalPending {
			return fmt.Errorf("%w: approval already %s", ErrInvalidTransition, approval.Status)
		}
		if err := requireStatus(po, "approve", StatusPendingApproval); err != nil {
			return err
		}
		idx, err := pendingStepFor(approval, actor.Role)
		if err != nil {
			return err
		}
		now := s.now()
		step := &approval.Steps[idx]
		step.Status = ApprovalApproved
		if action == ActionReject {
			step.Status = ApprovalRejected
		}
		step.ApproverID = actor.ID
		step.ApproverName = actor.Name
		step.ActedAt = &now
		step.Notes = strings.TrimSpace(notes)

		approval.Status = ResolveApprovalStatus(approval.Steps)
		approval.UpdatedAt = now
		if err := tx.UpdateApproval(ctx, approval); err != nil {
			return err
		}
		switch approval.Status {
		case ApprovalApproved:
			err = po.transition(StatusApproved, now)
		case ApprovalRejected:
			err = po.transition(StatusRejected, now)
		default:
			po.UpdatedAt = now
		}
		if err != nil {
			return err
		}
		if err := tx.UpdatePO(ctx, po); err != nil {
			return err
		}
		result = ApprovalResult{Approval: approval, Order: po, Resolved: approval.Status != ApprovalPending}
		return nil
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	s.audit(ctx, actor, "po:approval_"+string(action), result.Order.ID, map[string]any{
		"approval_id": approvalID,
		"status":      string(result.Approval.Status),
		"notes":       notes,
	})
	s.publish(ctx, result.Order, "approval")
	if result.Resolved {
		approved := result.Approval.Status == ApprovalApproved
		s.metrics.ApprovalDecided(string(result.Approval.Status))
		s.emit(ctx, notify.PODecided(result.Order.ID, result.Order.PONumber, approved, notes, actor))
		if approved && s.jobs != nil {
			if err := s.jobs.EnqueuePODocument(ctx, result.Order.ID); err != nil {
				s.logger.Warn("po document job not enqueued", slog.String("po_id", result.Order.ID), slog.Any("error", err))
			}
		}
	}
	return result, nil
}

// pendingStepFor finds the first pending step of role. A role without any step
// in the chain is forbidden; a role whose steps are all decided is a conflict.
func pendingStepFor(a Approval, role shared.Role) (int, error) {
	hasRole := false
	for i, step := range a.Steps {
		if step.Role != role {
			continue
		}
		hasRole = true
		if step.Status == ApprovalPending {
			return i, nil
		}
	}
	if !hasRole {
		return -1, fmt.Errorf("%w: role %s is not an approver of this order", shared.ErrForbidden, role)
	}
	return -1, fmt.Errorf("%w %s", ErrNoPendingStep, role)
}

// GetApproval returns an approval by id.
func (s *Service) GetApproval(ctx context.Context, id string) (Approval, error) {
	return s.repo.GetApproval(ctx, id)
}
