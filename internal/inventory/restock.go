package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// ReplenishInput releases safety stock of a variant. ProductID, Size and Unit
// select the restocking group; when empty they default to the variant's own.
// Amount 0 releases the whole reserve.
type ReplenishInput struct {
	VariantID string `json:"variantId" validate:"required"`
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Unit      string `json:"unit"`
	Amount    int64  `json:"amount" validate:"gte=0"`
}

// ReplenishResult reports the outcome of a release.
type ReplenishResult struct {
	Variant          Variant       `json:"variant"`
	Movement         StockMovement `json:"movement"`
	ResolvedRequests []string      `json:"resolvedRequests"`
}

// ReplenishSafetyStock moves units from safety stock into on-hand quantity and
// resolves every open restocking request of the same group, atomically.
func (s *Service) ReplenishSafetyStock(ctx context.Context, actor shared.CurrentActor, input ReplenishInput) (ReplenishResult, error) {
	if err := shared.RequireRole(actor, shared.RoleInventoryManager, shared.RoleAdmin); err != nil {
		return ReplenishResult{}, err
	}
	if input.VariantID == "" {
		return ReplenishResult{}, fmt.Errorf("%w: inventory: variant id required", shared.ErrValidation)
	}
	if input.Amount < 0 {
		return ReplenishResult{}, ErrInvalidQuantity
	}
	var result ReplenishResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		variant, err := tx.GetVariantForUpdate(ctx, input.VariantID)
		if err != nil {
			return err
		}
		if variant.SafetyStock <= 0 {
			return ErrNoSafetyStock
		}
		amount := input.Amount
		if amount == 0 {
			amount = variant.SafetyStock
		}
		if amount > variant.SafetyStock {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientSafetyStock, amount, variant.SafetyStock)
		}
		movement, err := s.applyMovement(ctx, tx, movementParams{
			variantID:    variant.ID,
			delta:        amount,
			safetyDelta:  -amount,
			movementType: MovementSafetyRelease,
			refModule:    "inventory",
			reason:       "safety stock release",
			actor:        actor,
		})
		if err != nil {
			return err
		}

		productID := firstNonEmpty(input.ProductID, variant.ParentProductID)
		key := GroupKey(productID, firstNonEmpty(input.Size, variant.Size), firstNonEmpty(input.Unit, variant.Unit))
		requests, err := tx.ListRestockRequestsByProduct(ctx, productID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, r := range requests {
			if !r.Status.Open() {
				continue
			}
			if r.VariantID != variant.ID && r.GroupKey() != key {
				continue
			}
			if err := tx.UpdateRestockStatus(ctx, r.ID, RestockResolvedSafetyStock, "", "", now); err != nil {
				return err
			}
			result.ResolvedRequests = append(result.ResolvedRequests, r.ID)
		}
		variant.Quantity = movement.AfterQuantity
		variant.SafetyStock -= amount
		variant.UpdatedAt = now
		result.Variant = variant
		result.Movement = movement
		return nil
	})
	if err != nil {
		return ReplenishResult{}, err
	}
	s.Committed(ctx, result.Movement)
	if s.notifier != nil {
		s.notifier.Emit(ctx, notify.ReleaseCompleted(result.Variant.ParentProductID, result.Variant.ID, result.Variant.Name,
			result.Movement.Quantity, result.Variant.Quantity, len(result.ResolvedRequests), actor))
	}
	s.logger.Info("safety stock released",
		slog.String("variant_id", result.Variant.ID),
		slog.Int64("amount", result.Movement.Quantity),
		slog.Int("resolved", len(result.ResolvedRequests)))
	return result, nil
}

// RestockGroup aggregates open requests for the same logical product variant
// across locations.
type RestockGroup struct {
	Key            string              `json:"key"`
	ProductID      string              `json:"productId"`
	ProductName    string              `json:"productName,omitempty"`
	Size           string              `json:"size,omitempty"`
	Unit           string              `json:"unit,omitempty"`
	Priority       RestockPriority     `json:"priority"`
	TotalShortfall int64               `json:"totalShortfall"`
	Requests       []RestockingRequest `json:"requests"`
}

// ListRestockRequests lists requests, most pressing first.
func (s *Service) ListRestockRequests(ctx context.Context, filter RestockFilter) ([]RestockingRequest, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	items, err := s.repo.ListRestockRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortByPriority(items)
	return items, nil
}

// GroupRestockRequests groups requests by product and normalized size/unit.
// Groups are ordered by their most pressing priority.
func GroupRestockRequests(requests []RestockingRequest) []RestockGroup {
	index := map[string]int{}
	var groups []RestockGroup
	for _, r := range requests {
		key := r.GroupKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, RestockGroup{
				Key:         key,
				ProductID:   r.ProductID,
				ProductName: r.ProductName,
				Size:        r.Size,
				Unit:        r.Unit,
				Priority:    r.Priority,
			})
		}
		g := &groups[i]
		g.Requests = append(g.Requests, r)
		g.TotalShortfall += r.Shortfall()
		if r.Priority.Rank() > g.Priority.Rank() {
			g.Priority = r.Priority
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Priority.Rank() > groups[j].Priority.Rank()
	})
	return groups
}

// CreateRestockInput records an externally raised restocking signal.
type CreateRestockInput struct {
	VariantID string          `json:"variantId" validate:"required"`
	Priority  RestockPriority `json:"priority" validate:"omitempty,oneof=critical urgent high medium normal"`
	Note      string          `json:"note"`
}

// CreateRestockRequest snapshots a variant's stock levels into a pending request.
func (s *Service) CreateRestockRequest(ctx context.Context, actor shared.CurrentActor, input CreateRestockInput) (RestockingRequest, error) {
	if err := shared.RequireRole(actor, shared.RoleInventoryManager, shared.RoleAdmin); err != nil {
		return RestockingRequest{}, err
	}
	variant, err := s.repo.GetVariant(ctx, input.VariantID)
	if err != nil {
		return RestockingRequest{}, err
	}
	req := RestockingRequest{
		ID:              uuid.NewString(),
		ProductID:       variant.ParentProductID,
		ProductName:     variant.Name,
		VariantID:       variant.ID,
		Size:            variant.Size,
		Unit:            variant.Unit,
		CurrentQuantity: variant.Quantity,
		RestockLevel:    variant.RestockLevel,
		SafetyStock:     variant.SafetyStock,
		Priority:        input.Priority,
		Status:          RestockPending,
		Location:        variant.Location,
		Note:            strings.TrimSpace(input.Note),
		CreatedAt:       s.now(),
	}
	if req.Priority == "" {
		req.Priority = DerivePriority(variant)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertRestockRequest(ctx, req)
	})
	if err != nil {
		return RestockingRequest{}, err
	}
	return req, nil
}

// ImportRestockRequest writes a request decoded from a legacy document.
func (s *Service) ImportRestockRequest(ctx context.Context, r RestockingRequest) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertRestockRequest(ctx, r)
	})
}

// DerivePriority grades how far a variant has fallen below its reorder point.
func DerivePriority(v Variant) RestockPriority {
	switch {
	case v.Quantity <= 0:
		return PriorityCritical
	case v.Quantity <= v.SafetyStock:
		return PriorityUrgent
	case v.RestockLevel > 0 && v.Quantity*2 <= v.RestockLevel:
		return PriorityHigh
	case v.Quantity <= v.RestockLevel:
		return PriorityMedium
	default:
		return PriorityNormal
	}
}

// AcknowledgeRestockRequest marks a pending request as seen.
func (s *Service) AcknowledgeRestockRequest(ctx context.Context, actor shared.CurrentActor, id string) error {
	return s.transitionRestock(ctx, actor, id, RestockAcknowledged, "", func(st RestockStatus) bool {
		return st == RestockPending
	})
}

// DismissRestockRequest closes an open request without action.
func (s *Service) DismissRestockRequest(ctx context.Context, actor shared.CurrentActor, id, note string) error {
	return s.transitionRestock(ctx, actor, id, RestockDismissed, note, RestockStatus.Open)
}

func (s *Service) transitionRestock(ctx context.Context, actor shared.CurrentActor, id string, to RestockStatus, note string, allowed func(RestockStatus) bool) error {
	if err := shared.RequireRole(actor, shared.RoleInventoryManager, shared.RoleAdmin); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRestockRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(req.Status) {
			return fmt.Errorf("%w: %s to %s", ErrRestockState, req.Status, to)
		}
		return tx.UpdateRestockStatus(ctx, id, to, "", note, s.now())
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditFromActor(actor, "restock:"+string(to), "restocking_request", id, map[string]any{"note": note})); err != nil {
			s.logger.Warn("restock audit failed", slog.String("id", id), slog.Any("error", err))
		}
	}
	return nil
}

// MarkRestockProcessedTx links an open request to a purchase order inside the
// caller's unit of work. Requests already processed for the same order are left
// untouched.
func (s *Service) MarkRestockProcessedTx(ctx context.Context, tx TxRepository, id, poID string) error {
	req, err := tx.GetRestockRequestForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if req.Status == RestockProcessed && req.PurchaseOrderID == poID {
		return nil
	}
	if !req.Status.Open() {
		return fmt.Errorf("%w: %s to %s", ErrRestockState, req.Status, RestockProcessed)
	}
	return tx.UpdateRestockStatus(ctx, id, RestockProcessed, poID, "", s.now())
}

func sortByPriority(items []RestockingRequest) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority.Rank() != items[j].Priority.Rank() {
			return items[i].Priority.Rank() > items[j].Priority.Rank()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
