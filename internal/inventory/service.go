package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	VariantLookup
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListVariants(ctx context.Context, filter VariantFilter) ([]Variant, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
	ListRestockRequests(ctx context.Context, filter RestockFilter) ([]RestockingRequest, error)
	SnapshotTotals(ctx context.Context) (Snapshot, error)
}

// TxRepository exposes the transactional operations. Implementations bind to a
// single store transaction so that callers from other modules can compose
// inventory writes into their own unit of work.
type TxRepository interface {
	GetVariantForUpdate(ctx context.Context, id string) (Variant, error)
	UpdateVariantStock(ctx context.Context, id string, quantity, safetyStock int64, at time.Time) error
	InsertMovement(ctx context.Context, m StockMovement) error
	ListVariantsByProduct(ctx context.Context, productID string) ([]Variant, error)
	UpdateProductStats(ctx context.Context, productID string, stats ProductStats, at time.Time) error
	ListRestockRequestsByProduct(ctx context.Context, productID string) ([]RestockingRequest, error)
	GetRestockRequestForUpdate(ctx context.Context, id string) (RestockingRequest, error)
	UpdateRestockStatus(ctx context.Context, id string, status RestockStatus, poID, note string, at time.Time) error
	UpsertVariant(ctx context.Context, v Variant) error
	UpsertRestockRequest(ctx context.Context, r RestockingRequest) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier receives fire-and-forget notifications.
type Notifier interface {
	Emit(ctx context.Context, n notify.Notification)
}

// Options groups optional collaborators.
type Options struct {
	Audit    AuditPort
	Notifier Notifier
	Listener StockListener
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service coordinates inventory operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier Notifier
	listener StockListener
	logger   *slog.Logger
	now      func() time.Time
	resolver *ResolverChain
}

// NewService builds Service.
func NewService(repo RepositoryPort, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     repo,
		audit:    opts.Audit,
		notifier: opts.Notifier,
		listener: opts.Listener,
		logger:   logger,
		now:      now,
		resolver: NewResolverChain(repo),
	}
}

// Resolver returns the variant resolution chain backed by this store.
func (s *Service) Resolver() *ResolverChain {
	return s.resolver
}

// InboundInput adds received units to a variant.
type InboundInput struct {
	VariantID     string
	Quantity      int64
	RefModule     string
	RefID         string
	ReceivingTxID string
	Reason        string
	Actor         shared.CurrentActor
}

// OutboundInput removes sold or consumed units from a variant.
type OutboundInput struct {
	VariantID string
	Quantity  int64
	RefModule string
	RefID     string
	Reason    string
	Actor     shared.CurrentActor
}

// AdjustmentInput corrects a variant by a signed delta.
type AdjustmentInput struct {
	VariantID string
	Delta     int64
	Reason    string
	Actor     shared.CurrentActor
}

type movementParams struct {
	variantID     string
	delta         int64
	safetyDelta   int64
	movementType  MovementType
	refModule     string
	refID         string
	receivingTxID string
	reason        string
	actor         shared.CurrentActor
}

// PostInboundTx applies an inbound movement inside the caller's unit of work:
// the variant is locked, incremented, a ledger entry is appended and the parent
// product statistics are recomputed. The caller owns commit and role checks and
// should pass the returned movement to Committed after a successful commit.
func (s *Service) PostInboundTx(ctx context.Context, tx TxRepository, input InboundInput) (StockMovement, error) {
	if input.Quantity <= 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	return s.applyMovement(ctx, tx, movementParams{
		variantID:     input.VariantID,
		delta:         input.Quantity,
		movementType:  MovementIn,
		refModule:     input.RefModule,
		refID:         input.RefID,
		receivingTxID: input.ReceivingTxID,
		reason:        input.Reason,
		actor:         input.Actor,
	})
}

// PostInbound posts an inbound movement in its own unit of work.
func (s *Service) PostInbound(ctx context.Context, input InboundInput) (StockMovement, error) {
	if err := shared.RequireRole(input.Actor, shared.RoleInventoryManager, shared.RoleAdmin); err != nil {
		return StockMovement{}, err
	}
	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.PostInboundTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.Committed(ctx, movement)
	return movement, nil
}

// PostOutbound removes units, for example after a sale.
func (s *Service) PostOutbound(ctx context.Context, input OutboundInput) (StockMovement, error) {
	if err := shared.RequireRole(input.Actor, shared.RoleCashier, shared.RoleInventoryManager, shared.RoleAdmin); err != nil {
		return StockMovement{}, err
	}
	if input.Quantity <= 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	return s.postStandalone(ctx, movementParams{
		variantID:    input.VariantID,
		delta:        -input.Quantity,
		movementType: MovementOut,
		refModule:    input.RefModule,
		refID:        input.RefID,
		reason:       input.Reason,
		actor:        input.Actor,
	})
}

// PostAdjustment posts an adjustment which may be positive or negative.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (StockMovement, error) {
	if err := shared.RequireRole(input.Actor, shared.RoleInventoryManager, shared.RoleAdmin); err != nil {
		return StockMovement{}, err
	}
	verr := &shared.ValidationError{}
	if input.Delta == 0 {
		verr.Add("delta", "must not be zero")
	}
	if strings.TrimSpace(input.Reason) == "" {
		verr.Add("reason", "is required")
	}
	if err := verr.Err(); err != nil {
		return StockMovement{}, err
	}
	return s.postStandalone(ctx, movementParams{
		variantID:    input.VariantID,
		delta:        input.Delta,
		movementType: MovementAdjustment,
		refModule:    "inventory",
		reason:       input.Reason,
		actor:        input.Actor,
	})
}

func (s *Service) postStandalone(ctx context.Context, params movementParams) (StockMovement, error) {
	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.applyMovement(ctx, tx, params)
		return err
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.Committed(ctx, movement)
	return movement, nil
}

// applyMovement is the single read-then-write path for every quantity change.
func (s *Service) applyMovement(ctx context.Context, tx TxRepository, params movementParams) (StockMovement, error) {
	if params.variantID == "" {
		return StockMovement{}, fmt.Errorf("%w: inventory: variant id required", shared.ErrValidation)
	}
	variant, err := tx.GetVariantForUpdate(ctx, params.variantID)
	if err != nil {
		return StockMovement{}, err
	}
	newQty, okQty := addQuantity(variant.Quantity, params.delta)
	newSafety, okSafety := addQuantity(variant.SafetyStock, params.safetyDelta)
	if !okQty || !okSafety {
		return StockMovement{}, ErrQuantityOverflow
	}
	if newQty < 0 || newSafety < 0 {
		return StockMovement{}, ErrNegativeStock
	}
	now := s.now()
	if err := tx.UpdateVariantStock(ctx, variant.ID, newQty, newSafety, now); err != nil {
		return StockMovement{}, err
	}
	movement := StockMovement{
		ID:             uuid.NewString(),
		MovementType:   params.movementType,
		ProductID:      variant.ParentProductID,
		VariantID:      variant.ID,
		Quantity:       params.delta,
		BeforeQuantity: variant.Quantity,
		AfterQuantity:  newQty,
		RefModule:      params.refModule,
		RefID:          params.refID,
		ReceivingTxID:  params.receivingTxID,
		Reason:         params.reason,
		ActorID:        params.actor.ID,
		ActorName:      params.actor.Name,
		CreatedAt:      now,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return StockMovement{}, err
	}
	if err := s.recomputeStatsTx(ctx, tx, variant.ParentProductID); err != nil {
		return StockMovement{}, err
	}
	return movement, nil
}

func addQuantity(current, delta int64) (int64, bool) {
	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		return 0, false
	}
	return current + delta, true
}

func (s *Service) recomputeStatsTx(ctx context.Context, tx TxRepository, productID string) error {
	if productID == "" {
		return nil
	}
	variants, err := tx.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return err
	}
	return tx.UpdateProductStats(ctx, productID, ComputeProductStats(variants), s.now())
}

// RecomputeProductStats recalculates and stores the aggregates of a product.
func (s *Service) RecomputeProductStats(ctx context.Context, productID string) (ProductStats, error) {
	if productID == "" {
		return ProductStats{}, fmt.Errorf("%w: inventory: product id required", shared.ErrValidation)
	}
	var stats ProductStats
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		variants, err := tx.ListVariantsByProduct(ctx, productID)
		if err != nil {
			return err
		}
		if len(variants) == 0 {
			return ErrProductNotFound
		}
		stats = ComputeProductStats(variants)
		return tx.UpdateProductStats(ctx, productID, stats, s.now())
	})
	return stats, err
}

// Committed publishes stock-change events for movements whose unit of work has
// committed.
func (s *Service) Committed(ctx context.Context, movements ...StockMovement) {
	for _, m := range movements {
		if s.audit != nil {
			entry := shared.AuditLog{
				ActorID:  m.ActorID,
				Action:   fmt.Sprintf("inventory:%s", strings.ToLower(string(m.MovementType))),
				Entity:   "variant",
				EntityID: m.VariantID,
				Meta: map[string]any{
					"movement_id": m.ID,
					"delta":       m.Quantity,
					"after":       m.AfterQuantity,
					"ref_module":  m.RefModule,
					"ref_id":      m.RefID,
				},
				At: m.CreatedAt,
			}
			if err := s.audit.Record(ctx, entry); err != nil {
				s.logger.Warn("inventory audit failed", slog.String("variant_id", m.VariantID), slog.Any("error", err))
			}
		}
		if s.listener != nil {
			s.listener.StockChanged(StockChangedEvent{
				VariantID: m.VariantID,
				ProductID: m.ProductID,
				Delta:     m.Quantity,
				Quantity:  m.AfterQuantity,
				Movement:  m.MovementType,
				At:        m.CreatedAt,
			})
		}
	}
}

// GetVariant returns a variant by id.
func (s *Service) GetVariant(ctx context.Context, id string) (Variant, error) {
	return s.repo.GetVariant(ctx, id)
}

// ListVariants lists variants.
func (s *Service) ListVariants(ctx context.Context, filter VariantFilter) ([]Variant, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListVariants(ctx, filter)
}

// GetProduct returns product aggregates.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListMovements lists ledger entries, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: inventory: range end before start", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

// ImportVariant writes a variant decoded from a legacy document and recomputes
// its product.
func (s *Service) ImportVariant(ctx context.Context, v Variant) error {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = s.now()
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpsertVariant(ctx, v); err != nil {
			return err
		}
		return s.recomputeStatsTx(ctx, tx, v.ParentProductID)
	})
}
