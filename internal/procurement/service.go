package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-po/internal/changefeed"
	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id string) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	GetApproval(ctx context.Context, id string) (Approval, error)
	ListReceivingTransactions(ctx context.Context, poID string) ([]ReceivingTransaction, error)
	GetReceivingTransaction(ctx context.Context, id string) (ReceivingTransaction, error)
}

// TxRepository exposes transactional operations. Inventory returns the
// inventory view of the same transaction.
type TxRepository interface {
	CountPOsCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	InsertPO(ctx context.Context, po PurchaseOrder) error
	GetPOForUpdate(ctx context.Context, id string) (PurchaseOrder, error)
	UpdatePO(ctx context.Context, po PurchaseOrder) error
	ReplaceItems(ctx context.Context, poID string, items []LineItem) error
	SetItemReceived(ctx context.Context, poID, lineID string, received int64) error
	DeletePO(ctx context.Context, id string) error
	InsertApproval(ctx context.Context, a Approval) error
	GetApprovalForUpdate(ctx context.Context, id string) (Approval, error)
	UpdateApproval(ctx context.Context, a Approval) error
	InsertReceivingTransaction(ctx context.Context, rt ReceivingTransaction) error
	Inventory() inventory.TxRepository
}

// InventoryPort exposes the inventory writes composed into procurement units of work.
type InventoryPort interface {
	PostInboundTx(ctx context.Context, tx inventory.TxRepository, input inventory.InboundInput) (inventory.StockMovement, error)
	MarkRestockProcessedTx(ctx context.Context, tx inventory.TxRepository, id, poID string) error
	Committed(ctx context.Context, movements ...inventory.StockMovement)
}

// VariantResolver maps an order line onto an inventory variant.
type VariantResolver interface {
	Resolve(ctx context.Context, req inventory.ResolveRequest) (inventory.Variant, error)
}

// IdempotencyPort claims and releases receiving session keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// JobEnqueuer schedules the background follow-ups of committed operations.
type JobEnqueuer interface {
	EnqueuePODocument(ctx context.Context, poID string) error
	EnqueueInventorySnapshot(ctx context.Context) error
}

// Publisher pushes change events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, change changefeed.Change) error
}

// Notifier receives fire-and-forget notifications.
type Notifier interface {
	Emit(ctx context.Context, n notify.Notification)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts business outcomes.
type Metrics interface {
	ReceivingProcessed(outcome string)
	ApprovalDecided(decision string)
}

type nopMetrics struct{}

func (nopMetrics) ReceivingProcessed(string) {}
func (nopMetrics) ApprovalDecided(string)    {}

// Config holds procurement policy.
type Config struct {
	ApprovalRoles []shared.Role
}

// Deps groups the collaborators of Service. Only Repo, Inventory and Resolver
// are mandatory.
type Deps struct {
	Repo        RepositoryPort
	Inventory   InventoryPort
	Resolver    VariantResolver
	Idempotency IdempotencyPort
	Jobs        JobEnqueuer
	Feed        Publisher
	Notifier    Notifier
	Audit       AuditPort
	Metrics     Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service orchestrates procurement flows.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	resolver    VariantResolver
	idempotency IdempotencyPort
	jobs        JobEnqueuer
	feed        Publisher
	notifier    Notifier
	auditor     AuditPort
	metrics     Metrics
	logger      *slog.Logger
	now         func() time.Time
	cfg         Config
}

// NewService constructs procurement service.
func NewService(deps Deps, cfg Config) *Service {
	s := &Service{
		repo:        deps.Repo,
		inventory:   deps.Inventory,
		resolver:    deps.Resolver,
		idempotency: deps.Idempotency,
		jobs:        deps.Jobs,
		feed:        deps.Feed,
		notifier:    deps.Notifier,
		auditor:     deps.Audit,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
		cfg:         cfg,
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if len(s.cfg.ApprovalRoles) == 0 {
		s.cfg.ApprovalRoles = []shared.Role{shared.RoleAdmin}
	}
	return s
}

var managers = []shared.Role{shared.RoleInventoryManager, shared.RoleAdmin}

// CreatePO validates input and stores a new draft purchase order. Lines that
// reference a restocking request mark it processed in the same unit of work.
func (s *Service) CreatePO(ctx context.Context, actor shared.CurrentActor, input CreatePOInput) (PurchaseOrder, error) {
	if err := shared.RequireRole(actor, managers...); err != nil {
		return PurchaseOrder{}, err
	}
	if err := validateCreate(actor, input); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	po := PurchaseOrder{
		ID:              uuid.NewString(),
		SupplierID:      strings.TrimSpace(input.SupplierID),
		SupplierName:    strings.TrimSpace(input.SupplierName),
		Items:           buildItems(input.Items),
		DeliveryDate:    input.DeliveryDate.UTC(),
		PaymentTerms:    input.PaymentTerms,
		Notes:           input.Notes,
		Status:          StatusDraft,
		ReceivingStatus: ReceivingPending,
		CreatedBy:       RefOf(actor),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	po.Recalculate()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		from, to := monthBounds(now)
		count, err := tx.CountPOsCreatedBetween(ctx, from, to)
		if err != nil {
			return err
		}
		po.PONumber = FormatPONumber(now, count+1)
		if err := tx.InsertPO(ctx, po); err != nil {
			return err
		}
		for _, item := range po.Items {
			if item.RestockRequestID == "" {
				continue
			}
			if err := s.inventory.MarkRestockProcessedTx(ctx, tx.Inventory(), item.RestockRequestID, po.ID); err != nil {
				return fmt.Errorf("restocking request %s: %w", item.RestockRequestID, err)
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.audit(ctx, actor, "po:create", po.ID, map[string]any{"po_number": po.PONumber, "total": po.TotalAmount.String()})
	s.publish(ctx, po, "created")
	s.emit(ctx, notify.POCreated(po.ID, po.PONumber, po.SupplierName, po.TotalAmount, actor))
	s.logger.Info("purchase order created", slog.String("po_id", po.ID), slog.String("po_number", po.PONumber))
	return po, nil
}

func buildItems(lines []LineInput) []LineItem {
	items := make([]LineItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, LineItem{
			ID:               uuid.NewString(),
			ProductID:        strings.TrimSpace(l.ProductID),
			ProductName:      strings.TrimSpace(l.ProductName),
			VariantID:        strings.TrimSpace(l.VariantID),
			Size:             l.Size,
			Unit:             l.Unit,
			Quantity:         l.Quantity,
			UnitPrice:        l.UnitPrice,
			RestockRequestID: strings.TrimSpace(l.RestockRequestID),
		})
	}
	return items
}

// UpdatePO applies a partial update. Supplier and line changes require a draft;
// delivery date, payment terms and notes stay editable until the order is final.
func (s *Service) UpdatePO(ctx context.Context, actor shared.CurrentActor, id string, input UpdatePOInput) (PurchaseOrder, error) {
	if err := shared.RequireRole(actor, managers...); err != nil {
		return PurchaseOrder{}, err
	}
	if err := validateUpdate(input); err != nil {
		return PurchaseOrder{}, err
	}
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if input.empty() {
			return nil
		}
		if po.Status.Terminal() {
			return fmt.Errorf("%w: purchase order is %s", ErrInvalidTransition, po.Status)
		}
		if !input.headerOnly() {
			if err := requireStatus(po, "edit lines of", StatusDraft); err != nil {
				return err
			}
		}
		if input.SupplierID != nil {
			po.SupplierID = strings.TrimSpace(*input.SupplierID)
		}
		if input.SupplierName != nil {
			po.SupplierName = strings.TrimSpace(*input.SupplierName)
		}
		if input.DeliveryDate != nil {
			po.DeliveryDate = input.DeliveryDate.UTC()
		}
		if input.PaymentTerms != nil {
			po.PaymentTerms = *input.PaymentTerms
		}
		if input.Notes != nil {
			po.Notes = *input.Notes
		}
		if input.Items != nil {
			po.Items = buildItems(*input.Items)
			po.Recalculate()
			if err := tx.ReplaceItems(ctx, po.ID, po.Items); err != nil {
				return err
			}
			for _, item := range po.Items {
				if item.RestockRequestID == "" {
					continue
				}
				if err := s.inventory.MarkRestockProcessedTx(ctx, tx.Inventory(), item.RestockRequestID, po.ID); err != nil {
					return fmt.Errorf("restocking request %s: %w", item.RestockRequestID, err)
				}
			}
		}
		po.UpdatedAt = s.now()
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.audit(ctx, actor, "po:update", po.ID, nil)
	s.publish(ctx, po, "updated")
	return po, nil
}

// DeletePO removes a draft purchase order.
func (s *Service) DeletePO(ctx context.Context, actor shared.CurrentActor, id string) error {
	if err := shared.RequireRole(actor, managers...); err != nil {
		return err
	}
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(po, "delete", StatusDraft); err != nil {
			return err
		}
		return tx.DeletePO(ctx, id)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actor, "po:delete", id, map[string]any{"po_number": po.PONumber})
	s.publish(ctx, po, "deleted")
	return nil
}

// GetPO returns a purchase order with its lines.
func (s *Service) GetPO(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPOs lists purchase orders newest first and returns the total match count.
func (s *Service) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if !filter.CreatedFrom.IsZero() && !filter.CreatedTo.IsZero() && filter.CreatedTo.Before(filter.CreatedFrom) {
		return nil, 0, fmt.Errorf("%w: createdTo before createdFrom", shared.ErrValidation)
	}
	return s.repo.ListPOs(ctx, filter)
}

// SubmitPO sends a draft for approval: the approval chain is created and the
// order moves to pending_approval in one unit of work.
func (s *Service) SubmitPO(ctx context.Context, actor shared.CurrentActor, id string) (PurchaseOrder, Approval, error) {
	if err := shared.RequireRole(actor, managers...); err != nil {
		return PurchaseOrder{}, Approval{}, err
	}
	var (
		po       PurchaseOrder
		approval Approval
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(po, "submit", StatusDraft); err != nil {
			return err
		}
		now := s.now()
		approval = NewApproval(po.ID, s.cfg.ApprovalRoles, now)
		if err := po.transition(StatusPendingApproval, now); err != nil {
			return err
		}
		po.ApprovalID = approval.ID
		if err := tx.InsertApproval(ctx, approval); err != nil {
			return err
		}
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, Approval{}, err
	}
	s.audit(ctx, actor, "po:submit", po.ID, map[string]any{"approval_id": approval.ID})
	s.publish(ctx, po, "submitted")
	s.emit(ctx, notify.POSubmitted(po.ID, po.PONumber, s.cfg.ApprovalRoles, actor))
	return po, approval, nil
}

func (s *Service) audit(ctx context.Context, actor shared.CurrentActor, action, poID string, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, shared.AuditFromActor(actor, action, "purchase_order", poID, meta)); err != nil {
		s.logger.Warn("audit log failed", slog.String("action", action), slog.String("po_id", poID), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, po PurchaseOrder, kind string) {
	if s.feed == nil {
		return
	}
	change := changefeed.Change{
		Topic:  changefeed.TopicPurchaseOrders,
		ID:     po.ID,
		Kind:   kind,
		Status: string(po.Status),
		At:     s.now(),
	}
	if err := s.feed.Publish(ctx, change); err != nil {
		s.logger.Warn("change event not published", slog.String("po_id", po.ID), slog.Any("error", err))
	}
}

func (s *Service) emit(ctx context.Context, n notify.Notification) {
	if s.notifier != nil {
		s.notifier.Emit(ctx, n)
	}
}
