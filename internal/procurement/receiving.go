package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

const receivingModule = "receiving"

// ReceiveLineInput reports what arrived for one order line. LineID is
// preferred; ProductID (and VariantID) identify the line otherwise.
type ReceiveLineInput struct {
	LineID           string          `json:"lineId"`
	ProductID        string          `json:"productId"`
	VariantID        string          `json:"variantId"`
	ReceivedQuantity int64           `json:"receivedQuantity" validate:"gte=0"`
	RejectedQuantity int64           `json:"rejectedQuantity" validate:"gte=0"`
	RejectionReason  string          `json:"rejectionReason"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	PhotoURL         string          `json:"photoUrl"`
	Notes            string          `json:"notes"`
}

// ReceiveInput is one receiving session against a purchase order.
type ReceiveInput struct {
	POID           string             `json:"-"`
	IdempotencyKey string             `json:"idempotencyKey"`
	Delivery       DeliveryInfo       `json:"delivery"`
	Lines          []ReceiveLineInput `json:"lines" validate:"min=1,dive"`
}

// ReceiveResult is the committed outcome of a receiving session.
type ReceiveResult struct {
	Order       PurchaseOrder        `json:"purchaseOrder"`
	Transaction ReceivingTransaction `json:"receivingTransaction"`
}

type plannedLine struct {
	index    int
	item     int
	input    ReceiveLineInput
	variant  inventory.Variant
	accepted int64
	rejected int64
}

// ProcessReceiving reconciles delivered goods against an approved order.
// Every line is validated before anything is written; stock, order lines,
// order status and the receiving record commit in one unit of work.
func (s *Service) ProcessReceiving(ctx context.Context, actor shared.CurrentActor, input ReceiveInput) (ReceiveResult, error) {
	if err := shared.RequireRole(actor, managers...); err != nil {
		return ReceiveResult{}, err
	}
	po, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return ReceiveResult{}, err
	}
	if !Receivable(po.Status) {
		s.metrics.ReceivingProcessed("rejected")
		return ReceiveResult{}, fmt.Errorf("%w: cannot receive purchase order in status %s", ErrInvalidTransition, po.Status)
	}
	plan, err := planReceiving(po, input)
	if err != nil {
		s.metrics.ReceivingProcessed("invalid")
		return ReceiveResult{}, err
	}
	for i := range plan {
		if plan[i].accepted == 0 {
			continue
		}
		item := po.Items[plan[i].item]
		variantID := item.VariantID
		if plan[i].input.VariantID != "" {
			variantID = plan[i].input.VariantID
		}
		v, err := s.resolver.Resolve(ctx, inventory.ResolveRequest{
			Line:        plan[i].index,
			VariantID:   variantID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Unit:        item.Unit,
		})
		if err != nil {
			s.metrics.ReceivingProcessed("unresolved")
			return ReceiveResult{}, err
		}
		plan[i].variant = v
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, receivingModule); err != nil {
			s.metrics.ReceivingProcessed("duplicate")
			return ReceiveResult{}, err
		}
	}

	var (
		result    ReceiveResult
		movements []inventory.StockMovement
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements = movements[:0]
		current, err := tx.GetPOForUpdate(ctx, input.POID)
		if err != nil {
			return err
		}
		if !Receivable(current.Status) {
			return fmt.Errorf("%w: cannot receive purchase order in status %s", ErrInvalidTransition, current.Status)
		}
		// re-plan against the locked row; a concurrent session may have landed
		lines, err := planReceiving(current, input)
		if err != nil {
			return err
		}
		now := s.now()
		rt := ReceivingTransaction{
			ID:         uuid.NewString(),
			POID:       current.ID,
			PONumber:   current.PONumber,
			SessionKey: key,
			Delivery:   input.Delivery,
			ReceivedBy: RefOf(actor),
			CreatedAt:  now,
		}
		if rt.Delivery.DeliveredAt.IsZero() {
			rt.Delivery.DeliveredAt = now
		}
		summary := ReceivingSummary{AcceptedValue: decimal.Zero}
		for i, pl := range lines {
			item := &current.Items[pl.item]
			received := ReceivedLine{
				LineID:           item.ID,
				ProductID:        item.ProductID,
				ProductName:      item.ProductName,
				VariantID:        item.VariantID,
				OrderedQuantity:  item.Quantity,
				ExpectedQuantity: item.Remaining(),
				AcceptedQuantity: pl.accepted,
				RejectedQuantity: pl.rejected,
				RejectionReason:  strings.TrimSpace(pl.input.RejectionReason),
				UnitPrice:        item.UnitPrice,
				PhotoURL:         pl.input.PhotoURL,
				Notes:            pl.input.Notes,
			}
			if !pl.input.UnitPrice.IsZero() {
				received.UnitPrice = pl.input.UnitPrice
			}
			if pl.accepted > 0 {
				variant := plan[i].variant
				mv, err := s.inventory.PostInboundTx(ctx, tx.Inventory(), inventory.InboundInput{
					VariantID:     variant.ID,
					Quantity:      pl.accepted,
					RefModule:     "purchase_order",
					RefID:         current.ID,
					ReceivingTxID: rt.ID,
					Reason:        "PO " + current.PONumber + " receiving",
					Actor:         actor,
				})
				if err != nil {
					return fmt.Errorf("line %d (%s): %w", pl.index+1, item.ProductName, err)
				}
				movements = append(movements, mv)
				received.VariantID = variant.ID
				received.MovementID = mv.ID
				item.ReceivedQuantity += pl.accepted
				if err := tx.SetItemReceived(ctx, current.ID, item.ID, item.ReceivedQuantity); err != nil {
					return err
				}
				if item.RestockRequestID != "" && item.FullyReceived() {
					if err := s.inventory.MarkRestockProcessedTx(ctx, tx.Inventory(), item.RestockRequestID, current.ID); err != nil {
						return fmt.Errorf("restocking request %s: %w", item.RestockRequestID, err)
					}
				}
			}
			summary.TotalAccepted += pl.accepted
			summary.TotalRejected += pl.rejected
			summary.AcceptedValue = summary.AcceptedValue.Add(received.UnitPrice.Mul(decimal.NewFromInt(pl.accepted)))
			summary.LinesReceived++
			rt.Lines = append(rt.Lines, received)
		}

		summary.FullyReceived = current.FullyReceived()
		rt.Summary = summary
		next, receiving := StatusReceiving, ReceivingPartial
		if summary.FullyReceived {
			next, receiving = StatusReceived, ReceivingCompleted
		}
		if err := current.transition(next, now); err != nil {
			return err
		}
		current.ReceivingStatus = receiving
		if err := tx.UpdatePO(ctx, current); err != nil {
			return err
		}
		if err := tx.InsertReceivingTransaction(ctx, rt); err != nil {
			return err
		}
		result = ReceiveResult{Order: current, Transaction: rt}
		return nil
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("idempotency key not released", slog.String("key", key), slog.Any("error", derr))
			}
		}
		s.metrics.ReceivingProcessed("failed")
		return ReceiveResult{}, err
	}

	s.inventory.Committed(ctx, movements...)
	outcome := "partial"
	if result.Transaction.Summary.FullyReceived {
		outcome = "completed"
	}
	s.metrics.ReceivingProcessed(outcome)
	s.audit(ctx, actor, "po:receive", result.Order.ID, map[string]any{
		"receiving_id": result.Transaction.ID,
		"accepted":     result.Transaction.Summary.TotalAccepted,
		"rejected":     result.Transaction.Summary.TotalRejected,
	})
	s.publish(ctx, result.Order, "received")
	s.emit(ctx, notify.ReceivingCompleted(result.Order.ID, result.Order.PONumber, result.Transaction.ID,
		result.Transaction.Summary.TotalAccepted, result.Transaction.Summary.TotalRejected,
		result.Transaction.Summary.FullyReceived, actor))
	if s.jobs != nil {
		if err := s.jobs.EnqueueInventorySnapshot(ctx); err != nil {
			s.logger.Warn("inventory snapshot job not enqueued", slog.String("po_id", result.Order.ID), slog.Any("error", err))
		}
	}
	return result, nil
}

// planReceiving validates every input line against po and maps it onto an
// order line. All violations are collected before returning.
func planReceiving(po PurchaseOrder, input ReceiveInput) ([]plannedLine, error) {
	verr := &shared.ValidationError{}
	if err := shared.ValidateStruct(input, verr); err != nil {
		return nil, err
	}
	if verr.HasErrors() {
		return nil, verr.Err()
	}
	var (
		plan     []plannedLine
		seen     = make(map[int]int)
		hasUnits bool
	)
	for i, line := range input.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		idx, err := matchLine(po, line)
		if err != nil {
			verr.Add(field, err.Error())
			continue
		}
		if prev, dup := seen[idx]; dup {
			verr.Add(field, fmt.Sprintf("duplicates lines[%d]", prev))
			continue
		}
		seen[idx] = i
		item := po.Items[idx]
		if line.RejectedQuantity > 0 && strings.TrimSpace(line.RejectionReason) == "" {
			verr.Add(field+".rejectionReason", "is required when units are rejected")
		}
		// Dibandingkan lewat pengurangan agar jumlah besar tidak overflow.
		rem := item.Remaining()
		if line.ReceivedQuantity > rem || line.RejectedQuantity > rem-line.ReceivedQuantity {
			verr.Add(field, fmt.Sprintf("%s: accepted %d plus rejected %d exceeds remaining %d of %d ordered",
				item.ProductName, line.ReceivedQuantity, line.RejectedQuantity, rem, item.Quantity))
		} else if line.ReceivedQuantity+line.RejectedQuantity > 0 {
			hasUnits = true
		}
		plan = append(plan, plannedLine{
			index:    i,
			item:     idx,
			input:    line,
			accepted: line.ReceivedQuantity,
			rejected: line.RejectedQuantity,
		})
	}
	if verr.HasErrors() {
		return nil, verr.Err()
	}
	if !hasUnits {
		verr.Add("lines", "at least one line must receive or reject units")
		return nil, verr.Err()
	}
	return plan, nil
}

func matchLine(po PurchaseOrder, line ReceiveLineInput) (int, error) {
	if id := strings.TrimSpace(line.LineID); id != "" {
		for i, item := range po.Items {
			if item.ID == id {
				return i, nil
			}
		}
		return -1, fmt.Errorf("line %s is not on purchase order %s", id, po.PONumber)
	}
	productID := strings.TrimSpace(line.ProductID)
	if productID == "" {
		return -1, errors.New("lineId or productId is required")
	}
	variantID := strings.TrimSpace(line.VariantID)
	match := -1
	for i, item := range po.Items {
		if item.ProductID != productID {
			continue
		}
		if variantID != "" && item.VariantID != "" && item.VariantID != variantID {
			continue
		}
		if match >= 0 {
			return -1, fmt.Errorf("product %s matches several lines, lineId is required", productID)
		}
		match = i
	}
	if match < 0 {
		return -1, fmt.Errorf("product %s is not on purchase order %s", productID, po.PONumber)
	}
	return match, nil
}

// ListReceivingTransactions returns the receiving history of an order.
func (s *Service) ListReceivingTransactions(ctx context.Context, poID string) ([]ReceivingTransaction, error) {
	if _, err := s.repo.GetPO(ctx, poID); err != nil {
		return nil, err
	}
	return s.repo.ListReceivingTransactions(ctx, poID)
}

// GetReceivingTransaction returns one receiving record.
func (s *Service) GetReceivingTransaction(ctx context.Context, id string) (ReceivingTransaction, error) {
	return s.repo.GetReceivingTransaction(ctx, id)
}
