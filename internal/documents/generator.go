// Package documents renders purchase orders into PDF files kept in object storage.
package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-po/internal/procurement"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
	"github.com/odyssey-erp/odyssey-po/internal/storage"
)

// Document references one generated PDF.
type Document struct {
	ID          string    `json:"id"`
	POID        string    `json:"purchaseOrderId"`
	PONumber    string    `json:"poNumber"`
	Status      string    `json:"status"`
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// OrderSource loads purchase orders.
type OrderSource interface {
	GetPO(ctx context.Context, id string) (procurement.PurchaseOrder, error)
}

// ObjectStore persists binary artefacts.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (storage.Object, error)
}

// RepositoryPort records generated documents.
type RepositoryPort interface {
	Insert(ctx context.Context, doc Document) error
	Latest(ctx context.Context, poID string) (Document, error)
}

// Generator renders, stores and records purchase order documents.
type Generator struct {
	orders   OrderSource
	renderer *Renderer
	store    ObjectStore
	repo     RepositoryPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewGenerator wires the generator.
func NewGenerator(orders OrderSource, renderer *Renderer, store ObjectStore, repo RepositoryPort, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{orders: orders, renderer: renderer, store: store, repo: repo, logger: logger, now: time.Now}
}

// Printable reports whether a document may be issued for status.
func Printable(status procurement.POStatus) bool {
	switch status {
	case procurement.StatusApproved, procurement.StatusReceiving, procurement.StatusReceived:
		return true
	}
	return false
}

// ObjectKey is the storage key of a document generated at at.
func ObjectKey(po procurement.PurchaseOrder, at time.Time) string {
	return fmt.Sprintf("purchase-orders/%s/%s-%d.pdf", at.UTC().Format("2006/01"), po.PONumber, at.Unix())
}

// GeneratePO renders the current state of the order and stores it.
func (g *Generator) GeneratePO(ctx context.Context, poID string) (Document, error) {
	po, err := g.orders.GetPO(ctx, poID)
	if err != nil {
		return Document{}, err
	}
	if !Printable(po.Status) {
		return Document{}, fmt.Errorf("%w: purchase order %s is %s", shared.ErrConflict, po.PONumber, po.Status)
	}
	at := g.now().UTC()
	rendered, err := g.renderer.Render(ctx, po, at)
	if err != nil {
		return Document{}, fmt.Errorf("render %s: %w", po.PONumber, err)
	}
	obj, err := g.store.Put(ctx, ObjectKey(po, at), rendered.PDF, "application/pdf")
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ID:          uuid.NewString(),
		POID:        po.ID,
		PONumber:    po.PONumber,
		Status:      string(po.Status),
		Key:         obj.Key,
		URL:         obj.URL,
		Size:        obj.Size,
		GeneratedAt: at,
	}
	if err := g.repo.Insert(ctx, doc); err != nil {
		return Document{}, err
	}
	g.logger.Info("po document generated", slog.String("po_number", po.PONumber), slog.String("key", doc.Key))
	return doc, nil
}

// Latest returns the most recent document of an order.
func (g *Generator) Latest(ctx context.Context, poID string) (Document, error) {
	return g.repo.Latest(ctx, poID)
}

// Preview renders the order without storing anything.
func (g *Generator) Preview(ctx context.Context, poID string) (procurement.PurchaseOrder, []byte, error) {
	po, err := g.orders.GetPO(ctx, poID)
	if err != nil {
		return procurement.PurchaseOrder{}, nil, err
	}
	rendered, err := g.renderer.Render(ctx, po, g.now().UTC())
	if err != nil {
		return procurement.PurchaseOrder{}, nil, err
	}
	return po, rendered.PDF, nil
}
