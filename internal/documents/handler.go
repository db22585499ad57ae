package documents

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-po/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// Enqueuer schedules asynchronous document generation.
type Enqueuer interface {
	EnqueuePODocument(ctx context.Context, poID string) error
}

// Handler exposes purchase order documents.
type Handler struct {
	logger    *slog.Logger
	generator *Generator
	jobs      Enqueuer
}

// NewHandler creates a document handler.
func NewHandler(logger *slog.Logger, generator *Generator, jobs Enqueuer) *Handler {
	return &Handler{logger: logger, generator: generator, jobs: jobs}
}

// MountRoutes registers document routes keyed by purchase order id.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/document", h.latest)
	r.Post("/{id}/document", h.regenerate)
	r.Get("/{id}/document/preview", h.preview)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	doc, err := h.generator.Latest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, doc)
}

func (h *Handler) regenerate(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := shared.RequireRole(actor, shared.RoleInventoryManager, shared.RoleAdmin); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	po, err := h.generator.orders.GetPO(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !Printable(po.Status) {
		httpx.RespondError(w, fmt.Errorf("%w: purchase order %s is %s", shared.ErrConflict, po.PONumber, po.Status))
		return
	}
	if err := h.jobs.EnqueuePODocument(r.Context(), id); err != nil {
		h.logger.Error("enqueue po document", slog.String("po_id", id), slog.Any("error", err))
		httpx.Fail(w, http.StatusServiceUnavailable, "document queue unavailable")
		return
	}
	httpx.OK(w, http.StatusAccepted, map[string]string{"purchaseOrderId": id})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	po, pdf, err := h.generator.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if shared.IsDomainError(err) {
			httpx.RespondError(w, err)
			return
		}
		h.logger.Error("render po preview", slog.Any("error", err))
		httpx.Fail(w, http.StatusBadGateway, "document renderer unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.pdf", po.PONumber))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
