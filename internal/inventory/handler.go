package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-po/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	snapshots *SnapshotService
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, snapshots *SnapshotService) *Handler {
	return &Handler{logger: logger, service: service, snapshots: snapshots}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/variants", h.listVariants)
	r.Get("/variants/{id}", h.getVariant)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products/{id}/recompute", h.recompute)
	r.Get("/movements", h.listMovements)
	r.Post("/outbound", h.postOutbound)
	r.Post("/adjustments", h.postAdjustment)
	r.Post("/replenish", h.replenish)
	r.Get("/restock-requests", h.listRestock)
	r.Post("/restock-requests", h.createRestock)
	r.Post("/restock-requests/{id}/acknowledge", h.acknowledgeRestock)
	r.Post("/restock-requests/{id}/dismiss", h.dismissRestock)
	r.Get("/snapshot", h.snapshot)
}

type outboundRequest struct {
	VariantID string `json:"variantId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
	RefModule string `json:"refModule"`
	RefID     string `json:"refId"`
	Reason    string `json:"reason"`
}

type adjustmentRequest struct {
	VariantID string `json:"variantId" validate:"required"`
	Delta     int64  `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

type dismissRequest struct {
	Note string `json:"note"`
}

func (h *Handler) listVariants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := VariantFilter{
		ProductID:    q.Get("productId"),
		Warehouse:    q.Get("warehouse"),
		BelowRestock: q.Get("belowRestock") == "true",
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	items, err := h.service.ListVariants(r.Context(), filter)
	if err != nil {
		h.fail(w, "list variants", err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.NonNil(items))
}

func (h *Handler) getVariant(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVariant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get variant", err)
		return
	}
	httpx.OK(w, http.StatusOK, v)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	httpx.OK(w, http.StatusOK, p)
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := shared.RequireRole(actor, shared.RoleInventoryManager, shared.RoleAdmin); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stats, err := h.service.RecomputeProductStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "recompute product", err)
		return
	}
	httpx.OK(w, http.StatusOK, stats)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{VariantID: q.Get("variantId"), ProductID: q.Get("productId"), RefID: q.Get("refId")}
	verr := &shared.ValidationError{}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			verr.Add("from", "must be RFC3339")
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			verr.Add("to", "must be RFC3339")
		}
		filter.To = t
	}
	if err := verr.Err(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	items, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.NonNil(items))
}

func (h *Handler) postOutbound(w http.ResponseWriter, r *http.Request) {
	var req outboundRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	m, err := h.service.PostOutbound(r.Context(), OutboundInput{
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		RefModule: req.RefModule,
		RefID:     req.RefID,
		Reason:    req.Reason,
		Actor:     actor,
	})
	if err != nil {
		h.fail(w, "post outbound", err)
		return
	}
	httpx.OK(w, http.StatusCreated, m)
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	m, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{VariantID: req.VariantID, Delta: req.Delta, Reason: req.Reason, Actor: actor})
	if err != nil {
		h.fail(w, "post adjustment", err)
		return
	}
	httpx.OK(w, http.StatusCreated, m)
}

func (h *Handler) replenish(w http.ResponseWriter, r *http.Request) {
	var req ReplenishInput
	if !httpx.Bind(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	res, err := h.service.ReplenishSafetyStock(r.Context(), actor, req)
	if err != nil {
		h.fail(w, "replenish", err)
		return
	}
	httpx.OK(w, http.StatusOK, res)
}

func (h *Handler) listRestock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := RestockFilter{
		Status:    RestockStatus(q.Get("status")),
		ProductID: q.Get("productId"),
		Priority:  RestockPriority(q.Get("priority")),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	items, err := h.service.ListRestockRequests(r.Context(), filter)
	if err != nil {
		h.fail(w, "list restock requests", err)
		return
	}
	if q.Get("grouped") == "true" {
		httpx.OK(w, http.StatusOK, httpx.NonNil(GroupRestockRequests(items)))
		return
	}
	httpx.OK(w, http.StatusOK, httpx.NonNil(items))
}

func (h *Handler) createRestock(w http.ResponseWriter, r *http.Request) {
	var req CreateRestockInput
	if !httpx.Bind(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	created, err := h.service.CreateRestockRequest(r.Context(), actor, req)
	if err != nil {
		h.fail(w, "create restock request", err)
		return
	}
	httpx.OK(w, http.StatusCreated, created)
}

func (h *Handler) acknowledgeRestock(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.AcknowledgeRestockRequest(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "acknowledge restock request", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]string{"status": string(RestockAcknowledged)})
}

func (h *Handler) dismissRestock(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if r.ContentLength > 0 && !httpx.Bind(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DismissRestockRequest(r.Context(), actor, chi.URLParam(r, "id"), req.Note); err != nil {
		h.fail(w, "dismiss restock request", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]string{"status": string(RestockDismissed)})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Current(r.Context())
	if err != nil {
		h.fail(w, "inventory snapshot", err)
		return
	}
	httpx.OK(w, http.StatusOK, snap)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
