package procurement

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-po/internal/changefeed"
	"github.com/odyssey-erp/odyssey-po/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// Handler exposes purchase order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	feed    changefeed.Feed
}

// NewHandler builds Handler instance. feed may be nil, in which case the
// stream endpoint is not mounted.
func NewHandler(logger *slog.Logger, service *Service, feed changefeed.Feed) *Handler {
	return &Handler{logger: logger, service: service, feed: feed}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPOs)
	r.Post("/", h.createPO)
	if h.feed != nil {
		r.Get("/stream", changefeed.StreamHandler(h.feed, changefeed.TopicPurchaseOrders, h.logger))
	}
	r.Get("/receivings/{rid}", h.getReceiving)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getPO)
		r.Patch("/", h.updatePO)
		r.Delete("/", h.deletePO)
		r.Post("/submit", h.submitPO)
		r.Get("/approval", h.getApproval)
		r.Post("/approvals/{approvalId}", h.processApproval)
		r.Get("/receivings", h.listReceivings)
		r.Post("/receivings", h.receive)
	})
}

type approvalRequest struct {
	Action string `json:"action" validate:"required"`
	Notes  string `json:"notes"`
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	p := shared.NewPagination(page, perPage, 0)
	filter := ListFilter{SupplierID: q.Get("supplierId"), Limit: p.PerPage, Offset: p.Offset()}

	verr := &shared.ValidationError{}
	if raw := q.Get("status"); raw != "" {
		status, ok := NormalizeStatus(raw)
		if !ok {
			verr.Add("status", "is not a known status")
		}
		filter.Status = status
	}
	for _, f := range []struct {
		name string
		dst  *time.Time
	}{{"createdFrom", &filter.CreatedFrom}, {"createdTo", &filter.CreatedTo}} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			verr.Add(f.name, "must be RFC3339")
		}
		*f.dst = t
	}
	if err := verr.Err(); err != nil {
		httpx.RespondError(w, err)
		return
	}

	items, total, err := h.service.ListPOs(r.Context(), filter)
	if err != nil {
		h.fail(w, "list purchase orders", err)
		return
	}
	httpx.Page(w, httpx.NonNil(items), shared.NewPagination(p.Page, filter.Limit, total))
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req CreatePOInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	po, err := h.service.CreatePO(r.Context(), actor, req)
	if err != nil {
		h.fail(w, "create purchase order", err)
		return
	}
	httpx.OK(w, http.StatusCreated, po)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetPO(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get purchase order", err)
		return
	}
	httpx.OK(w, http.StatusOK, po)
}

// updatePO drops immutable keys before strict decoding, so clients may send
// back a full order document.
func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload, err := json.Marshal(StripProtected(raw))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var req UpdatePOInput
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	po, err := h.service.UpdatePO(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "update purchase order", err)
		return
	}
	httpx.OK(w, http.StatusOK, po)
}

func (h *Handler) deletePO(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeletePO(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete purchase order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitPO(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	po, approval, err := h.service.SubmitPO(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "submit purchase order", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"purchaseOrder": po, "approval": approval})
}

func (h *Handler) getApproval(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetPO(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get approval", err)
		return
	}
	if po.ApprovalID == "" {
		httpx.RespondError(w, ErrApprovalNotFound)
		return
	}
	approval, err := h.service.GetApproval(r.Context(), po.ApprovalID)
	if err != nil {
		h.fail(w, "get approval", err)
		return
	}
	httpx.OK(w, http.StatusOK, approval)
}

func (h *Handler) processApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	action, err := ParseApprovalAction(req.Action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	res, err := h.service.ProcessApprovalStep(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "approvalId"), action, req.Notes)
	if err != nil {
		h.fail(w, "process approval", err)
		return
	}
	httpx.OK(w, http.StatusOK, res)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req ReceiveInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.POID = chi.URLParam(r, "id")
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	actor, _ := shared.ActorFromContext(r.Context())
	res, err := h.service.ProcessReceiving(r.Context(), actor, req)
	if err != nil {
		h.fail(w, "process receiving", err)
		return
	}
	httpx.OK(w, http.StatusCreated, res)
}

func (h *Handler) listReceivings(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListReceivingTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "list receivings", err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.NonNil(items))
}

func (h *Handler) getReceiving(w http.ResponseWriter, r *http.Request) {
	rt, err := h.service.GetReceivingTransaction(r.Context(), chi.URLParam(r, "rid"))
	if err != nil {
		h.fail(w, "get receiving", err)
		return
	}
	httpx.OK(w, http.StatusOK, rt)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
