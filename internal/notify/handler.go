package notify

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-po/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// Handler exposes notification listing for the signed-in role.
type Handler struct {
	logger  *slog.Logger
	emitter *Emitter
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, emitter *Emitter) *Handler {
	return &Handler{logger: logger, emitter: emitter}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/{id}/read", h.markRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	filter := ListFilter{Role: actor.Role}
	if unread, err := strconv.ParseBool(r.URL.Query().Get("unread")); err == nil {
		filter.UnreadOnly = unread
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	items, err := h.emitter.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list notifications", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Notification{}
	}
	httpx.OK(w, http.StatusOK, items)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.emitter.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]bool{"read": true})
}
