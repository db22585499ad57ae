package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-po/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates the audit handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Get("/export.csv", h.export)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	body, err := h.service.ExportCSV(r.Context(), filters)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-%s.csv", time.Now().UTC().Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// filters enforces the role check and parses query parameters. Dates accept
// RFC3339 or YYYY-MM-DD; a bare "to" date includes the whole day.
func (h *Handler) filters(w http.ResponseWriter, r *http.Request) (TimelineFilters, bool) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := shared.RequireRole(actor, shared.RoleAdmin, shared.RoleInventoryManager); err != nil {
		httpx.RespondError(w, err)
		return TimelineFilters{}, false
	}
	q := r.URL.Query()
	f := TimelineFilters{
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		EntityID: q.Get("entityId"),
		Action:   q.Get("action"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	verr := &shared.ValidationError{}
	if raw := q.Get("from"); raw != "" {
		t, _, err := parseDate(raw)
		if err != nil {
			verr.Add("from", "must be RFC3339 or YYYY-MM-DD")
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, dateOnly, err := parseDate(raw)
		if err != nil {
			verr.Add("to", "must be RFC3339 or YYYY-MM-DD")
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		f.To = t
	}
	if err := verr.Err(); err != nil {
		httpx.RespondError(w, err)
		return TimelineFilters{}, false
	}
	return f, true
}

func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	return t, err == nil, err
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error("audit timeline", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
