package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

type memRepo struct {
	rows       []TimelineRow
	lastFilter TimelineFilters
	lastOffset int
	lastLimit  int
}

func (m *memRepo) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	m.lastFilter, m.lastOffset, m.lastLimit = f, offset, limit
	var out []TimelineRow
	for _, r := range m.rows {
		if f.EntityID != "" && r.EntityID != f.EntityID {
			continue
		}
		out = append(out, r)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func seed(n int) *memRepo {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &memRepo{}
	for i := 0; i < n; i++ {
		repo.rows = append(repo.rows, TimelineRow{
			ID:       int64(n - i),
			At:       base.Add(-time.Duration(i) * time.Minute),
			ActorID:  "u-1",
			Action:   "po.approved",
			Entity:   "purchase_order",
			EntityID: "po-1",
			Meta:     json.RawMessage(`{"notes":"ok"}`),
		})
	}
	return repo
}

func TestTimelinePaging(t *testing.T) {
	repo := seed(25)
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 10, Page: 2})
	require.NoError(t, err)
	require.Len(t, res.Rows, 10)
	require.Equal(t, 10, repo.lastOffset)
	require.Equal(t, 11, repo.lastLimit)
	require.Equal(t, PagingInfo{Page: 2, PageSize: 10, HasNext: true, PrevPage: 1, NextPage: 3}, res.Paging)

	res, err = svc.Timeline(context.Background(), TimelineFilters{PageSize: 10, Page: 3})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	require.False(t, res.Paging.HasNext)

	res, err = svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 50, res.Paging.PageSize)
	require.Equal(t, 1, res.Paging.Page)
}

func TestTimelineRejectsInvertedRange(t *testing.T) {
	svc := NewService(seed(1))
	now := time.Now()
	_, err := svc.Timeline(context.Background(), TimelineFilters{From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestExportCSV(t *testing.T) {
	svc := NewService(seed(2))
	body, err := svc.ExportCSV(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "id,at,actor_id,actor_role,action,entity,entity_id,meta", lines[0])
	require.Equal(t, `2,2026-03-14T09:00:00Z,u-1,,po.approved,purchase_order,po-1,"{""notes"":""ok""}"`, lines[1])
}

func TestWhereClause(t *testing.T) {
	where, args := whereClause(TimelineFilters{})
	require.Empty(t, where)
	require.Empty(t, args)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	where, args = whereClause(TimelineFilters{From: from, Entity: "purchase_order", EntityID: " po-1 "})
	require.Equal(t, "\nWHERE occurred_at >= $1 AND entity = $2 AND entity_id = $3", where)
	require.Equal(t, []any{from, "purchase_order", "po-1"}, args)
}

func newRouter(repo Repository) http.Handler {
	r := chi.NewRouter()
	r.Route("/audit", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo)).MountRoutes)
	return r
}

func request(method, target string, role shared.Role) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if role != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.CurrentActor{ID: "u-1", Name: "Rina", Role: role}))
	}
	return req
}

func TestHandlerTimeline(t *testing.T) {
	repo := seed(3)
	router := newRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, request(http.MethodGet, "/audit/?entityId=po-1&to=2026-03-14", shared.RoleAdmin))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"entityId":"po-1"`)
	require.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), repo.lastFilter.To)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, request(http.MethodGet, "/audit/", shared.RoleCashier))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, request(http.MethodGet, "/audit/?from=yesterday", shared.RoleInventoryManager))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"field":"from"`)
}

func TestHandlerExport(t *testing.T) {
	router := newRouter(seed(1))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, request(http.MethodGet, "/audit/export.csv", shared.RoleAdmin))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rr.Body.String(), "id,at,"))
}
