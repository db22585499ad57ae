package procurement

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   string              `json:"error"`
	Fields  []shared.FieldError `json:"fields"`
}

func newTestRouter(f *fixture, actor shared.CurrentActor) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, nil)
	r.Route("/api/purchase-orders", h.MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

const createBody = `{"supplierId":"sup-1","supplierName":"Sumber Makmur","deliveryDate":"2026-03-20T00:00:00Z",
"items":[{"productId":"p-rice","productName":"Rice","variantId":"v-rice-5kg","quantity":10,"unitPrice":"5"}]}`

func TestHandlerCreateAndUpdateIgnoresProtectedFields(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f, manager)

	code, env := do(t, router, http.MethodPost, "/api/purchase-orders", createBody)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, env.Success)
	var po PurchaseOrder
	require.NoError(t, json.Unmarshal(env.Data, &po))
	require.Equal(t, "PO-2603-0001", po.PONumber)

	code, env = do(t, router, http.MethodPatch, "/api/purchase-orders/"+po.ID,
		`{"poNumber":"PO-0000-0000","status":"approved","createdBy":{"id":"evil"},"notes":"call on arrival"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	var updated PurchaseOrder
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	require.Equal(t, po.PONumber, updated.PONumber)
	require.Equal(t, StatusDraft, updated.Status)
	require.Equal(t, "u-mgr", updated.CreatedBy.ID)
	require.Equal(t, "call on arrival", updated.Notes)
}

func TestHandlerValidationReturnsFields(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f, manager)

	code, env := do(t, router, http.MethodPost, "/api/purchase-orders", `{"items":[]}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.False(t, env.Success)
	fields := make([]string, 0, len(env.Fields))
	for _, fe := range env.Fields {
		fields = append(fields, fe.Field)
	}
	require.ElementsMatch(t, []string{"supplierId", "supplierName", "items", "deliveryDate"}, fields)
}

func TestHandlerFlowThroughReceiving(t *testing.T) {
	f := newFixture()
	po := f.approvedOrder(10)
	router := newTestRouter(f, manager)

	code, env := do(t, router, http.MethodPost, "/api/purchase-orders/"+po.ID+"/receivings",
		`{"delivery":{"drNumber":"DR-7"},"lines":[{"lineId":"`+po.Items[0].ID+`","receivedQuantity":10}]}`)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var res ReceiveResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Equal(t, StatusReceived, res.Order.Status)

	code, env = do(t, router, http.MethodGet, "/api/purchase-orders/receivings/"+res.Transaction.ID, "")
	require.Equal(t, http.StatusOK, code)
	var rt ReceivingTransaction
	require.NoError(t, json.Unmarshal(env.Data, &rt))
	require.Equal(t, "DR-7", rt.Delivery.DRNumber)

	code, _ = do(t, router, http.MethodGet, "/api/purchase-orders/"+po.ID+"/approval", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, router, http.MethodDelete, "/api/purchase-orders/"+po.ID, "")
	require.Equal(t, http.StatusConflict, code)
}

func TestHandlerApprovalForbiddenForCashier(t *testing.T) {
	f := newFixture()
	po, approval := submitted(t, f)
	router := newTestRouter(f, cashier)

	code, _ := do(t, router, http.MethodPost, "/api/purchase-orders/"+po.ID+"/approvals/"+approval.ID, `{"action":"approve"}`)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, router, http.MethodGet, "/api/purchase-orders/missing", "")
	require.Equal(t, http.StatusNotFound, code)
}
