package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestRespondErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("po: %w", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("po: %w", shared.ErrConflict), http.StatusConflict},
		{fmt.Errorf("po: %w", shared.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("po: %w", shared.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("dial tcp: refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)
		env := decode(t, rr)
		require.False(t, env.Success)
		require.NotEmpty(t, env.Error)
	}
}

func TestRespondErrorListsFields(t *testing.T) {
	verr := &shared.ValidationError{}
	verr.Add("supplierId", "is required")
	verr.Add("items", "at least one item is required")

	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("create: %w", verr))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	env := decode(t, rr)
	require.Len(t, env.Fields, 2)
	require.Equal(t, "supplierId", env.Fields[0].Field)
}
