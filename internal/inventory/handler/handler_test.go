package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rentora/rentora-backend/internal/inventory/handler"
	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/config"
	"github.com/rentora/rentora-backend/pkg/httputil"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/principal"
	"github.com/rentora/rentora-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *httputil.ErrorBody `json:"error"`
	Meta    *httputil.Meta      `json:"meta"`
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	log := logger.Nop()
	svcs := service.NewServices(service.NewEngine(db, log))
	verifier := principal.NewVerifier(&config.JWTConfig{Secret: "test-secret", TrustGatewayHeaders: true})

	r := chi.NewRouter()
	r.Use(verifier.Middleware)
	r.Route("/api/v1/inventory", handler.NewHandlers(svcs, log).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, authed bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := testutil.NewHTTPRequest(method, "/api/v1/inventory"+path, body)
	if authed {
		testutil.WithUserHeaders(req, "u-1", "desk@rentora.test")
	}
	rr := testutil.ExecuteRequest(h, req)
	var env envelope
	if rr.Body.Len() > 0 {
		testutil.ParseJSONBody(t, rr, &env)
	}
	return rr, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func seedItem(t *testing.T, h http.Handler, qty int) (categoryID string, item service.ItemDetail) {
	t.Helper()
	rr, env := do(t, h, http.MethodPost, "/categories", map[string]any{"name": "Lighting"}, false)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	c := decode[repository.Category](t, env)

	rr, env = do(t, h, http.MethodPost, "/items", map[string]any{
		"category_id":      c.ID,
		"name":             "Spotlight",
		"model":            "SL-200",
		"location":         "Bay 4",
		"initial_quantity": qty,
	}, false)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return c.ID, decode[service.ItemDetail](t, env)
}

func TestItemsAndQuantity(t *testing.T) {
	h := newRouter(t)
	_, item := seedItem(t, h, 3)
	assert.Equal(t, 3, item.Available)

	rr, env := do(t, h, http.MethodPut, "/items/"+item.ID+"/quantity", map[string]any{"quantity": 5}, false)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, 5, decode[service.ItemDetail](t, env).Available)

	rr, env = do(t, h, http.MethodGet, "/items/"+item.ID+"/units", nil, false)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Len(t, decode[[]repository.Unit](t, env), 5)

	rr, env = do(t, h, http.MethodGet, "/items?search=spot", nil, false)
	testutil.AssertStatus(t, rr, http.StatusOK)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 1, env.Meta.Total)

	rr, env = do(t, h, http.MethodPost, "/items/availability", map[string]any{"item_ids": []string{item.ID}}, false)
	testutil.AssertStatus(t, rr, http.StatusOK)
	summaries := decode[[]repository.ItemSummary](t, env)
	require.Len(t, summaries, 1)
	assert.Equal(t, 5, summaries[0].Available)
}

func TestItemValidation(t *testing.T) {
	h := newRouter(t)
	categoryID, item := seedItem(t, h, 1)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad id", http.MethodGet, "/items/not-a-uuid", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown item", http.MethodGet, "/items/0190f0aa-0000-7000-8000-000000000000", nil, http.StatusNotFound, "NOT_FOUND"},
		{"zero initial quantity", http.MethodPost, "/items", map[string]any{"category_id": categoryID, "name": "X", "initial_quantity": 0}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative quantity", http.MethodPut, "/items/" + item.ID + "/quantity", map[string]any{"quantity": -1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing quantity", http.MethodPut, "/items/" + item.ID + "/quantity", map[string]any{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"manual rent", http.MethodPost, "/items/" + item.ID + "/units", map[string]any{"serial_number": "S-1", "barcode": "B-1", "status": "rented"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := do(t, h, tt.method, tt.path, tt.body, false)
			testutil.AssertStatus(t, rr, tt.status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestAllocationFlow(t *testing.T) {
	h := newRouter(t)
	_, item := seedItem(t, h, 2)
	body := map[string]any{
		"item_id":  item.ID,
		"quantity": 2,
		"consumer": map[string]string{"type": "rental", "ref": "R-55"},
	}

	rr, _ := do(t, h, http.MethodPost, "/allocations", body, false)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr, env := do(t, h, http.MethodPost, "/allocations", body, true)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	alloc := decode[service.AllocationResult](t, env)
	require.Len(t, alloc.Units, 2)
	assert.Equal(t, "desk@rentora.test", alloc.Allocation.AllocatedBy)

	body["quantity"] = 1
	rr, env = do(t, h, http.MethodPost, "/allocations", body, true)
	testutil.AssertStatus(t, rr, http.StatusConflict)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)

	rr, env = do(t, h, http.MethodGet, "/scan/"+alloc.Units[0].Barcode, nil, true)
	testutil.AssertStatus(t, rr, http.StatusOK)
	snap := decode[repository.UnitSnapshot](t, env)
	assert.Equal(t, repository.UnitRented, snap.Status)
	assert.Equal(t, "Lighting", snap.Category)

	rr, env = do(t, h, http.MethodGet, "/allocations?consumer_type=rental&consumer_ref=R-55&active=true", nil, true)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Len(t, decode[[]repository.Allocation](t, env), 1)

	rr, env = do(t, h, http.MethodPost, "/allocations/release", map[string]any{"unit_ids": []string{alloc.Units[0].ID}}, true)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Len(t, decode[service.ReleaseResult](t, env).Released, 1)

	rr, env = do(t, h, http.MethodPost, "/allocations/release-consumer", map[string]any{"consumer": map[string]string{"type": "rental", "ref": "R-55"}}, true)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Len(t, decode[service.ReleaseResult](t, env).Released, 1)

	rr, env = do(t, h, http.MethodGet, "/allocations/"+alloc.Allocation.ID, nil, true)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.NotNil(t, decode[repository.Allocation](t, env).ReleasedAt)

	rr, _ = do(t, h, http.MethodGet, "/scan/"+alloc.Units[0].Barcode, nil, false)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestUnitStatusAndDelete(t *testing.T) {
	h := newRouter(t)
	_, item := seedItem(t, h, 2)

	_, env := do(t, h, http.MethodGet, "/items/"+item.ID+"/units", nil, false)
	units := decode[[]repository.Unit](t, env)

	rr, env := do(t, h, http.MethodPut, "/units/"+units[0].ID+"/status", map[string]any{"status": "retired"}, false)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, repository.UnitRetired, decode[repository.Unit](t, env).Status)

	rr, env = do(t, h, http.MethodPut, "/units/"+units[0].ID+"/status", map[string]any{"status": "in_stock"}, false)
	testutil.AssertStatus(t, rr, http.StatusPreconditionFailed)
	assert.Equal(t, "PRECONDITION_FAILED", env.Error.Code)

	rr, _ = do(t, h, http.MethodDelete, "/units/"+units[1].ID, nil, false)
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	rr, _ = do(t, h, http.MethodGet, "/units/"+units[1].ID, nil, false)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestCategoryDeleteNeedsConfirm(t *testing.T) {
	h := newRouter(t)
	categoryID, item := seedItem(t, h, 2)

	rr, env := do(t, h, http.MethodDelete, "/categories/"+categoryID, nil, false)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rr, env = do(t, h, http.MethodDelete, "/categories/"+categoryID+"?confirm=true", nil, false)
	testutil.AssertStatus(t, rr, http.StatusOK)
	deletion := decode[service.CategoryDeletion](t, env)
	assert.Equal(t, 1, deletion.ItemsRemoved)
	assert.Equal(t, 2, deletion.UnitsRemoved)

	rr, _ = do(t, h, http.MethodGet, "/items/"+item.ID, nil, false)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}
