package httputil_test

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/httputil"
	"github.com/rentora/rentora-backend/pkg/logger"
)

type accessLine struct {
	Level     string `json:"level"`
	Status    int    `json:"status"`
	Actor     string `json:"actor"`
	ErrorCode string `json:"error_code"`
	Error     string `json:"error"`
	Panic     string `json:"panic"`
}

func serve(t *testing.T, h http.HandlerFunc) (*httptest.ResponseRecorder, httputil.Response, []accessLine) {
	t.Helper()
	var logs bytes.Buffer
	log := logger.NewWithWriter("inventory-test", &logs)

	r := chi.NewRouter()
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Get("/items", h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))

	var body httputil.Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}

	var lines []accessLine
	dec := json.NewDecoder(&logs)
	for dec.More() {
		var l accessLine
		require.NoError(t, dec.Decode(&l))
		lines = append(lines, l)
	}
	return rec, body, lines
}

func TestLogger_RecordsActorAndErrorCode(t *testing.T) {
	rec, body, lines := serve(t, func(w http.ResponseWriter, r *http.Request) {
		httputil.NoteActor(r.Context(), "user:42")
		httputil.ErrorLocalized(w, r, errors.Conflict("unit busy"))
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "CONFLICT", body.Error.Code)
	assert.False(t, body.Success)

	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0].Level)
	assert.Equal(t, "user:42", lines[0].Actor)
	assert.Equal(t, "CONFLICT", lines[0].ErrorCode)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestErrorLocalized_HidesInternalCause(t *testing.T) {
	rec, body, lines := serve(t, func(w http.ResponseWriter, r *http.Request) {
		httputil.ErrorLocalized(w, r, stderrors.New("pq: connection reset"))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "An unexpected error occurred", body.Error.Message)
	assert.NotContains(t, rec.Body.String(), "connection reset")

	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0].Level)
	assert.Equal(t, "pq: connection reset", lines[0].Error)
	assert.Equal(t, "INTERNAL_ERROR", lines[0].ErrorCode)
}

func TestRecoverer_AnswersWithEnvelope(t *testing.T) {
	rec, body, lines := serve(t, func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotNil(t, body.Error)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)

	require.Len(t, lines, 2)
	assert.Equal(t, "nil map write", lines[0].Panic)
	assert.Equal(t, http.StatusInternalServerError, lines[1].Status)
}

func TestJSON_SuccessFlagFollowsStatus(t *testing.T) {
	rec, body, lines := serve(t, func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]int{"in_stock": 3})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.Nil(t, body.Error)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0].Level)
	assert.Empty(t, lines[0].ErrorCode)
}

func TestPagination_Bounds(t *testing.T) {
	tests := []struct {
		query       string
		page, limit int
	}{
		{"", 1, 50},
		{"?page=3&per_page=20", 3, 20},
		{"?page=-1&per_page=999", 1, 50},
		{"?page=abc&per_page=0", 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			page, perPage := httputil.Pagination(httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil))
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.limit, perPage)
		})
	}
	assert.Equal(t, 3, httputil.NewMeta(1, 20, 41).TotalPages)
}
