package inventory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokoku/pos-core/internal/platform/httpx"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func TestHandlerInitializeAndAdjust(t *testing.T) {
	router := newTestRouter(NewService(newMemoryRepo(), nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock", strings.NewReader(`{"product_id":1,"branch_id":1,"quantity":10}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var stock StockLevel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stock))
	require.Equal(t, int64(10), stock.Quantity)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock", strings.NewReader(`{"product_id":1,"branch_id":1,"quantity":5}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock/1/adjustments", strings.NewReader(`{"direction":"decrease","quantity":11,"note":"Lost"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "insufficient_stock", problem.Kind)
	assert.Contains(t, problem.Errors, "quantity")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock/1/adjustments", strings.NewReader(`{"direction":"decrease","quantity":4,"note":"Lost"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/quantity?product_id=1&branch_id=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"product_id":1,"branch_id":1,"quantity":6}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/1/adjustments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var adjustments []Adjustment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &adjustments))
	require.Len(t, adjustments, 2)
	assert.Equal(t, DirectionDecrease, adjustments[0].Direction)
}

func TestHandlerUnknownStock(t *testing.T) {
	router := newTestRouter(NewService(newMemoryRepo(), nil, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/quantity?product_id=3&branch_id=1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
