package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveTransaction("paid", "cash")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `pos_transactions_total{method="cash",status="paid"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTeapot, rr.Code)

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	assert.Contains(t, metricsBody, `pos_http_requests_total{code="418",route="/test"} 1`)
	assert.True(t, strings.Contains(metricsBody, `pos_http_request_duration_seconds_bucket{route="/test"`))
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveAdjustment("decrease", 4)
	metrics.ObserveAdjustment("decrease", 2)
	metrics.ObserveTransactionAbort("insufficient_stock")
	metrics.ObserveTxRetry(1, errors.New("40001"))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.adjustments.WithLabelValues("decrease")))
	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.adjustedUnits.WithLabelValues("decrease")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.aborts.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.txRetries))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveTransaction("paid", "cash")
	metrics.ObserveAdjustment("increase", 1)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
