package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transactions    *prometheus.CounterVec
	aborts          *prometheus.CounterVec
	txRetries       prometheus.Counter
	adjustments     *prometheus.CounterVec
	adjustedUnits   *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik domain POS.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_transactions_total",
		Help: "Transaksi yang berhasil diposting per status dan metode pembayaran.",
	}, []string{"status", "method"})
	aborts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_transaction_aborts_total",
		Help: "Transaksi yang dibatalkan per jenis kesalahan.",
	}, []string{"reason"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_tx_retries_total",
		Help: "Unit kerja database yang diulang karena lock timeout, deadlock atau serialization failure.",
	})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_adjustments_total",
		Help: "Entri buku stok yang tercatat per arah.",
	}, []string{"direction"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_adjusted_units_total",
		Help: "Jumlah unit stok yang berpindah per arah.",
	}, []string{"direction"})
	registry.MustRegister(requests, duration, transactions, aborts, retries, adjustments, units)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		transactions:    transactions,
		aborts:          aborts,
		txRetries:       retries,
		adjustments:     adjustments,
		adjustedUnits:   units,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveTransaction menghitung transaksi yang sudah di-commit.
func (m *Metrics) ObserveTransaction(status, method string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(status, method).Inc()
}

// ObserveTransactionAbort menghitung transaksi yang gagal beserta jenisnya.
func (m *Metrics) ObserveTransactionAbort(reason string) {
	if m == nil {
		return
	}
	m.aborts.WithLabelValues(reason).Inc()
}

// ObserveAdjustment menghitung entri buku stok dan unitnya.
func (m *Metrics) ObserveAdjustment(direction string, quantity int64) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(direction).Inc()
	m.adjustedUnits.WithLabelValues(direction).Add(float64(quantity))
}

// ObserveTxRetry dipasang pada db.TxOptions.OnRetry.
func (m *Metrics) ObserveTxRetry(attempt int, err error) {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
