// Package metrics provides Prometheus instrumentation for the commission engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EntriesCreated counts commission ledger entries created, by mode.
	EntriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pv_commission_entries_created_total",
		Help: "Commission ledger entries created",
	}, []string{"mode"})

	// DuplicateSkips counts inserts skipped by the idempotency guard.
	DuplicateSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pv_commission_duplicate_skips_total",
		Help: "Ledger inserts skipped because the tuple already existed",
	}, []string{"mode"})

	// AmountDistributed totals commission amounts credited, by mode.
	AmountDistributed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pv_commission_amount_distributed_total",
		Help: "Total commission amount credited to wallets",
	}, []string{"mode"})

	// Reversals counts reversed commission entries.
	Reversals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pv_commission_reversals_total",
		Help: "Commission entries reversed",
	})

	// CreditFailures counts entries that could not be credited to a wallet.
	CreditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pv_commission_credit_failures_total",
		Help: "Ledger entries marked FAILED after a wallet credit error",
	})

	// VolumeRecorded totals lot volume accumulated from trade facts.
	VolumeRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pv_volume_lots_recorded_total",
		Help: "Lot volume recorded into accumulators",
	})

	// BatchRuns counts payout runs by final status.
	BatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pv_batch_runs_total",
		Help: "Monthly payout runs by final status",
	}, []string{"status"})

	// BatchRunDuration tracks payout run wall time.
	BatchRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pv_batch_run_duration_seconds",
		Help:    "Monthly payout run duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})

	// WebSocketClients tracks connected admin event stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pv_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pv_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pv_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
