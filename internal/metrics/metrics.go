// Package metrics provides Prometheus instrumentation for the
// reconciliation engine.
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
	// RunsTotal counts reconciliation runs, partitioned by outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_runs_total",
		Help: "Total reconciliation runs",
	}, []string{"status"})

	// RunDuration tracks end-to-end run duration per account.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recon_run_duration_seconds",
		Help:    "Reconciliation run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OrdersReplayed counts ledger orders processed by the calculator.
	OrdersReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recon_orders_replayed_total",
		Help: "Ledger orders replayed by the settlement calculator",
	})

	// MismatchesTotal counts divergences found, partitioned by kind.
	MismatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_mismatches_total",
		Help: "Divergences between calculated and counter snapshots",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recon_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recon_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
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
