package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access resolution metrics
	ClassificationsTotal    *prometheus.CounterVec // outcome: superadmin|admin|member|none|unavailable
	ClassificationFallbacks prometheus.Counter     // primary check failed, fallback used
	ElevatedQueriesTotal    *prometheus.CounterVec // op: query|exec
	ElevatedQueryErrors     prometheus.Counter

	// Lifecycle metrics
	AssignmentMutationsTotal *prometheus.CounterVec // op: create|update|delete, result: ok|conflict|denied|error
	ReconciliationsTotal     *prometheus.CounterVec // result: ok|conflict|partial|error

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botdeck_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botdeck_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ClassificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botdeck_classifications_total",
				Help: "Role classification outcomes",
			},
			[]string{"outcome"},
		),
		ClassificationFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "botdeck_classification_fallbacks_total",
				Help: "Superadmin checks served by the fallback table lookup",
			},
		),
		ElevatedQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botdeck_elevated_queries_total",
				Help: "Queries executed through the elevated gateway",
			},
			[]string{"op"},
		),
		ElevatedQueryErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "botdeck_elevated_query_errors_total",
				Help: "Elevated gateway errors, including missing configuration",
			},
		),
		AssignmentMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botdeck_assignment_mutations_total",
				Help: "Assignment lifecycle mutations by operation and result",
			},
			[]string{"op", "result"},
		),
		ReconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botdeck_invitation_reconciliations_total",
				Help: "Invitation reconciliation attempts by result",
			},
			[]string{"result"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botdeck_db_connections_active",
				Help: "In-use connections in the standard pool",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botdeck_db_connections_idle",
				Help: "Idle connections in the standard pool",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ClassificationsTotal,
		m.ClassificationFallbacks,
		m.ElevatedQueriesTotal,
		m.ElevatedQueryErrors,
		m.AssignmentMutationsTotal,
		m.ReconciliationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// RecordDBStats updates the connection gauges from a pool snapshot
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// StartDBStatsCollector samples the pool's connection stats on the given
// interval until ctx is cancelled.
func (m *Metrics) StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RecordDBStats(db.Stats())
			}
		}
	}()
}
