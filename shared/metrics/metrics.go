package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the custody service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBQueriesTotal  *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec

	// Chain metrics
	TransactionsSent      *prometheus.CounterVec
	BroadcastFailures     *prometheus.CounterVec
	TokenDiscovery        *prometheus.CounterVec
	GasEstimationFallback *prometheus.CounterVec
	ChainHealthy          *prometheus.GaugeVec

	// Error metrics
	PanicsRecovered prometheus.Counter
}

// NewMetrics creates and registers all metrics on reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		DBQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query latencies in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "table"},
		),
		TransactionsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_sent_total",
				Help:      "Transactions accepted by a chain node",
			},
			[]string{"chain_id", "kind"},
		),
		BroadcastFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_failures_total",
				Help:      "Transactions rejected by a chain node",
			},
			[]string{"chain_id"},
		),
		TokenDiscovery: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_discovery_total",
				Help:      "Token discovery runs by data source",
			},
			[]string{"chain_id", "source"},
		),
		GasEstimationFallback: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gas_estimation_fallbacks_total",
				Help:      "Gas estimations replaced by the chain default",
			},
			[]string{"chain_id", "kind"},
		),
		ChainHealthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chain_healthy",
				Help:      "1 when the chain RPC returned a positive block number on the last check",
			},
			[]string{"chain_id"},
		),
		PanicsRecovered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_recovered_total",
				Help:      "Total number of recovered panics",
			},
		),
	}
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

func (m *Metrics) RecordTransactionSent(chainID int64, kind string) {
	if m == nil {
		return
	}
	m.TransactionsSent.WithLabelValues(chainLabel(chainID), kind).Inc()
}

func (m *Metrics) RecordBroadcastFailure(chainID int64) {
	if m == nil {
		return
	}
	m.BroadcastFailures.WithLabelValues(chainLabel(chainID)).Inc()
}

// RecordTokenDiscovery counts a discovery run; source is "explorer", "fallback" or "skipped"
func (m *Metrics) RecordTokenDiscovery(chainID int64, source string) {
	if m == nil {
		return
	}
	m.TokenDiscovery.WithLabelValues(chainLabel(chainID), source).Inc()
}

func (m *Metrics) RecordGasFallback(chainID int64, kind string) {
	if m == nil {
		return
	}
	m.GasEstimationFallback.WithLabelValues(chainLabel(chainID), kind).Inc()
}

func (m *Metrics) RecordChainHealth(chainID int64, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.ChainHealthy.WithLabelValues(chainLabel(chainID)).Set(v)
}

func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsRecovered.Inc()
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// HTTPMiddleware records request counts and latencies keyed by route template
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics handler for the given gatherer
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
