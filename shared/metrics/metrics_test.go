package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainCounters(t *testing.T) {
	m := NewMetrics("custody", prometheus.NewRegistry())

	m.RecordTransactionSent(56, "native")
	m.RecordTransactionSent(56, "native")
	m.RecordBroadcastFailure(3888)
	m.RecordTokenDiscovery(42161, "fallback")
	m.RecordGasFallback(42161, "erc20")
	m.RecordChainHealth(3888, true)
	m.RecordDBQuery("insert", "wallet_transactions", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionsSent.WithLabelValues("56", "native")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastFailures.WithLabelValues("3888")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenDiscovery.WithLabelValues("42161", "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GasEstimationFallback.WithLabelValues("42161", "erc20")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainHealthy.WithLabelValues("3888")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DBQueriesTotal.WithLabelValues("insert", "wallet_transactions", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTransactionSent(1, "native")
		m.RecordPanic()
		m.RecordChainHealth(1, false)
	})
}

func TestHTTPMiddlewareUsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("custody", reg)

	r := mux.NewRouter()
	r.Use(m.HTTPMiddleware)
	r.HandleFunc("/v1/transactions/{hash}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/0xabc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/transactions/{hash}", "404")))

	out := httptest.NewRecorder()
	Handler(reg).ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, out.Body.String(), "custody_http_requests_total")
}
