package observability

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_InstrumentHandler(t *testing.T) {
	m := NewMetrics(nil)

	handler := m.InstrumentHandler("/widgets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("GET", "/widgets", "418")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
}

func TestMetrics_InstrumentHandlerDefaultStatus(t *testing.T) {
	m := NewMetrics(nil)

	handler := m.InstrumentHandler("/widgets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// implicit 200, no WriteHeader call
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("GET", "/widgets", "200")))
}

func TestMetrics_RecordDBStats(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordDBStats(sql.DBStats{InUse: 3, Idle: 2})

	assert.Equal(t, float64(3), testutil.ToFloat64(m.DBConnectionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DBConnectionsIdle))
}
