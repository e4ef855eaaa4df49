package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSchedulerCounters(t *testing.T) {
	m := NewMetricsService()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.RecordSubmit(4, nil)
	m.RecordSubmit(0, errors.New("db down"))
	m.RecordRefresh(nil)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submitsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submitsTotal.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.cacheHitRatio))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveSessions)
	assert.Equal(t, uint64(2), snap.Submits)
	assert.Equal(t, uint64(1), snap.FailedSubmits)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/sessions/:id", http.StatusOK, 5*time.Millisecond)
	m.SessionOpened()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scheduler_sessions_active 1")
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",path="/api/v1/sessions/:id",status="200"} 1`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.SessionOpened()
	m.RecordSubmit(1, nil)
	m.RecordRefresh(errors.New("x"))
	assert.Equal(t, int64(0), m.Snapshot().ActiveSessions)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
