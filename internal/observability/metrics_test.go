package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareRecords(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := metricsRec.Body.String()
	require.Contains(t, body, "compras_http_requests_total")
	require.Contains(t, body, `code="418"`)
}

func TestBudgetDriftGauge(t *testing.T) {
	m := NewMetrics()
	m.SetBudgetDrift("Sistemas", 2025, -2500)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, "compras_budget_drift_centavos")
	require.True(t, strings.Contains(body, `area="Sistemas"`))
	require.Contains(t, body, "2500")
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.SetBudgetDrift("Sistemas", 2025, 1)
		_ = m.Middleware(http.NewServeMux())
		_ = m.Handler()
	})
}
