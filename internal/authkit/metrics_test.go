package authkit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func TestCounterMetrics(t *testing.T) {
	metrics := NewCounterMetrics()
	metrics.Increment(MetricLoginSuccess)
	metrics.Increment(MetricLoginSuccess)
	metrics.Increment(MetricLogout)

	if metrics.Count(MetricLoginSuccess) != 2 {
		t.Fatalf("expected 2 login successes, got %d", metrics.Count(MetricLoginSuccess))
	}
	snapshot := metrics.Snapshot()
	snapshot[MetricLogout] = 42
	if metrics.Count(MetricLogout) != 1 {
		t.Fatalf("expected snapshot to be a copy")
	}
}

func TestPrometheusMetricsExposition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics(registry)
	if err != nil {
		t.Fatalf("new prometheus metrics: %v", err)
	}
	again, err := NewPrometheusMetrics(registry)
	if err != nil {
		t.Fatalf("expected re-registration to reuse collector: %v", err)
	}
	metrics.Increment(MetricRefreshSuccess)
	again.Increment(MetricRefreshSuccess)

	router := gin.New()
	router.GET("/metrics", MetricsHandler(registry))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `quizsession_events_total{event="auth.refresh.success"} 2`) {
		t.Fatalf("expected counter in exposition, got %s", recorder.Body.String())
	}
}
