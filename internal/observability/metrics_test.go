package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"reportdeck_http_requests_total",
		"reportdeck_http_request_duration_seconds",
		"reportdeck_http_request_size_bytes",
		"reportdeck_http_response_size_bytes",
		"reportdeck_report_executions_total",
		"reportdeck_report_execution_duration_seconds",
		"reportdeck_report_rows_returned",
		"reportdeck_report_validation_failures_total",
		"reportdeck_report_exports_total",
		"reportdeck_gateway_requests_total",
		"reportdeck_gateway_request_duration_seconds",
		"reportdeck_gateway_circuit_breaker_state",
		"reportdeck_gateway_retries_total",
		"reportdeck_result_cache_hits_total",
		"reportdeck_result_cache_misses_total",
		"reportdeck_result_cache_evictions_total",
		"reportdeck_sessions_active",
		"reportdeck_sessions_expired_total",
		"reportdeck_refresh_ticks_total",
		"reportdeck_history_depth",
		"reportdeck_openapi_operations_indexed",
	}

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("GET", "/test", 200, time.Millisecond, 0, 100)
	m.RecordReportExecution("sale.order", "ok", time.Millisecond, 42)
	m.RecordReportValidationFailure("no_model")
	m.RecordReportExport("csv", "ok")
	m.RecordGatewayRequest("executeReport", 200, time.Millisecond)
	m.SetGatewayCircuitBreakerState(0)
	m.RecordGatewayRetry()
	m.RecordResultCacheHit()
	m.RecordResultCacheMiss()
	m.RecordResultCacheEviction()
	m.SessionOpened()
	m.RecordSessionExpired()
	m.RecordRefreshTick("run")
	m.RecordHistoryDepth(3)
	m.SetOpenAPIOperationsIndexed(6)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/sessions/{sessionID}", 200, 50*time.Millisecond, 0, 1024)
	m.RecordHTTPRequest("GET", "/sessions/{sessionID}", 200, 100*time.Millisecond, 0, 2048)
	m.RecordHTTPRequest("POST", "/sessions/{sessionID}/execute", 500, 200*time.Millisecond, 512, 256)

	// Verify counter values.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/sessions/{sessionID}", "200"))
	if val != 2 {
		t.Errorf("GET requests = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/sessions/{sessionID}/execute", "500"))
	if val != 1 {
		t.Errorf("POST requests = %v, want 1", val)
	}
}

func TestRecordReportExecution(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordReportExecution("sale.order", "ok", 150*time.Millisecond, 100)
	m.RecordReportExecution("sale.order", "error", 50*time.Millisecond, 0)

	ok := testutil.ToFloat64(m.ReportExecutionsTotal.WithLabelValues("sale.order", "ok"))
	if ok != 1 {
		t.Errorf("ok count = %v, want 1", ok)
	}
	failed := testutil.ToFloat64(m.ReportExecutionsTotal.WithLabelValues("sale.order", "error"))
	if failed != 1 {
		t.Errorf("error count = %v, want 1", failed)
	}

	// Row histogram only observes successful executions.
	count := testutil.CollectAndCount(m.ReportRowsReturned)
	if count == 0 {
		t.Error("expected rows-returned histogram to have observations")
	}
}

func TestRecordReportValidationFailure(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordReportValidationFailure("no_fields")
	m.RecordReportValidationFailure("no_fields")

	val := testutil.ToFloat64(m.ReportValidationFailures.WithLabelValues("no_fields"))
	if val != 2 {
		t.Errorf("validation failures = %v, want 2", val)
	}
}

func TestRecordReportExport(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordReportExport("xlsx", "ok")
	m.RecordReportExport("xlsx", "ok")
	m.RecordReportExport("pdf", "error")

	ok := testutil.ToFloat64(m.ReportExportsTotal.WithLabelValues("xlsx", "ok"))
	if ok != 2 {
		t.Errorf("xlsx exports = %v, want 2", ok)
	}
	failed := testutil.ToFloat64(m.ReportExportsTotal.WithLabelValues("pdf", "error"))
	if failed != 1 {
		t.Errorf("pdf errors = %v, want 1", failed)
	}
}

func TestRecordGatewayRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordGatewayRequest("getModelFields", 200, 100*time.Millisecond)

	val := testutil.ToFloat64(m.GatewayRequestsTotal.WithLabelValues("getModelFields", "200"))
	if val != 1 {
		t.Errorf("gateway requests = %v, want 1", val)
	}
}

func TestSetGatewayCircuitBreakerState(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetGatewayCircuitBreakerState(0)
	val := testutil.ToFloat64(m.GatewayCircuitBreakerState)
	if val != 0 {
		t.Errorf("circuit breaker state = %v, want 0 (closed)", val)
	}

	m.SetGatewayCircuitBreakerState(2)
	val = testutil.ToFloat64(m.GatewayCircuitBreakerState)
	if val != 2 {
		t.Errorf("circuit breaker state = %v, want 2 (open)", val)
	}
}

func TestRecordGatewayRetry(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordGatewayRetry()
	m.RecordGatewayRetry()
	val := testutil.ToFloat64(m.GatewayRetriesTotal)
	if val != 2 {
		t.Errorf("retries = %v, want 2", val)
	}
}

func TestRecordResultCache(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordResultCacheHit()
	m.RecordResultCacheHit()
	m.RecordResultCacheMiss()
	m.RecordResultCacheEviction()

	hits := testutil.ToFloat64(m.ResultCacheHitsTotal)
	if hits != 2 {
		t.Errorf("cache hits = %v, want 2", hits)
	}
	misses := testutil.ToFloat64(m.ResultCacheMissesTotal)
	if misses != 1 {
		t.Errorf("cache misses = %v, want 1", misses)
	}
	evictions := testutil.ToFloat64(m.ResultCacheEvictions)
	if evictions != 1 {
		t.Errorf("cache evictions = %v, want 1", evictions)
	}
}

func TestSessionLifecycleMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SessionOpened()
	m.SessionOpened()
	active := testutil.ToFloat64(m.SessionsActive)
	if active != 2 {
		t.Errorf("active sessions = %v, want 2", active)
	}

	m.SessionClosed()
	active = testutil.ToFloat64(m.SessionsActive)
	if active != 1 {
		t.Errorf("active sessions after close = %v, want 1", active)
	}

	// Expiry both counts and decrements the gauge.
	m.RecordSessionExpired()
	active = testutil.ToFloat64(m.SessionsActive)
	if active != 0 {
		t.Errorf("active sessions after expiry = %v, want 0", active)
	}
	expired := testutil.ToFloat64(m.SessionsExpiredTotal)
	if expired != 1 {
		t.Errorf("expired sessions = %v, want 1", expired)
	}
}

func TestRecordRefreshTick(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRefreshTick("run")
	m.RecordRefreshTick("run")
	m.RecordRefreshTick("skipped")

	run := testutil.ToFloat64(m.RefreshTicksTotal.WithLabelValues("run"))
	if run != 2 {
		t.Errorf("run ticks = %v, want 2", run)
	}
	skipped := testutil.ToFloat64(m.RefreshTicksTotal.WithLabelValues("skipped"))
	if skipped != 1 {
		t.Errorf("skipped ticks = %v, want 1", skipped)
	}
}

func TestRecordHistoryDepth(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHistoryDepth(1)
	m.RecordHistoryDepth(4)

	count := testutil.CollectAndCount(m.HistoryDepth)
	if count == 0 {
		t.Error("expected history-depth histogram to have observations")
	}
}

func TestSetOpenAPIOperationsIndexed(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetOpenAPIOperationsIndexed(6)
	val := testutil.ToFloat64(m.OpenAPIOperationsIndexed)
	if val != 6 {
		t.Errorf("operations indexed = %v, want 6", val)
	}

	m.SetOpenAPIOperationsIndexed(12)
	val = testutil.ToFloat64(m.OpenAPIOperationsIndexed)
	if val != 12 {
		t.Errorf("operations indexed = %v, want 12", val)
	}
}

func TestMetricsMiddleware_recordsRequestMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Build a chi router so route patterns are captured.
	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/sessions/abc123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Verify metrics were recorded with the route pattern, not the actual path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/sessions/{sessionID}", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_capturesResponseSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// Response size should have been recorded.
	count := testutil.CollectAndCount(m.HTTPResponseSizeBytes)
	if count == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Post("/sessions/{sessionID}/fields", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/sessions/abc123/fields", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/sessions/{sessionID}/fields", "400"))
	if val != 1 {
		t.Errorf("400 requests = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Use middleware directly without chi router.
	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Without chi, should fall back to raw path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200"))
	if val != 1 {
		t.Errorf("raw path requests = %v, want 1", val)
	}
}

func TestHandler_servesMetrics(t *testing.T) {
	handler := Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	// Prometheus handler should return at least go runtime metrics.
	if !strings.Contains(body, "go_") {
		t.Error("metrics response should contain go runtime metrics")
	}
}

func TestHistogramBuckets(t *testing.T) {
	if len(httpDurationBuckets) != 11 {
		t.Errorf("httpDurationBuckets length = %d, want 11", len(httpDurationBuckets))
	}
	if len(gatewayDurationBuckets) != 9 {
		t.Errorf("gatewayDurationBuckets length = %d, want 9", len(gatewayDurationBuckets))
	}
	if len(bodySizeBuckets) != 5 {
		t.Errorf("bodySizeBuckets length = %d, want 5", len(bodySizeBuckets))
	}
	if len(historyDepthBuckets) != 6 {
		t.Errorf("historyDepthBuckets length = %d, want 6", len(historyDepthBuckets))
	}

	// Verify buckets are sorted ascending.
	for i := 1; i < len(httpDurationBuckets); i++ {
		if httpDurationBuckets[i] <= httpDurationBuckets[i-1] {
			t.Errorf("httpDurationBuckets not sorted at index %d", i)
		}
	}
}
