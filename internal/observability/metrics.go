package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	gatewayDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
	rowCountBuckets        = []float64{0, 10, 100, 1000, 10000, 100000}
	historyDepthBuckets    = []float64{1, 2, 5, 10, 20, 50}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Report metrics
	ReportExecutionsTotal     *prometheus.CounterVec
	ReportExecutionDuration   *prometheus.HistogramVec
	ReportRowsReturned        prometheus.Histogram
	ReportValidationFailures  *prometheus.CounterVec
	ReportExportsTotal        *prometheus.CounterVec

	// Gateway invocation metrics
	GatewayRequestsTotal       *prometheus.CounterVec
	GatewayRequestDuration     *prometheus.HistogramVec
	GatewayCircuitBreakerState prometheus.Gauge
	GatewayRetriesTotal        prometheus.Counter

	// Cache metrics
	ResultCacheHitsTotal   prometheus.Counter
	ResultCacheMissesTotal prometheus.Counter
	ResultCacheEvictions   prometheus.Counter

	// Session metrics
	SessionsActive       prometheus.Gauge
	SessionsExpiredTotal prometheus.Counter

	// Refresh metrics
	RefreshTicksTotal *prometheus.CounterVec

	// History metrics
	HistoryDepth prometheus.Histogram

	// System metrics
	OpenAPIOperationsIndexed prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportdeck_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportdeck_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportdeck_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportdeck_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Reports
		ReportExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportdeck_report_executions_total",
			Help: "Total number of report executions.",
		}, []string{"model", "status"}),
		ReportExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportdeck_report_execution_duration_seconds",
			Help:    "Report execution duration in seconds.",
			Buckets: gatewayDurationBuckets,
		}, []string{"model"}),
		ReportRowsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportdeck_report_rows_returned",
			Help:    "Number of rows returned per report execution.",
			Buckets: rowCountBuckets,
		}),
		ReportValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportdeck_report_validation_failures_total",
			Help: "Total number of report validation failures.",
		}, []string{"reason"}),
		ReportExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportdeck_report_exports_total",
			Help: "Total number of report exports.",
		}, []string{"format", "status"}),

		// Gateway
		GatewayRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportdeck_gateway_requests_total",
			Help: "Total number of ORM gateway requests.",
		}, []string{"operation_id", "status"}),
		GatewayRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportdeck_gateway_request_duration_seconds",
			Help:    "ORM gateway request duration in seconds.",
			Buckets: gatewayDurationBuckets,
		}, []string{"operation_id"}),
		GatewayCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reportdeck_gateway_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		GatewayRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportdeck_gateway_retries_total",
			Help: "Total number of gateway request retries.",
		}),

		// Cache
		ResultCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportdeck_result_cache_hits_total",
			Help: "Total result cache hits.",
		}),
		ResultCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportdeck_result_cache_misses_total",
			Help: "Total result cache misses.",
		}),
		ResultCacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportdeck_result_cache_evictions_total",
			Help: "Total result cache evictions.",
		}),

		// Sessions
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reportdeck_sessions_active",
			Help: "Number of active builder sessions.",
		}),
		SessionsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportdeck_sessions_expired_total",
			Help: "Total number of sessions removed by the idle sweep.",
		}),

		// Refresh
		RefreshTicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportdeck_refresh_ticks_total",
			Help: "Total auto-refresh ticks by outcome.",
		}, []string{"outcome"}),

		// History
		HistoryDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportdeck_history_depth",
			Help:    "Undo history depth observed after each recorded action.",
			Buckets: historyDepthBuckets,
		}),

		// System
		OpenAPIOperationsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reportdeck_openapi_operations_indexed",
			Help: "Number of indexed ORM gateway operations.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Reports
		m.ReportExecutionsTotal,
		m.ReportExecutionDuration,
		m.ReportRowsReturned,
		m.ReportValidationFailures,
		m.ReportExportsTotal,
		// Gateway
		m.GatewayRequestsTotal,
		m.GatewayRequestDuration,
		m.GatewayCircuitBreakerState,
		m.GatewayRetriesTotal,
		// Cache
		m.ResultCacheHitsTotal,
		m.ResultCacheMissesTotal,
		m.ResultCacheEvictions,
		// Sessions
		m.SessionsActive,
		m.SessionsExpiredTotal,
		// Refresh
		m.RefreshTicksTotal,
		// History
		m.HistoryDepth,
		// System
		m.OpenAPIOperationsIndexed,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordReportExecution records a report execution against a model.
func (m *Metrics) RecordReportExecution(modelName, status string, duration time.Duration, rows int) {
	m.ReportExecutionsTotal.WithLabelValues(modelName, status).Inc()
	m.ReportExecutionDuration.WithLabelValues(modelName).Observe(duration.Seconds())
	if status == "ok" {
		m.ReportRowsReturned.Observe(float64(rows))
	}
}

// RecordReportValidationFailure records a settings validation failure.
func (m *Metrics) RecordReportValidationFailure(reason string) {
	m.ReportValidationFailures.WithLabelValues(reason).Inc()
}

// RecordReportExport records a report export.
func (m *Metrics) RecordReportExport(format, status string) {
	m.ReportExportsTotal.WithLabelValues(format, status).Inc()
}

// RecordGatewayRequest records an ORM gateway request.
func (m *Metrics) RecordGatewayRequest(operationID string, status int, duration time.Duration) {
	m.GatewayRequestsTotal.WithLabelValues(operationID, strconv.Itoa(status)).Inc()
	m.GatewayRequestDuration.WithLabelValues(operationID).Observe(duration.Seconds())
}

// SetGatewayCircuitBreakerState sets the circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetGatewayCircuitBreakerState(state float64) {
	m.GatewayCircuitBreakerState.Set(state)
}

// RecordGatewayRetry records a gateway request retry.
func (m *Metrics) RecordGatewayRetry() {
	m.GatewayRetriesTotal.Inc()
}

// RecordResultCacheHit records a result cache hit.
func (m *Metrics) RecordResultCacheHit() {
	m.ResultCacheHitsTotal.Inc()
}

// RecordResultCacheMiss records a result cache miss.
func (m *Metrics) RecordResultCacheMiss() {
	m.ResultCacheMissesTotal.Inc()
}

// RecordResultCacheEviction records a result cache eviction.
func (m *Metrics) RecordResultCacheEviction() {
	m.ResultCacheEvictions.Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// RecordSessionExpired records a session removed by the idle sweep.
func (m *Metrics) RecordSessionExpired() {
	m.SessionsExpiredTotal.Inc()
	m.SessionsActive.Dec()
}

// RecordRefreshTick records an auto-refresh tick outcome ("run" or "skipped").
func (m *Metrics) RecordRefreshTick(outcome string) {
	m.RefreshTicksTotal.WithLabelValues(outcome).Inc()
}

// RecordHistoryDepth records the undo history depth after an action is logged.
func (m *Metrics) RecordHistoryDepth(depth int) {
	m.HistoryDepth.Observe(float64(depth))
}

// SetOpenAPIOperationsIndexed sets the number of indexed gateway operations.
func (m *Metrics) SetOpenAPIOperationsIndexed(count float64) {
	m.OpenAPIOperationsIndexed.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
