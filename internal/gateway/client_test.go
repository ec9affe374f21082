package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calade/reportdeck/internal/config"
	"github.com/calade/reportdeck/model"
)

func defaultGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Timeout: 5 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 1,
		},
	}
}

func fastRetry(attempts int) config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:       attempts,
		BackoffInitial:    1 * time.Millisecond,
		BackoffMultiplier: 1,
		BackoffMax:        5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, serverURL string, cfg config.GatewayConfig) *Client {
	t.Helper()
	return NewClient(cfg, loadTestIndex(t, serverURL))
}

func asEnvelope(t *testing.T, err error) *model.ErrorEnvelope {
	t.Helper()
	env, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("error type = %T, want *model.ErrorEnvelope (%v)", err, err)
	}
	return env
}

// --- ListModels ---

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/report_builder/models" {
			t.Errorf("path = %s, want /report_builder/models", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "Contacts", "model": "res.partner"},
			{"id": 2, "name": "Sales Orders", "model": "sale.order"},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	models, err := c.ListModels(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListModels error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("len(models) = %d, want 2", len(models))
	}
	if models[0].ID != 1 || models[0].Model != "res.partner" {
		t.Errorf("models[0] = %+v, want id 1 model res.partner", models[0])
	}
	if models[1].Name != "Sales Orders" {
		t.Errorf("models[1].Name = %q, want Sales Orders", models[1].Name)
	}
}

func TestClient_ListModels_forwardsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("Authorization = %q, want Bearer tok123", got)
		}
		if got := r.Header.Get("X-Tenant-Id"); got != "t1" {
			t.Errorf("X-Tenant-Id = %q, want t1", got)
		}
		if got := r.Header.Get("X-Correlation-Id"); got != "c1" {
			t.Errorf("X-Correlation-Id = %q, want c1", got)
		}
		if got := r.Header.Get("X-Request-Subject"); got != "u1" {
			t.Errorf("X-Request-Subject = %q, want u1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	rctx := &model.RequestContext{
		SubjectID:     "u1",
		TenantID:      "t1",
		BearerToken:   "tok123",
		CorrelationID: "c1",
	}
	if _, err := c.ListModels(context.Background(), rctx); err != nil {
		t.Fatalf("ListModels error: %v", err)
	}
}

func TestClient_ListModels_decodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	if _, err := c.ListModels(context.Background(), nil); err == nil {
		t.Fatal("expected decode error for non-JSON body")
	}
}

// --- ModelFields ---

func TestClient_ModelFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/report_builder/models/res.partner/fields" {
			t.Errorf("path = %s, want /report_builder/models/res.partner/fields", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"fields": []map[string]any{
				{"name": "name", "string": "Name", "type": "char"},
				{"name": "credit_limit", "string": "Credit Limit", "type": "float"},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	fields, err := c.ModelFields(context.Background(), nil, "res.partner")
	if err != nil {
		t.Fatalf("ModelFields error: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("len(fields) = %d, want 2", len(fields))
	}
	if fields[1].Name != "credit_limit" || fields[1].Label != "Credit Limit" || fields[1].Type != "float" {
		t.Errorf("fields[1] = %+v, want credit_limit/Credit Limit/float", fields[1])
	}
}

func TestClient_ModelFields_envelopeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "model res.partner is not registered",
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	_, err := c.ModelFields(context.Background(), nil, "res.partner")
	env := asEnvelope(t, err)
	if env.Code != model.ErrModelNotFound {
		t.Errorf("code = %s, want %s", env.Code, model.ErrModelNotFound)
	}
	if env.Message != "model res.partner is not registered" {
		t.Errorf("message = %q, want backend error text", env.Message)
	}
}

// --- ExecuteReport ---

func TestClient_ExecuteReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/report_builder/execute_report" {
			t.Errorf("path = %s, want /report_builder/execute_report", r.URL.Path)
		}
		bodyBytes, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		if id, _ := body["report_id"].(float64); id != 7 {
			t.Errorf("body.report_id = %v, want 7", body["report_id"])
		}
		if lim, _ := body["limit"].(float64); lim != 100 {
			t.Errorf("body.limit = %v, want 100", body["limit"])
		}
		filters, _ := body["filters"].([]any)
		if len(filters) != 1 {
			t.Fatalf("body.filters = %v, want 1 entry", body["filters"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{"name": "Azure Interior", "credit_limit": 1500},
				{"name": "Deco Addict", "credit_limit": 0},
			},
			"count": 2,
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	filters := []model.PreparedFilter{{Field: "active", Operator: "=", Value: "true"}}
	rows, count, err := c.ExecuteReport(context.Background(), nil, 7, filters, 100)
	if err != nil {
		t.Fatalf("ExecuteReport error: %v", err)
	}
	if count != 2 || len(rows) != 2 {
		t.Fatalf("count = %d, len(rows) = %d, want 2 and 2", count, len(rows))
	}
	if rows[0]["name"] != "Azure Interior" {
		t.Errorf("rows[0].name = %v, want Azure Interior", rows[0]["name"])
	}
}

func TestClient_ExecuteReport_envelopeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "invalid domain expression",
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	_, _, err := c.ExecuteReport(context.Background(), nil, 7, nil, 0)
	env := asEnvelope(t, err)
	if env.Code != model.ErrBadRequest {
		t.Errorf("code = %s, want %s", env.Code, model.ErrBadRequest)
	}
	if env.Message != "invalid domain expression" {
		t.Errorf("message = %q, want backend message text", env.Message)
	}
}

func TestClient_ExecuteReport_serverError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	_, _, err := c.ExecuteReport(context.Background(), nil, 7, nil, 0)
	env := asEnvelope(t, err)
	if env.Code != model.ErrBackendUnavailable {
		t.Errorf("code = %s, want %s", env.Code, model.ErrBackendUnavailable)
	}
}

// --- CreateReport ---

func TestClient_CreateReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/report_builder/reports" {
			t.Errorf("path = %s, want /report_builder/reports", r.URL.Path)
		}
		bodyBytes, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(bodyBytes, &body)
		if body["name"] != "Q3 Receivables" {
			t.Errorf("body.name = %v, want Q3 Receivables", body["name"])
		}
		if tmpl, _ := body["is_template"].(bool); !tmpl {
			t.Errorf("body.is_template = %v, want true", body["is_template"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "report_id": 42})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	id, err := c.CreateReport(context.Background(), nil, CreateReportRequest{
		Name:       "Q3 Receivables",
		ModelID:    1,
		Fields:     []model.FieldTuple{{Name: "name", Label: "Name", Sequence: 1}},
		IsTemplate: true,
	})
	if err != nil {
		t.Fatalf("CreateReport error: %v", err)
	}
	if id != 42 {
		t.Errorf("report id = %d, want 42", id)
	}
}

func TestClient_CreateReport_neverRetries(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.CircuitBreaker.FailureThreshold = 10
	cfg.Retry = fastRetry(3)
	c := newTestClient(t, server.URL, cfg)

	_, err := c.CreateReport(context.Background(), nil, CreateReportRequest{Name: "x", ModelID: 1})
	env := asEnvelope(t, err)
	if env.Code != model.ErrBackendUnavailable {
		t.Errorf("code = %s, want %s", env.Code, model.ErrBackendUnavailable)
	}
	if callCount.Load() != 1 {
		t.Errorf("server called %d times, want 1 (creates must not retry)", callCount.Load())
	}
}

// --- ValidateFilters ---

func TestClient_ValidateFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/report_builder/validate_filters" {
			t.Errorf("path = %s, want /report_builder/validate_filters", r.URL.Path)
		}
		bodyBytes, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(bodyBytes, &body)
		if body["model"] != "sale.order" {
			t.Errorf("body.model = %v, want sale.order", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"results": []map[string]any{
				{"field": "state", "valid": true},
				{"field": "amount_total", "valid": false, "message": "operator not supported"},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	results, err := c.ValidateFilters(context.Background(), nil, "sale.order", []model.PreparedFilter{
		{Field: "state", Operator: "=", Value: "sale"},
		{Field: "amount_total", Operator: "like", Value: "10"},
	})
	if err != nil {
		t.Fatalf("ValidateFilters error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[1].Valid || results[1].Message != "operator not supported" {
		t.Errorf("results[1] = %+v, want invalid with message", results[1])
	}
}

// --- Retry logic ---

func TestClient_retriesOnServerError(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := callCount.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"name":"Contacts","model":"res.partner"}]`))
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.CircuitBreaker.FailureThreshold = 10 // don't trip during retries
	cfg.Retry = fastRetry(3)
	c := newTestClient(t, server.URL, cfg)

	models, err := c.ListModels(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListModels error: %v", err)
	}
	if len(models) != 1 {
		t.Errorf("len(models) = %d, want 1", len(models))
	}
	if callCount.Load() != 3 {
		t.Errorf("server called %d times, want 3", callCount.Load())
	}
}

func TestClient_retryExhaustedReturnsLastStatus(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.CircuitBreaker.FailureThreshold = 10
	cfg.Retry = fastRetry(3)
	c := newTestClient(t, server.URL, cfg)

	_, err := c.ListModels(context.Background(), nil)
	env := asEnvelope(t, err)
	if env.Code != model.ErrBackendUnavailable {
		t.Errorf("code = %s, want %s", env.Code, model.ErrBackendUnavailable)
	}
	if callCount.Load() != 3 {
		t.Errorf("server called %d times, want 3", callCount.Load())
	}
}

func TestClient_noRetryOnClientError(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.Retry = fastRetry(3)
	c := newTestClient(t, server.URL, cfg)

	_, err := c.ListModels(context.Background(), nil)
	env := asEnvelope(t, err)
	if env.Code != model.ErrNotFound {
		t.Errorf("code = %s, want %s", env.Code, model.ErrNotFound)
	}
	if callCount.Load() != 1 {
		t.Errorf("server called %d times, want 1 (4xx is not retryable)", callCount.Load())
	}
}

// --- Circuit breaker interaction ---

func TestClient_circuitBreakerRejectsWhenOpen(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.CircuitBreaker.FailureThreshold = 2
	c := newTestClient(t, server.URL, cfg)

	// Trip the circuit breaker with server errors.
	for i := 0; i < 2; i++ {
		c.ListModels(context.Background(), nil)
	}

	// Next call should be rejected without hitting the server.
	countBefore := callCount.Load()
	_, err := c.ListModels(context.Background(), nil)
	env := asEnvelope(t, err)
	if env.Code != model.ErrBackendUnavailable {
		t.Errorf("code = %s, want %s", env.Code, model.ErrBackendUnavailable)
	}
	if callCount.Load() != countBefore {
		t.Error("server was called despite open circuit breaker")
	}
}

func TestClient_clientErrorsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.CircuitBreaker.FailureThreshold = 2
	c := newTestClient(t, server.URL, cfg)

	for i := 0; i < 5; i++ {
		c.ListModels(context.Background(), nil)
	}
	if s := c.Breaker().State(); s != BreakerClosed {
		t.Errorf("state after 5 client errors = %v, want Closed", s)
	}
}

func TestClient_successResetsBreaker(t *testing.T) {
	var respondWithError atomic.Bool
	respondWithError.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if respondWithError.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.CircuitBreaker.FailureThreshold = 3
	c := newTestClient(t, server.URL, cfg)

	// Record 2 failures.
	c.ListModels(context.Background(), nil)
	c.ListModels(context.Background(), nil)

	// Switch to success, which resets the failure count.
	respondWithError.Store(false)
	c.ListModels(context.Background(), nil)

	// 2 more failures should NOT trip.
	respondWithError.Store(true)
	c.ListModels(context.Background(), nil)
	c.ListModels(context.Background(), nil)

	if s := c.Breaker().State(); s != BreakerClosed {
		t.Errorf("state = %v, want Closed (failures reset by success)", s)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	c := newTestClient(t, "http://gw.local", defaultGatewayConfig())

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil while closed", err)
	}

	for i := 0; i < 5; i++ {
		c.Breaker().RecordFailure()
	}
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail while the breaker is open")
	}
}

// --- Connection and timeout errors ---

func TestClient_connectionError(t *testing.T) {
	// Create a server and immediately close it to produce a connection error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	c := newTestClient(t, serverURL, defaultGatewayConfig())

	_, err := c.ListModels(context.Background(), nil)
	env := asEnvelope(t, err)
	if env.Code != model.ErrBackendUnavailable {
		t.Errorf("code = %s, want %s", env.Code, model.ErrBackendUnavailable)
	}
}

func TestClient_responseTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.Timeout = 50 * time.Millisecond
	c := newTestClient(t, server.URL, cfg)

	_, err := c.ListModels(context.Background(), nil)
	env := asEnvelope(t, err)
	if env.Code != model.ErrBackendTimeout {
		t.Errorf("code = %s, want %s", env.Code, model.ErrBackendTimeout)
	}
}

func TestClient_contextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, defaultGatewayConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.ListModels(ctx, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestClient_contextCancelDuringRetryBackoff(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := defaultGatewayConfig()
	cfg.CircuitBreaker.FailureThreshold = 10
	cfg.Retry = config.RetryConfig{
		MaxAttempts:       5,
		BackoffInitial:    500 * time.Millisecond,
		BackoffMultiplier: 1,
		BackoffMax:        1 * time.Second,
	}
	c := newTestClient(t, server.URL, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ListModels(ctx, nil)
	env := asEnvelope(t, err)
	if env.Code != model.ErrBackendTimeout {
		t.Errorf("code = %s, want %s", env.Code, model.ErrBackendTimeout)
	}
	if callCount.Load() != 1 {
		t.Errorf("server called %d times, want 1 (cancelled during backoff)", callCount.Load())
	}
}

// --- DownloadURL ---

func TestClient_DownloadURL(t *testing.T) {
	c := newTestClient(t, "http://gw.local", defaultGatewayConfig())

	filters := []model.PreparedFilter{{Field: "active", Operator: "=", Value: "true"}}
	got, err := c.DownloadURL(7, "xlsx", filters)
	if err != nil {
		t.Fatalf("DownloadURL error: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if u.Path != "/report_builder/export/7/xlsx" {
		t.Errorf("path = %q, want /report_builder/export/7/xlsx", u.Path)
	}

	var decoded []model.PreparedFilter
	if err := json.Unmarshal([]byte(u.Query().Get("filters")), &decoded); err != nil {
		t.Fatalf("filters query param is not JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Field != "active" {
		t.Errorf("decoded filters = %+v, want original filter", decoded)
	}
}

func TestClient_DownloadURL_noFilters(t *testing.T) {
	c := newTestClient(t, "http://gw.local", defaultGatewayConfig())

	got, err := c.DownloadURL(12, "pdf", nil)
	if err != nil {
		t.Fatalf("DownloadURL error: %v", err)
	}
	want := "http://gw.local/report_builder/export/12/pdf"
	if got != want {
		t.Errorf("DownloadURL = %q, want %q", got, want)
	}
}

func TestClient_DownloadURL_operationNotIndexed(t *testing.T) {
	c := NewClient(defaultGatewayConfig(), NewIndex())

	if _, err := c.DownloadURL(1, "xlsx", nil); err == nil {
		t.Error("DownloadURL should fail when the operation is not indexed")
	}
}

// --- Direct helper tests ---

func TestBuildRequestURL_basic(t *testing.T) {
	op := IndexedOperation{
		BaseURL:      "http://api.example.com",
		PathTemplate: "/report_builder/models",
		Method:       "GET",
	}
	got := buildRequestURL(op, nil, nil)
	want := "http://api.example.com/report_builder/models"
	if got != want {
		t.Errorf("buildRequestURL = %q, want %q", got, want)
	}
}

func TestBuildRequestURL_pathParams(t *testing.T) {
	op := IndexedOperation{
		BaseURL:      "http://api.example.com",
		PathTemplate: "/report_builder/models/{model}/fields",
		Method:       "GET",
	}
	got := buildRequestURL(op, map[string]string{"model": "sale.order"}, nil)
	want := "http://api.example.com/report_builder/models/sale.order/fields"
	if got != want {
		t.Errorf("buildRequestURL = %q, want %q", got, want)
	}
}

func TestBuildRequestURL_pathParamsEscaped(t *testing.T) {
	op := IndexedOperation{
		BaseURL:      "http://api.example.com",
		PathTemplate: "/report_builder/models/{model}/fields",
		Method:       "GET",
	}
	got := buildRequestURL(op, map[string]string{"model": "a b"}, nil)
	want := "http://api.example.com/report_builder/models/a%20b/fields"
	if got != want {
		t.Errorf("buildRequestURL = %q, want %q", got, want)
	}
}

func TestBuildRequestURL_queryParams(t *testing.T) {
	op := IndexedOperation{
		BaseURL:      "http://api.example.com",
		PathTemplate: "/report_builder/models",
		Method:       "GET",
	}
	q := url.Values{}
	q.Set("page", "3")
	got := buildRequestURL(op, nil, q)
	want := "http://api.example.com/report_builder/models?page=3"
	if got != want {
		t.Errorf("buildRequestURL = %q, want %q", got, want)
	}
}

func TestBuildRequestHeaders_GETNoBody(t *testing.T) {
	h := buildRequestHeaders(nil, http.MethodGet)
	if h.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q, want application/json", h.Get("Accept"))
	}
	if h.Get("Content-Type") != "" {
		t.Errorf("Content-Type = %q, want empty for GET", h.Get("Content-Type"))
	}
}

func TestBuildRequestHeaders_POSTWithContentType(t *testing.T) {
	h := buildRequestHeaders(nil, http.MethodPost)
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", h.Get("Content-Type"))
	}
}

func TestBuildRequestHeaders_nilRequestContext(t *testing.T) {
	h := buildRequestHeaders(nil, http.MethodGet)
	if h.Get("Authorization") != "" {
		t.Errorf("Authorization = %q, want empty without request context", h.Get("Authorization"))
	}
}

func TestBuildRequestHeaders_sanitizes(t *testing.T) {
	rctx := &model.RequestContext{TenantID: "t1\r\nX-Evil: yes"}
	h := buildRequestHeaders(rctx, http.MethodGet)
	if got := h.Get("X-Tenant-Id"); got != "t1X-Evil: yes" {
		t.Errorf("X-Tenant-Id = %q, want newlines stripped", got)
	}
}

func TestSanitizeHeader(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"clean", "clean"},
		{"with\rcarriage", "withcarriage"},
		{"with\nnewline", "withnewline"},
		{"both\r\nhere", "bothhere"},
	}
	for _, tc := range cases {
		if got := sanitizeHeader(tc.in); got != tc.want {
			t.Errorf("sanitizeHeader(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{500, 502, 503, 504}
	for _, code := range retryable {
		if !isRetryableStatus(code) {
			t.Errorf("isRetryableStatus(%d) = false, want true", code)
		}
	}
	notRetryable := []int{200, 201, 400, 401, 404, 409, 422, 501}
	for _, code := range notRetryable {
		if isRetryableStatus(code) {
			t.Errorf("isRetryableStatus(%d) = true, want false", code)
		}
	}
}

func TestIsServerError(t *testing.T) {
	if !isServerError(500) || !isServerError(503) {
		t.Error("5xx should be server errors")
	}
	if isServerError(200) || isServerError(404) {
		t.Error("2xx/4xx should not be server errors")
	}
}

func TestIsClientError(t *testing.T) {
	if !isClientError(400) || !isClientError(499) {
		t.Error("4xx should be client errors")
	}
	if isClientError(399) || isClientError(500) {
		t.Error("boundary codes should not be client errors")
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := config.RetryConfig{
		BackoffInitial:    100 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffMax:        2 * time.Second,
	}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := calculateBackoff(cfg, tc.attempt); got != tc.want {
			t.Errorf("calculateBackoff(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestCalculateBackoff_defaults(t *testing.T) {
	got := calculateBackoff(config.RetryConfig{}, 1)
	if got != 100*time.Millisecond {
		t.Errorf("calculateBackoff with zero config = %v, want 100ms", got)
	}
}

func TestCalculateBackoff_cappedAtMax(t *testing.T) {
	cfg := config.RetryConfig{
		BackoffInitial:    100 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffMax:        300 * time.Millisecond,
	}
	if got := calculateBackoff(cfg, 10); got != 300*time.Millisecond {
		t.Errorf("calculateBackoff(attempt=10) = %v, want capped 300ms", got)
	}
}
