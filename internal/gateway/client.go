package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/calade/reportdeck/internal/config"
	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/model"
)

// errBreakerOpen is returned by executeOnce when the circuit rejects a call.
var errBreakerOpen = errors.New("gateway: circuit breaker open")

// Client executes operations against the ORM gateway. Requests are routed
// via the OpenAPI operation index and protected by a circuit breaker and
// bounded retry with exponential backoff.
type Client struct {
	cfg     config.GatewayConfig
	index   *Index
	client  *http.Client
	breaker *CircuitBreaker
	metrics *observability.Metrics
}

// Option configures optional collaborators of the Client.
type Option func(*Client)

// WithMetrics wires Prometheus instruments into the client.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a gateway client from configuration and a loaded
// operation index.
func NewClient(cfg config.GatewayConfig, idx *Index, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	cb := cfg.CircuitBreaker
	c := &Client{
		cfg:   cfg,
		index: idx,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker: NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the circuit breaker for diagnostics.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// HealthCheck reports gateway health from the circuit breaker state without
// generating backend load.
func (c *Client) HealthCheck(_ context.Context) error {
	if c.breaker.State() == BreakerOpen {
		return fmt.Errorf("circuit breaker open")
	}
	return nil
}

// ListModels fetches the data models eligible for reporting.
func (c *Client) ListModels(ctx context.Context, rctx *model.RequestContext) ([]model.ModelDescriptor, error) {
	status, body, err := c.invoke(ctx, rctx, OpListModels, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(OpListModels, status)
	}
	var models []model.ModelDescriptor
	if err := json.Unmarshal(body, &models); err != nil {
		return nil, fmt.Errorf("gateway: decode model list: %w", err)
	}
	return models, nil
}

// ModelFields fetches the reportable fields of one model.
func (c *Client) ModelFields(ctx context.Context, rctx *model.RequestContext, modelName string) ([]model.FieldDescriptor, error) {
	pathParams := map[string]string{"model": modelName}
	status, body, err := c.invoke(ctx, rctx, OpGetModelFields, pathParams, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(OpGetModelFields, status)
	}
	var env fieldsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("gateway: decode fields envelope: %w", err)
	}
	if !env.Success {
		return nil, model.NewModelNotFoundError(
			envelopeMessage(env.Error, env.Message, "could not load fields for "+modelName))
	}
	return env.Fields, nil
}

// ExecuteReport runs a persisted report with the given prepared filters.
// limit caps the number of returned rows; 0 means unlimited.
func (c *Client) ExecuteReport(ctx context.Context, rctx *model.RequestContext, reportID int64, filters []model.PreparedFilter, limit int) ([]model.ReportRow, int, error) {
	payload := executeRequest{ReportID: reportID, Filters: filters, Limit: limit}
	status, body, err := c.invoke(ctx, rctx, OpExecuteReport, nil, nil, payload)
	if err != nil {
		return nil, 0, err
	}
	if status != http.StatusOK {
		return nil, 0, statusError(OpExecuteReport, status)
	}
	var env executeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, 0, fmt.Errorf("gateway: decode execute envelope: %w", err)
	}
	if !env.Success {
		return nil, 0, model.NewBadRequestError(
			envelopeMessage(env.Error, env.Message, "report execution failed"))
	}
	return env.Data, env.Count, nil
}

// CreateReport persists a report definition (or template) and returns its id.
func (c *Client) CreateReport(ctx context.Context, rctx *model.RequestContext, req CreateReportRequest) (int64, error) {
	status, body, err := c.invoke(ctx, rctx, OpCreateReport, nil, nil, req)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return 0, statusError(OpCreateReport, status)
	}
	var env createEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, fmt.Errorf("gateway: decode create envelope: %w", err)
	}
	if !env.Success {
		return 0, model.NewBadRequestError(
			envelopeMessage(env.Error, env.Message, "could not save report"))
	}
	return env.ReportID, nil
}

// ValidateFilters asks the backend to check prepared filters against a model.
func (c *Client) ValidateFilters(ctx context.Context, rctx *model.RequestContext, modelName string, filters []model.PreparedFilter) ([]FilterValidation, error) {
	payload := validateRequest{Model: modelName, Filters: filters}
	status, body, err := c.invoke(ctx, rctx, OpValidateFilters, nil, nil, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(OpValidateFilters, status)
	}
	var env validateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("gateway: decode validate envelope: %w", err)
	}
	if !env.Success {
		return nil, model.NewBadRequestError(
			envelopeMessage(env.Error, env.Message, "filter validation failed"))
	}
	return env.Results, nil
}

// DownloadURL builds the export download link for a persisted report. The
// prepared filters ride along URL-encoded in the query string; format and
// content are negotiated by the backend.
func (c *Client) DownloadURL(reportID int64, format string, filters []model.PreparedFilter) (string, error) {
	op, ok := c.index.GetOperation(OpExportDownload)
	if !ok {
		return "", fmt.Errorf("gateway: operation %q not indexed", OpExportDownload)
	}

	path := op.PathTemplate
	path = strings.ReplaceAll(path, "{reportID}", strconv.FormatInt(reportID, 10))
	path = strings.ReplaceAll(path, "{format}", url.PathEscape(format))

	result := op.BaseURL + path
	if len(filters) > 0 {
		raw, err := json.Marshal(filters)
		if err != nil {
			return "", fmt.Errorf("gateway: marshal filters: %w", err)
		}
		params := url.Values{}
		params.Set("filters", string(raw))
		result += "?" + params.Encode()
	}
	return result, nil
}

// invoke resolves an operation, builds the HTTP request, and executes it with
// circuit breaker and retry support. Returns the final status and raw body.
func (c *Client) invoke(ctx context.Context, rctx *model.RequestContext, operationID string, pathParams map[string]string, query url.Values, payload any) (int, []byte, error) {
	op, ok := c.index.GetOperation(operationID)
	if !ok {
		return 0, nil, fmt.Errorf("gateway: operation %q not indexed", operationID)
	}

	reqURL := buildRequestURL(op, pathParams, query)
	headers := buildRequestHeaders(rctx, op.Method)

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("gateway: marshal body: %w", err)
		}
	}

	// Creating a report is the only write; a retried create could
	// double-persist. Everything else is a read behind POST or GET.
	canRetry := operationID != OpCreateReport

	start := time.Now()
	status, respBody, err := c.executeWithRetry(ctx, op.Method, reqURL, headers, bodyBytes, canRetry)
	if c.metrics != nil {
		c.metrics.RecordGatewayRequest(operationID, status, time.Since(start))
		c.metrics.SetGatewayCircuitBreakerState(float64(c.breaker.State()))
	}
	return status, respBody, err
}

// executeWithRetry wraps executeOnce with retry logic and exponential backoff.
// Connection errors and retryable statuses (500, 502, 503, 504) are retried;
// 4xx and breaker rejections are not.
func (c *Client) executeWithRetry(ctx context.Context, method, reqURL string, headers http.Header, bodyBytes []byte, canRetry bool) (int, []byte, error) {
	retryCfg := c.cfg.Retry
	maxAttempts := retryCfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if !canRetry {
		maxAttempts = 1
	}

	var lastStatus int
	var lastBody []byte
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(retryCfg, attempt)
			select {
			case <-ctx.Done():
				return 0, nil, model.NewBackendTimeoutError()
			case <-time.After(delay):
			}
			if c.metrics != nil {
				c.metrics.RecordGatewayRetry()
			}
		}

		status, body, err := c.executeOnce(ctx, method, reqURL, headers, bodyBytes)
		if err != nil {
			if errors.Is(err, errBreakerOpen) {
				return 0, nil, model.NewBackendUnavailableError()
			}
			if ctx.Err() != nil {
				return 0, nil, model.NewBackendTimeoutError()
			}
			if !isConnectionError(err) {
				if isTimeoutError(err) {
					return 0, nil, model.NewBackendTimeoutError()
				}
				return 0, nil, err
			}
			lastErr = err
			slog.Debug("gateway: retrying after error",
				"attempt", attempt+1,
				"max", maxAttempts,
				"error", err,
			)
			continue
		}

		if isRetryableStatus(status) && attempt < maxAttempts-1 {
			lastStatus, lastBody, lastErr = status, body, nil
			slog.Debug("gateway: retrying after status",
				"attempt", attempt+1,
				"max", maxAttempts,
				"status", status,
			)
			continue
		}

		return status, body, nil
	}

	if lastErr != nil {
		return 0, nil, model.NewBackendUnavailableError()
	}
	return lastStatus, lastBody, nil
}

// executeOnce performs a single HTTP request with circuit breaker protection.
func (c *Client) executeOnce(ctx context.Context, method, reqURL string, headers http.Header, bodyBytes []byte) (int, []byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return 0, nil, errBreakerOpen
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header = headers.Clone()
	observability.InjectTraceHeaders(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return 0, nil, fmt.Errorf("gateway: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		c.breaker.RecordFailure()
		return 0, nil, fmt.Errorf("gateway: read response: %w", err)
	}

	// Record circuit breaker outcome. 4xx are not infrastructure failures.
	if isServerError(resp.StatusCode) {
		c.breaker.RecordFailure()
	} else if !isClientError(resp.StatusCode) {
		c.breaker.RecordSuccess()
	}

	return resp.StatusCode, respBody, nil
}

// --- URL and header building ---

func buildRequestURL(op IndexedOperation, pathParams map[string]string, query url.Values) string {
	path := op.PathTemplate
	for name, value := range pathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}

	result := op.BaseURL + path
	if len(query) > 0 {
		result += "?" + query.Encode()
	}
	return result
}

func buildRequestHeaders(rctx *model.RequestContext, method string) http.Header {
	h := make(http.Header)

	h.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		h.Set("Content-Type", "application/json")
	}

	if rctx != nil {
		if rctx.BearerToken != "" {
			h.Set("Authorization", "Bearer "+sanitizeHeader(rctx.BearerToken))
		}
		h.Set("X-Tenant-Id", sanitizeHeader(rctx.TenantID))
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		h.Set("X-Request-Subject", sanitizeHeader(rctx.SubjectID))
	}

	return h
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// statusError maps a final non-2xx gateway status to an error envelope.
func statusError(operationID string, status int) error {
	switch {
	case status == http.StatusNotFound:
		return model.NewNotFoundError(fmt.Sprintf("gateway operation %s returned 404", operationID))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewForbiddenError("the gateway rejected the request credentials")
	case status >= 500:
		return model.NewBackendUnavailableError()
	default:
		return model.NewBadRequestError(fmt.Sprintf("gateway operation %s failed with status %d", operationID, status))
	}
}

// --- classification helpers ---

func isServerError(code int) bool {
	return code >= 500
}

func isClientError(code int) bool {
	return code >= 400 && code < 500
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return false
}

func isTimeoutError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.BackoffMax {
			delay = cfg.BackoffMax
			break
		}
	}
	return delay
}
