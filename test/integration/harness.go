// Package integration exercises the assembled reportdeck server end to end:
// the real router, authentication, session manager, and builder stack wired
// to a mock ORM gateway, in-memory stores, and a throwaway JWT issuer.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/internal/config"
	"github.com/calade/reportdeck/internal/gateway"
	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/internal/session"
	"github.com/calade/reportdeck/internal/transport"
	"github.com/calade/reportdeck/model"
)

// TestHarness is a fully wired reportdeck instance backed by a mock gateway.
// Components are exported so tests can reach past the HTTP surface when an
// assertion needs it.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	Backend *MockGateway
	Index   *gateway.Index
	Client  *gateway.Client
	Store   *session.MemorySessionStore
	Cache   *builder.MemoryResultCache
	Manager *session.Manager

	cfg *config.Config
}

// HarnessOption adjusts harness construction.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	handlerTimeout   time.Duration
	previewRowLimit  int
	historyCapacity  int
	cacheEntries     int
	retryAttempts    int
	breakerThreshold int
	idleTTL          time.Duration
	requiredRole     string
}

// WithHandlerTimeout sets the per-request deadline.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.handlerTimeout = d }
}

// WithPreviewRowLimit caps preview executions at n rows.
func WithPreviewRowLimit(n int) HarnessOption {
	return func(c *harnessConfig) { c.previewRowLimit = n }
}

// WithHistoryCapacity bounds the per-session undo log.
func WithHistoryCapacity(n int) HarnessOption {
	return func(c *harnessConfig) { c.historyCapacity = n }
}

// WithGatewayRetries sets the gateway retry budget. The harness default is a
// single attempt so call-count assertions stay exact.
func WithGatewayRetries(n int) HarnessOption {
	return func(c *harnessConfig) { c.retryAttempts = n }
}

// WithBreakerThreshold opens the gateway circuit after n consecutive
// failures.
func WithBreakerThreshold(n int) HarnessOption {
	return func(c *harnessConfig) { c.breakerThreshold = n }
}

// WithResultCacheEntries sizes the shared result cache.
func WithResultCacheEntries(n int) HarnessOption {
	return func(c *harnessConfig) { c.cacheEntries = n }
}

// WithIdleTTL sets the session idle expiry.
func WithIdleTTL(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.idleTTL = d }
}

// WithRequiredRole gates the report API on the given role claim. The harness
// default leaves the gate open.
func WithRequiredRole(role string) HarnessOption {
	return func(c *harnessConfig) { c.requiredRole = role }
}

// NewTestHarness starts a complete server instance. Every backing component
// is torn down when the test finishes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout:   10 * time.Second,
		previewRowLimit:  100,
		historyCapacity:  50,
		cacheEntries:     64,
		retryAttempts:    1,
		breakerThreshold: 5,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	// Step 1: mock gateway, and the operation index pointed at it.
	h.Backend = newMockGateway(t)

	specPath := gatewaySpecPath()
	h.Index = gateway.NewIndex()
	if err := h.Index.Load(specPath, h.Backend.URL()); err != nil {
		t.Fatalf("load gateway spec: %v", err)
	}
	if err := h.Index.Verify(gateway.RequiredOperations()...); err != nil {
		t.Fatalf("verify gateway spec: %v", err)
	}

	// Step 2: gateway client. Backoff is kept tiny so retry tests run fast.
	gwCfg := config.GatewayConfig{
		BaseURL:  h.Backend.URL(),
		SpecFile: specPath,
		Timeout:  5 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: hc.breakerThreshold,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		Retry: config.RetryConfig{
			MaxAttempts:       hc.retryAttempts,
			BackoffInitial:    2 * time.Millisecond,
			BackoffMultiplier: 2.0,
			BackoffMax:        20 * time.Millisecond,
		},
	}
	h.Client = gateway.NewClient(gwCfg, h.Index)

	// Step 3: token issuer, then config.
	h.issuer = newTokenIssuer(t)

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Identity.Issuer = h.issuer.Issuer()
	cfg.Identity.Audience = h.issuer.Audience()
	cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	cfg.Identity.RequiredRole = hc.requiredRole
	cfg.Gateway = gwCfg
	cfg.Builder.PreviewRowLimit = hc.previewRowLimit
	cfg.Builder.HistoryCapacity = hc.historyCapacity
	h.cfg = cfg

	// Step 4: stores and the session manager.
	h.Store = session.NewMemorySessionStore()
	h.Cache = builder.NewMemoryResultCache(hc.cacheEntries)
	h.Manager = session.NewManager(h.Client, h.Store, h.Cache, session.Config{
		IdleTTL:         hc.idleTTL,
		SweepInterval:   time.Hour,
		PreviewRowLimit: cfg.Builder.PreviewRowLimit,
		HistoryCapacity: cfg.Builder.HistoryCapacity,
		RefreshInterval: cfg.Builder.DefaultRefreshInterval,
	}, zap.NewNop(), nil)
	t.Cleanup(h.Manager.Close)

	// Step 5: router and HTTP server.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour)
	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Sessions:     h.Manager,
		Gateway:      h.Client,
		Quick:        builder.NewQuickRunner(h.Client, zap.NewNop(), nil),
		Ready: observability.ReadinessChecks{
			OperationsIndexed: func() bool { return h.Index.Len() > 0 },
			SessionStore:      h.Store,
			Gateway:           h.Client,
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// gatewaySpecPath resolves the repo's gateway contract relative to this file.
func gatewaySpecPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "api", "orm-gateway.yaml")
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string { return h.server.URL }

// GenerateToken creates a valid JWT for the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that expired in the past.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GenerateTokenWithKeyID creates a JWT whose kid header names the given key.
func (h *TestHarness) GenerateTokenWithKeyID(claims TestClaims, kid string) string {
	return h.issuer.GenerateTokenWithKeyID(claims, kid)
}

// --- HTTP helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodGet, path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPost, path, body, token, nil)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPut, path, body, token, nil)
}

// PATCH performs an authenticated PATCH request with a JSON body.
func (h *TestHarness) PATCH(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPatch, path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodDelete, path, nil, token, nil)
}

// Do performs an arbitrary request against the test server. An empty token
// omits the Authorization header.
func (h *TestHarness) Do(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// ReadBody drains and closes the response body.
func (h *TestHarness) ReadBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return data
}

// ParseJSON decodes the response body into out and closes it.
func (h *TestHarness) ParseJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	data := h.ReadBody(t, resp)
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode response %q: %v", data, err)
	}
}

// AssertStatus checks the response status and fails with the body attached.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body := h.ReadBody(t, resp)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

// AssertJSON checks the status and decodes the body into out.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, wantStatus int, out any) {
	t.Helper()
	if resp.StatusCode != wantStatus {
		body := h.ReadBody(t, resp)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, wantStatus, body)
	}
	h.ParseJSON(t, resp, out)
}

// --- decoded response shapes ---

// SessionEnvelope is the decoded shape of session-state responses.
type SessionEnvelope struct {
	Data struct {
		SessionID string        `json:"session_id"`
		CreatedAt time.Time     `json:"created_at"`
		State     builder.State `json:"state"`
	} `json:"data"`
	Notifications []model.Notification `json:"notifications"`
}

// errorBody is the decoded shape of error responses.
type errorBody struct {
	Error model.ErrorEnvelope `json:"error"`
}

// ParseSession asserts the status and decodes the session envelope.
func (h *TestHarness) ParseSession(t *testing.T, resp *http.Response, wantStatus int) SessionEnvelope {
	t.Helper()
	var env SessionEnvelope
	h.AssertJSON(t, resp, wantStatus, &env)
	return env
}

// AssertErrorCode checks the status and the envelope error code.
func (h *TestHarness) AssertErrorCode(t *testing.T, resp *http.Response, wantStatus int, wantCode string) errorBody {
	t.Helper()
	var body errorBody
	h.AssertJSON(t, resp, wantStatus, &body)
	if body.Error.Code != wantCode {
		t.Errorf("error code = %q, want %q", body.Error.Code, wantCode)
	}
	return body
}

// --- builder session helpers ---

// CreateSession opens a builder session and returns its id.
func (h *TestHarness) CreateSession(t *testing.T, token string) string {
	t.Helper()
	env := h.ParseSession(t, h.POST("/api/sessions", nil, token), http.StatusCreated)
	if env.Data.SessionID == "" {
		t.Fatal("expected a session id")
	}
	return env.Data.SessionID
}

// BuildSession opens a session, selects the Contact model, and adds the
// given fields. It is the shared preamble of the execution flows.
func (h *TestHarness) BuildSession(t *testing.T, token string, fields ...string) string {
	t.Helper()
	id := h.CreateSession(t, token)
	h.ParseSession(t, h.PUT("/api/sessions/"+id+"/model", map[string]any{"model_id": 1}, token), http.StatusOK)
	for _, f := range fields {
		h.ParseSession(t, h.POST("/api/sessions/"+id+"/fields", map[string]any{"name": f}, token), http.StatusOK)
	}
	return id
}

// hasNotification reports whether a notification with the given severity
// contains the substring.
func hasNotification(notes []model.Notification, severity, substr string) bool {
	for _, n := range notes {
		if n.Severity == severity && strings.Contains(n.Message, substr) {
			return true
		}
	}
	return false
}

// --- claim presets ---

// AnalystClaims is the default reporting user.
func AnalystClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-analyst",
		TenantID:  "acme-corp",
		Email:     "analyst@acme.example.com",
		Roles:     []string{"report_user"},
	}
}

// ManagerClaims is a second user in the same tenant.
func ManagerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-manager",
		TenantID:  "acme-corp",
		Email:     "manager@acme.example.com",
		Roles:     []string{"report_manager"},
	}
}

// OutsiderClaims is a user in an unrelated tenant.
func OutsiderClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-outsider",
		TenantID:  "globex",
		Email:     "outsider@globex.example.com",
		Roles:     []string{"report_user"},
	}
}
