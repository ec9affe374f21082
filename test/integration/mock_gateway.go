package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/calade/reportdeck/internal/gateway"
)

// MockGateway is a configurable stand-in for the ORM gateway. Out of the box
// every operation serves a small seeded catalog (models, fields, result rows)
// so ordinary flows need no setup; tests that exercise failure paths queue
// their own responses per operation. Every request is recorded for assertion.
type MockGateway struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	queues   map[string][]*mockResponse
	consumed map[string]int
	received map[string][]*RecordedRequest
	reports  map[int64]string
	nextID   int64
}

// mockResponse is one canned reply in an operation's queue.
type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// RecordedRequest captures one request received by the mock gateway.
type RecordedRequest struct {
	Method     string
	Path       string
	PathParams map[string]string
	Query      url.Values
	Headers    http.Header
	Body       map[string]any
	RawBody    []byte
	ReceivedAt time.Time
}

func newMockGateway(t *testing.T) *MockGateway {
	t.Helper()

	mg := &MockGateway{
		t:        t,
		queues:   make(map[string][]*mockResponse),
		consumed: make(map[string]int),
		received: make(map[string][]*RecordedRequest),
		reports:  make(map[int64]string),
		nextID:   500,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /report_builder/models", mg.handle(gateway.OpListModels, nil, mg.serveModels))
	mux.HandleFunc("GET /report_builder/models/{model}/fields", mg.handle(gateway.OpGetModelFields, []string{"model"}, mg.serveFields))
	mux.HandleFunc("POST /report_builder/execute_report", mg.handle(gateway.OpExecuteReport, nil, mg.serveExecute))
	mux.HandleFunc("POST /report_builder/reports", mg.handle(gateway.OpCreateReport, nil, mg.serveCreate))
	mux.HandleFunc("POST /report_builder/validate_filters", mg.handle(gateway.OpValidateFilters, nil, mg.serveValidate))
	mux.HandleFunc("GET /report_builder/export/{reportID}/{format}", mg.handle(gateway.OpExportDownload, []string{"reportID", "format"}, mg.serveDownload))

	mg.server = httptest.NewServer(mux)
	t.Cleanup(mg.server.Close)
	return mg
}

// URL returns the mock server's base URL.
func (mg *MockGateway) URL() string { return mg.server.URL }

// handle wraps one operation: record the request, then serve either the next
// queued response or the seeded default.
func (mg *MockGateway) handle(operationID string, pathParams []string, fallback func(http.ResponseWriter, *RecordedRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			PathParams: make(map[string]string, len(pathParams)),
			Query:      r.URL.Query(),
			Headers:    r.Header.Clone(),
			ReceivedAt: time.Now(),
		}
		for _, p := range pathParams {
			rec.PathParams[p] = r.PathValue(p)
		}
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			rec.RawBody = raw
			if len(raw) > 0 {
				var parsed map[string]any
				if json.Unmarshal(raw, &parsed) == nil {
					rec.Body = parsed
				}
			}
		}

		mg.mu.Lock()
		mg.received[operationID] = append(mg.received[operationID], rec)
		resp := mg.nextQueuedLocked(operationID)
		mg.mu.Unlock()

		if resp == nil {
			fallback(w, rec)
			return
		}
		if resp.delay > 0 {
			time.Sleep(resp.delay)
		}
		if resp.connError {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		writeMockJSON(w, resp.status, resp.body)
	}
}

// nextQueuedLocked consumes the operation's queue in order; once drained,
// the last queued response repeats.
func (mg *MockGateway) nextQueuedLocked(operationID string) *mockResponse {
	queue := mg.queues[operationID]
	if len(queue) == 0 {
		return nil
	}
	i := mg.consumed[operationID]
	if i >= len(queue) {
		return queue[len(queue)-1]
	}
	mg.consumed[operationID]++
	return queue[i]
}

// --- seeded defaults ---

// SeedModels is the model catalog served for listModels.
func SeedModels() []map[string]any {
	return []map[string]any{
		{"id": 1, "name": "Contact", "model": "res.partner"},
		{"id": 2, "name": "Sales Order", "model": "sale.order"},
		{"id": 3, "name": "Product", "model": "product.template"},
		{"id": 4, "name": "Lead/Opportunity", "model": "crm.lead"},
	}
}

// SeedFields returns the field catalog for one seeded model in the gateway's
// wire shape, with the display label under "string".
func SeedFields(modelName string) []map[string]any {
	switch modelName {
	case "res.partner":
		return []map[string]any{
			{"name": "name", "string": "Name", "type": "char"},
			{"name": "email", "string": "Email", "type": "char"},
			{"name": "phone", "string": "Phone", "type": "char"},
			{"name": "city", "string": "City", "type": "char"},
			{"name": "country_id", "string": "Country", "type": "many2one"},
			{"name": "customer_rank", "string": "Customer Rank", "type": "integer"},
			{"name": "create_date", "string": "Created on", "type": "datetime"},
			{"name": "active", "string": "Active", "type": "boolean"},
		}
	case "sale.order":
		return []map[string]any{
			{"name": "name", "string": "Order Reference", "type": "char"},
			{"name": "partner_id", "string": "Customer", "type": "many2one"},
			{"name": "date_order", "string": "Order Date", "type": "datetime"},
			{"name": "amount_total", "string": "Total", "type": "monetary"},
			{"name": "state", "string": "Status", "type": "selection"},
		}
	case "product.template":
		return []map[string]any{
			{"name": "name", "string": "Name", "type": "char"},
			{"name": "list_price", "string": "Sales Price", "type": "float"},
			{"name": "type", "string": "Product Type", "type": "selection"},
		}
	case "crm.lead":
		return []map[string]any{
			{"name": "name", "string": "Opportunity", "type": "char"},
			{"name": "expected_revenue", "string": "Expected Revenue", "type": "monetary"},
		}
	default:
		return nil
	}
}

// SeedRows returns the result rows served when executing a report over one
// seeded model.
func SeedRows(modelName string) []map[string]any {
	switch modelName {
	case "res.partner":
		return []map[string]any{
			{
				"name": "Azure Interior", "email": "azure.interior24@example.com",
				"phone": "(870) 931-0505", "city": "Fremont",
				"country_id": []any{233, "United States"}, "customer_rank": 2,
				"create_date": "2024-03-14 09:21:44", "active": true,
			},
			{
				"name": "Deco Addict", "email": "deco.addict82@example.com",
				"phone": "(603) 996-3829", "city": "Pleasant Hill",
				"country_id": []any{233, "United States"}, "customer_rank": 1,
				"create_date": "2024-05-02 16:02:11", "active": true,
			},
			{
				"name": "Gemini Furniture", "email": "gemini.furniture39@example.com",
				"phone": false, "city": "Fairfield",
				"country_id": []any{233, "United States"}, "customer_rank": 0,
				"create_date": "2024-06-30 11:40:09", "active": true,
			},
		}
	case "sale.order":
		return []map[string]any{
			{
				"name": "S00042", "partner_id": []any{1, "Azure Interior"},
				"date_order": "2024-07-18 10:12:33", "amount_total": 1173.5, "state": "sale",
			},
			{
				"name": "S00051", "partner_id": []any{2, "Deco Addict"},
				"date_order": "2024-07-21 14:45:01", "amount_total": 2208.0, "state": "draft",
			},
		}
	case "product.template":
		return []map[string]any{
			{"name": "Corner Desk Right Sit", "list_price": 147.0, "type": "consu"},
		}
	default:
		return nil
	}
}

func (mg *MockGateway) serveModels(w http.ResponseWriter, _ *RecordedRequest) {
	writeMockJSON(w, http.StatusOK, SeedModels())
}

func (mg *MockGateway) serveFields(w http.ResponseWriter, rec *RecordedRequest) {
	fields := SeedFields(rec.PathParams["model"])
	if fields == nil {
		writeMockJSON(w, http.StatusOK, FailureEnvelope("Model not found: "+rec.PathParams["model"]))
		return
	}
	writeMockJSON(w, http.StatusOK, FieldsEnvelope(fields))
}

func (mg *MockGateway) serveExecute(w http.ResponseWriter, rec *RecordedRequest) {
	reportID, _ := rec.Body["report_id"].(float64)

	mg.mu.Lock()
	modelName, known := mg.reports[int64(reportID)]
	mg.mu.Unlock()
	if !known {
		writeMockJSON(w, http.StatusOK, FailureEnvelope(fmt.Sprintf("Report %d does not exist", int64(reportID))))
		return
	}

	rows := SeedRows(modelName)
	total := len(rows)
	if limit, ok := rec.Body["limit"].(float64); ok && limit > 0 && int(limit) < len(rows) {
		rows = rows[:int(limit)]
	}
	writeMockJSON(w, http.StatusOK, ExecuteEnvelope(rows, total))
}

func (mg *MockGateway) serveCreate(w http.ResponseWriter, rec *RecordedRequest) {
	modelID, _ := rec.Body["model_id"].(float64)
	modelName := ""
	for _, m := range SeedModels() {
		if id, _ := m["id"].(int); int64(id) == int64(modelID) {
			modelName, _ = m["model"].(string)
		}
	}

	mg.mu.Lock()
	mg.nextID++
	id := mg.nextID
	mg.reports[id] = modelName
	mg.mu.Unlock()

	writeMockJSON(w, http.StatusOK, CreateEnvelope(id))
}

func (mg *MockGateway) serveValidate(w http.ResponseWriter, rec *RecordedRequest) {
	results := []map[string]any{}
	if raw, ok := rec.Body["filters"].([]any); ok {
		for _, f := range raw {
			fm, _ := f.(map[string]any)
			field, _ := fm["field"].(string)
			results = append(results, map[string]any{"field": field, "valid": true})
		}
	}
	writeMockJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

func (mg *MockGateway) serveDownload(w http.ResponseWriter, rec *RecordedRequest) {
	filename := fmt.Sprintf("report_%s.%s", rec.PathParams["reportID"], rec.PathParams["format"])
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("PK\x03\x04 mock export payload"))
}

func writeMockJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// --- envelope fixtures ---

// FieldsEnvelope wraps a field list in the gateway success envelope.
func FieldsEnvelope(fields []map[string]any) map[string]any {
	return map[string]any{"success": true, "fields": fields}
}

// ExecuteEnvelope wraps result rows in the gateway execution envelope.
func ExecuteEnvelope(rows []map[string]any, count int) map[string]any {
	return map[string]any{"success": true, "data": rows, "count": count}
}

// CreateEnvelope is a successful report-creation reply.
func CreateEnvelope(reportID int64) map[string]any {
	return map[string]any{"success": true, "report_id": reportID}
}

// FailureEnvelope is the backend's in-band failure: HTTP 200 with
// success=false and an error message.
func FailureEnvelope(message string) map[string]any {
	return map[string]any{"success": false, "error": message}
}

// --- response queueing ---

// OperationMock queues canned responses for one operation.
type OperationMock struct {
	mg          *MockGateway
	operationID string
}

// OnOperation starts queueing responses for the given operation. Queued
// responses are served in order; the last one repeats once the queue drains.
func (mg *MockGateway) OnOperation(operationID string) *OperationMock {
	return &OperationMock{mg: mg, operationID: operationID}
}

func (om *OperationMock) enqueue(resp *mockResponse) *OperationMock {
	om.mg.mu.Lock()
	defer om.mg.mu.Unlock()
	om.mg.queues[om.operationID] = append(om.mg.queues[om.operationID], resp)
	return om
}

// RespondWith queues a JSON response with the given status and body.
func (om *OperationMock) RespondWith(status int, body any) *OperationMock {
	return om.enqueue(&mockResponse{status: status, body: body})
}

// RespondWithFailure queues the backend's in-band failure shape: HTTP 200
// with success=false.
func (om *OperationMock) RespondWithFailure(message string) *OperationMock {
	return om.RespondWith(http.StatusOK, FailureEnvelope(message))
}

// RespondWithDelay queues a response that sleeps before replying.
func (om *OperationMock) RespondWithDelay(delay time.Duration, status int, body any) *OperationMock {
	return om.enqueue(&mockResponse{status: status, body: body, delay: delay})
}

// RespondWithConnectionError queues a reply that drops the connection
// without writing a response.
func (om *OperationMock) RespondWithConnectionError() *OperationMock {
	return om.enqueue(&mockResponse{connError: true})
}

// ResetOperation clears one operation's queue and recorded requests,
// returning it to the seeded defaults.
func (mg *MockGateway) ResetOperation(operationID string) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	delete(mg.queues, operationID)
	delete(mg.consumed, operationID)
	delete(mg.received, operationID)
}

// Reset clears all queues and recorded requests.
func (mg *MockGateway) Reset() {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.queues = make(map[string][]*mockResponse)
	mg.consumed = make(map[string]int)
	mg.received = make(map[string][]*RecordedRequest)
}

// --- assertions ---

// CallCount returns how many requests the operation has received.
func (mg *MockGateway) CallCount(operationID string) int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.received[operationID])
}

// LastRequest returns the most recent request for the operation, or nil.
func (mg *MockGateway) LastRequest(operationID string) *RecordedRequest {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	reqs := mg.received[operationID]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// AllRequests returns a copy of every recorded request for the operation.
func (mg *MockGateway) AllRequests(operationID string) []*RecordedRequest {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return append([]*RecordedRequest(nil), mg.received[operationID]...)
}

// AssertCalled fails the test unless the operation was called exactly n times.
func (mg *MockGateway) AssertCalled(t *testing.T, operationID string, n int) {
	t.Helper()
	if got := mg.CallCount(operationID); got != n {
		t.Errorf("operation %s called %d times, want %d", operationID, got, n)
	}
}

// AssertNotCalled fails the test if the operation received any request.
func (mg *MockGateway) AssertNotCalled(t *testing.T, operationID string) {
	t.Helper()
	mg.AssertCalled(t, operationID, 0)
}
