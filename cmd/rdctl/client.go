package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/model"
)

// apiClient is a thin client for the reportdeck HTTP API.
type apiClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: timeout},
	}
}

// sessionPayload is the response envelope shared by all session operations.
type sessionPayload struct {
	Data struct {
		SessionID string        `json:"session_id"`
		State     builder.State `json:"state"`
	} `json:"data"`
	Notifications []model.Notification `json:"notifications"`
}

// do sends one request and decodes the response into out when non-nil.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doRaw sends one request and returns the raw response body.
func (c *apiClient) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error model.ErrorEnvelope `json:"error"`
		}
		if jerr := json.Unmarshal(raw, &envelope); jerr == nil && envelope.Error.Code != "" {
			return nil, fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return raw, nil
}

func (c *apiClient) listModels(ctx context.Context) ([]model.ModelDescriptor, error) {
	var resp struct {
		Data struct {
			Models []model.ModelDescriptor `json:"models"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Models, nil
}

// resolveModel finds a model descriptor by technical name.
func (c *apiClient) resolveModel(ctx context.Context, name string) (model.ModelDescriptor, error) {
	models, err := c.listModels(ctx)
	if err != nil {
		return model.ModelDescriptor{}, err
	}
	for _, m := range models {
		if m.Model == name {
			return m, nil
		}
	}
	available := make([]string, len(models))
	for i, m := range models {
		available[i] = m.Model
	}
	return model.ModelDescriptor{}, fmt.Errorf("model %q is not available (have: %s)", name, strings.Join(available, ", "))
}

func (c *apiClient) createSession(ctx context.Context) (*sessionPayload, error) {
	var resp sessionPayload
	if err := c.do(ctx, http.MethodPost, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) destroySession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+id, nil, nil)
}

func (c *apiClient) setModel(ctx context.Context, id string, modelID int64) (*sessionPayload, error) {
	var resp sessionPayload
	err := c.do(ctx, http.MethodPut, "/api/sessions/"+id+"/model", map[string]any{"model_id": modelID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) addField(ctx context.Context, id, name string) (*sessionPayload, error) {
	var resp sessionPayload
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/fields", map[string]any{"name": name}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// addFilter creates an empty filter row and returns its id.
func (c *apiClient) addFilter(ctx context.Context, id string) (string, error) {
	var resp struct {
		Data struct {
			Filter model.FilterSpec `json:"filter"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/filters", nil, &resp); err != nil {
		return "", err
	}
	return resp.Data.Filter.ID, nil
}

func (c *apiClient) updateFilter(ctx context.Context, id, filterID string, patch builder.FilterPatch) (*sessionPayload, error) {
	var resp sessionPayload
	err := c.do(ctx, http.MethodPatch, "/api/sessions/"+id+"/filters/"+filterID, patch, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) execute(ctx context.Context, id string, preview bool) (*sessionPayload, error) {
	var resp sessionPayload
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/execute", map[string]any{"preview": preview}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// exportLink asks the backend for a download URL in the given format.
func (c *apiClient) exportLink(ctx context.Context, id, format string) (string, error) {
	var resp struct {
		Data struct {
			DownloadURL string `json:"download_url"`
		} `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/export", map[string]any{"format": format}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Data.DownloadURL, nil
}

func (c *apiClient) saveTemplate(ctx context.Context, id, name string) (int64, error) {
	var resp struct {
		Data struct {
			ReportID int64 `json:"report_id"`
		} `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/save-template", map[string]any{"name": name}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Data.ReportID, nil
}

// resultsJSON downloads the executed result document.
func (c *apiClient) resultsJSON(ctx context.Context, id string) ([]byte, error) {
	return c.doRaw(ctx, http.MethodGet, "/api/sessions/"+id+"/results.json", nil)
}

// settingsJSON downloads the session's settings document.
func (c *apiClient) settingsJSON(ctx context.Context, id string) ([]byte, error) {
	return c.doRaw(ctx, http.MethodGet, "/api/sessions/"+id+"/settings", nil)
}

func (c *apiClient) quickReport(ctx context.Context, req builder.QuickReportRequest) (*builder.QuickReportResult, error) {
	var resp struct {
		Data builder.QuickReportResult `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/reports/quick", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
