// Package cliclient talks to a running connresult daemon for CLI commands.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/classify"
	"github.com/smart-mcp-proxy/connresult/internal/contracts"
	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
)

// Client provides HTTP API access for CLI commands.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// APIError is a failed API call. StatusCode is the HTTP status and Message
// the error text from the response envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new CLI HTTP client. endpoint is a base URL or a bare
// host:port. logger may be nil.
func NewClient(endpoint string, logger *zap.SugaredLogger) *Client {
	baseURL := strings.TrimRight(endpoint, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// do sends a request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := reqcontext.GetCorrelationID(ctx); id != "" {
		req.Header.Set(reqcontext.CorrelationIDHeader, id)
	}

	if c.logger != nil {
		c.logger.Debugw("Calling daemon API", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call daemon API: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

// Ping checks that the daemon is up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Codes fetches the error-code taxonomy.
func (c *Client) Codes(ctx context.Context) ([]contracts.CodeInfo, error) {
	var resp contracts.CodesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/codes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Codes, nil
}

// Report submits an attempt report for classification.
func (c *Client) Report(ctx context.Context, report classify.Report) (*contracts.ReportResponse, error) {
	var resp contracts.ReportResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/reports", report, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListResolutions lists stored resolutions, optionally filtered by state and
// service.
func (c *Client) ListResolutions(ctx context.Context, state, service string) ([]contracts.Resolution, error) {
	query := url.Values{}
	if state != "" {
		query.Set("state", state)
	}
	if service != "" {
		query.Set("service", service)
	}
	path := "/api/v1/resolutions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp contracts.ResolutionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Resolutions, nil
}

// GetResolution fetches one stored resolution.
func (c *Client) GetResolution(ctx context.Context, token string) (*contracts.Resolution, error) {
	var resp contracts.Resolution
	if err := c.do(ctx, http.MethodGet, "/api/v1/resolutions/"+url.PathEscape(token), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartResolution dispatches a stored resolution on the daemon's host.
func (c *Client) StartResolution(ctx context.Context, token string, requestID int) (*contracts.Resolution, error) {
	var resp contracts.Resolution
	body := contracts.StartRequest{RequestID: requestID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/resolutions/"+url.PathEscape(token)+"/start", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelResolution invalidates a pending resolution.
func (c *Client) CancelResolution(ctx context.Context, token string) (*contracts.Resolution, error) {
	var resp contracts.Resolution
	if err := c.do(ctx, http.MethodPost, "/api/v1/resolutions/"+url.PathEscape(token)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete delivers the result code of a finished interactive flow.
func (c *Client) Complete(ctx context.Context, requestID, resultCode int) (*contracts.CompletionResponse, error) {
	var resp contracts.CompletionResponse
	body := contracts.CompletionRequest{RequestID: requestID, ResultCode: resultCode}
	if err := c.do(ctx, http.MethodPost, "/api/v1/completions", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
