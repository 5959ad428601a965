package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/chanbot/internal/lifecycle"
	"github.com/alfredjeanlab/chanbot/internal/model"
)

const ndjsonContentType = "application/x-ndjson"

// HTTPClient implements AdminClient using the chanbot HTTP/JSON admin API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ AdminClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Channels ---

func (c *HTTPClient) ListChannels(ctx context.Context, req *ListChannelsRequest) (*ListChannelsResponse, error) {
	q := url.Values{}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	path := "/v1/channels"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListChannelsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	var ch model.Channel
	if err := c.doJSON(ctx, http.MethodGet, "/v1/channels/"+url.PathEscape(id), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *HTTPClient) ExtendChannel(ctx context.Context, id string, days int) (*model.Channel, error) {
	body := map[string]int{"days": days}
	var ch model.Channel
	if err := c.doJSON(ctx, http.MethodPost, "/v1/channels/"+url.PathEscape(id)+"/extend", body, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *HTTPClient) SetExpiry(ctx context.Context, id string, req *SetExpiryRequest) (*model.Channel, error) {
	var ch model.Channel
	if err := c.doJSON(ctx, http.MethodPut, "/v1/channels/"+url.PathEscape(id)+"/expiry", req, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *HTTPClient) DeleteChannel(ctx context.Context, id string, archive bool) error {
	path := "/v1/channels/" + url.PathEscape(id)
	if archive {
		path += "?archive=true"
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// --- Lifecycle ---

func (c *HTTPClient) Sweep(ctx context.Context) (*lifecycle.Report, error) {
	var report lifecycle.Report
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sweep", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// --- Backup ---

// Export copies the server's JSONL export to w.
func (c *HTTPClient) Export(ctx context.Context, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/v1/export", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading export: %w", err)
	}
	return nil
}

// Import uploads a JSONL export read from r.
func (c *HTTPClient) Import(ctx context.Context, r io.Reader) (*ImportResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/import", r, ndjsonContentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var out ImportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// do sends a request with an optional raw body.
func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	return resp, nil
}

// checkStatus turns an error status into an *APIError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	respBody, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, bodyReader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 204 No Content is success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := checkStatus(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
