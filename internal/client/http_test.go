package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	rawPath     string // URL-encoded path (for testing PathEscape)
	query       string
	body        string
	contentType string
	auth        string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(t *testing.T, h http.Handler, token string) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, token)
}

const channelJSON = `{
	"id": "G123",
	"name": "acme-support",
	"created_at": 1700000000,
	"owner_user_id": "U1",
	"organization": "Acme",
	"expires_at": 1701209600,
	"reminded": false
}`

// --- ListChannels ---

func TestHTTPClient_ListChannels(t *testing.T) {
	tests := []struct {
		name      string
		req       *ListChannelsRequest
		wantQuery string
	}{
		{name: "no filters", req: &ListChannelsRequest{}, wantQuery: ""},
		{name: "search and page", req: &ListChannelsRequest{Search: "acme|widgets", Limit: 5, Offset: 10}, wantQuery: "limit=5&offset=10&search=acme%7Cwidgets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{responseBody: `{"channels": [` + channelJSON + `], "total": 1}`}
			c := newTestClient(t, h, "")

			resp, err := c.ListChannels(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("ListChannels() error = %v", err)
			}
			if h.method != http.MethodGet || h.path != "/v1/channels" {
				t.Errorf("request = %s %s", h.method, h.path)
			}
			if h.query != tt.wantQuery {
				t.Errorf("query = %q, want %q", h.query, tt.wantQuery)
			}
			if resp.Total != 1 || len(resp.Channels) != 1 || resp.Channels[0].Name != "acme-support" {
				t.Errorf("unexpected response: %+v", resp)
			}
		})
	}
}

// --- GetChannel ---

func TestHTTPClient_GetChannel(t *testing.T) {
	h := &testHandler{responseBody: channelJSON}
	c := newTestClient(t, h, "")

	ch, err := c.GetChannel(context.Background(), "G123")
	if err != nil {
		t.Fatalf("GetChannel() error = %v", err)
	}
	if h.method != http.MethodGet || h.path != "/v1/channels/G123" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if ch.ID != "G123" || ch.Organization != "Acme" || ch.ExpiresAt != 1701209600 {
		t.Errorf("unexpected channel: %+v", ch)
	}
}

func TestHTTPClient_GetChannel_URLEscaping(t *testing.T) {
	h := &testHandler{responseBody: channelJSON}
	c := newTestClient(t, h, "")

	if _, err := c.GetChannel(context.Background(), "a/b"); err != nil {
		t.Fatalf("GetChannel() error = %v", err)
	}
	if h.rawPath != "/v1/channels/a%2Fb" {
		t.Errorf("raw path = %q, want /v1/channels/a%%2Fb", h.rawPath)
	}
}

func TestHTTPClient_GetChannel_NotFound(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNotFound, responseBody: `{"error": "channel not found"}`}
	c := newTestClient(t, h, "")

	_, err := c.GetChannel(context.Background(), "G404")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "channel not found" {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- ExtendChannel ---

func TestHTTPClient_ExtendChannel(t *testing.T) {
	h := &testHandler{responseBody: channelJSON}
	c := newTestClient(t, h, "")

	if _, err := c.ExtendChannel(context.Background(), "G123", 7); err != nil {
		t.Fatalf("ExtendChannel() error = %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/channels/G123/extend" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.body != `{"days":7}` {
		t.Errorf("body = %s", h.body)
	}
	if h.contentType != "application/json" {
		t.Errorf("content type = %q", h.contentType)
	}
}

// --- SetExpiry ---

func TestHTTPClient_SetExpiry(t *testing.T) {
	tests := []struct {
		name     string
		req      *SetExpiryRequest
		wantBody string
	}{
		{name: "date", req: &SetExpiryRequest{Date: "2030-01-01"}, wantBody: `{"date":"2030-01-01"}`},
		{name: "epoch", req: &SetExpiryRequest{ExpiresAt: 1900000000, Actor: "ops"}, wantBody: `{"expires_at":1900000000,"actor":"ops"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{responseBody: channelJSON}
			c := newTestClient(t, h, "")
			if _, err := c.SetExpiry(context.Background(), "G123", tt.req); err != nil {
				t.Fatalf("SetExpiry() error = %v", err)
			}
			if h.method != http.MethodPut || h.path != "/v1/channels/G123/expiry" {
				t.Errorf("request = %s %s", h.method, h.path)
			}
			if h.body != tt.wantBody {
				t.Errorf("body = %s, want %s", h.body, tt.wantBody)
			}
		})
	}
}

// --- DeleteChannel ---

func TestHTTPClient_DeleteChannel(t *testing.T) {
	tests := []struct {
		name      string
		archive   bool
		wantQuery string
	}{
		{name: "forget", archive: false, wantQuery: ""},
		{name: "archive", archive: true, wantQuery: "archive=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{statusCode: http.StatusNoContent}
			c := newTestClient(t, h, "")
			if err := c.DeleteChannel(context.Background(), "G123", tt.archive); err != nil {
				t.Fatalf("DeleteChannel() error = %v", err)
			}
			if h.method != http.MethodDelete || h.path != "/v1/channels/G123" || h.query != tt.wantQuery {
				t.Errorf("request = %s %s?%s", h.method, h.path, h.query)
			}
		})
	}
}

// --- Sweep ---

func TestHTTPClient_Sweep(t *testing.T) {
	h := &testHandler{responseBody: `{"scanned": 4, "expired": 1, "reminded": 2, "failed": 0}`}
	c := newTestClient(t, h, "")

	report, err := c.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/sweep" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if report.Scanned != 4 || report.Expired != 1 || report.Reminded != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
}

// --- Export / Import ---

func TestHTTPClient_Export(t *testing.T) {
	const export = `{"version":"1","type":"header"}` + "\n" + `{"type":"channel","data":{"id":"G1"}}` + "\n"
	h := &testHandler{responseBody: export}
	c := newTestClient(t, h, "tok")

	var buf bytes.Buffer
	if err := c.Export(context.Background(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if h.path != "/v1/export" || h.auth != "Bearer tok" {
		t.Errorf("request path=%s auth=%q", h.path, h.auth)
	}
	if buf.String() != export {
		t.Errorf("export = %q", buf.String())
	}
}

func TestHTTPClient_Import(t *testing.T) {
	h := &testHandler{responseBody: `{"inserted": 3, "skipped": 1}`}
	c := newTestClient(t, h, "")

	resp, err := c.Import(context.Background(), strings.NewReader("line\n"))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/import" || h.body != "line\n" {
		t.Errorf("request = %s %s %q", h.method, h.path, h.body)
	}
	if h.contentType != ndjsonContentType {
		t.Errorf("content type = %q", h.contentType)
	}
	if resp.Inserted != 3 || resp.Skipped != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHTTPClient_Import_BadRequest(t *testing.T) {
	h := &testHandler{statusCode: http.StatusBadRequest, responseBody: `{"error": "line 2: invalid record"}`}
	c := newTestClient(t, h, "")

	_, err := c.Import(context.Background(), strings.NewReader("x"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}

// --- Health ---

func TestHTTPClient_Health(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "ok"}`}
	c := newTestClient(t, h, "")

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if status != "ok" {
		t.Errorf("status = %q, want ok", status)
	}
}

// --- Errors ---

func TestHTTPClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "json error", status: http.StatusConflict, body: `{"error": "channel already exists"}`, wantMsg: "channel already exists"},
		{name: "plain text", status: http.StatusBadGateway, body: "upstream down", wantMsg: "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{statusCode: tt.status, responseBody: tt.body}
			c := newTestClient(t, h, "")
			_, err := c.Health(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.wantMsg {
				t.Errorf("error = %+v", apiErr)
			}
			if IsNotFound(err) {
				t.Error("IsNotFound() = true")
			}
		})
	}
}

func TestHTTPClient_AuthHeader(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "ok"}`}
	c := newTestClient(t, h, "secret")
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.auth != "Bearer secret" {
		t.Errorf("Authorization = %q", h.auth)
	}

	h2 := &testHandler{responseBody: `{"status": "ok"}`}
	c2 := newTestClient(t, h2, "")
	if _, err := c2.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h2.auth != "" {
		t.Errorf("Authorization = %q, want none", h2.auth)
	}
}

// --- Close ---

func TestHTTPClient_Close(t *testing.T) {
	c := NewHTTPClient("http://localhost:9999", "")
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

// --- NewHTTPClient base URL trimming ---

func TestNewHTTPClient_TrimsTrailingSlash(t *testing.T) {
	c := NewHTTPClient("http://localhost:8080/", "")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want 'http://localhost:8080'", c.baseURL)
	}
}

// --- Concurrent requests ---

func TestHTTPClient_ConcurrentRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := c.Health(context.Background())
			errs <- err
		}()
	}

	for i := 0; i < 10; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent Health() error = %v", err)
		}
	}
}
