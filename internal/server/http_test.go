package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/chanbot/internal/lifecycle"
	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/platform/platformtest"
	"github.com/alfredjeanlab/chanbot/internal/provision"
	"github.com/alfredjeanlab/chanbot/internal/store"
	"github.com/alfredjeanlab/chanbot/internal/store/filestore"
)

var testNow = time.Unix(1_700_000_000, 0) // 2023-11-14T22:13:20Z

type fixture struct {
	srv     *Server
	fake    *platformtest.Fake
	store   store.Store
	handler http.Handler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := filestore.New(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	fake := platformtest.New()
	fake.AddUser("U1", false)
	fake.AddUser("U2", false)
	fake.NowCreated = testNow.Unix()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return testNow }
	m := lifecycle.NewManager(st, fake, nil, logger, lifecycle.WithClock(clock))
	p := provision.New(fake, st, nil, logger, provision.WithClock(clock))

	opts = append([]Option{WithLogger(logger)}, opts...)
	srv := New(st, fake, m, p, opts...)
	return &fixture{srv: srv, fake: fake, store: st, handler: srv.NewHTTPHandler("")}
}

// seed stores a channel expiring days after testNow and registers it with
// the fake platform.
func (f *fixture) seed(t *testing.T, id, name string, days int) *model.Channel {
	t.Helper()
	c := &model.Channel{
		ID:           id,
		Name:         name,
		CreatedAt:    testNow.Unix() - 30*model.SecondsPerDay,
		OwnerUserID:  "U1",
		Organization: "Acme",
		ExpiresAt:    testNow.Unix() + int64(days)*model.SecondsPerDay,
	}
	if _, err := f.store.InsertChannel(context.Background(), c); err != nil {
		t.Fatalf("InsertChannel(%s): %v", id, err)
	}
	f.fake.AddChannel(platform.Conversation{ID: id, Name: name, Created: c.CreatedAt}, "U1")
	return c
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v; body: %s", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", resp["status"])
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id header")
	}
}

func TestHandleListChannels(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "G2", "beta", 10)
	f.seed(t, "G1", "alpha", 10)
	f.seed(t, "G3", "gamma", 10)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantIDs   []string
		wantTotal int
	}{
		{name: "all sorted by name", query: "", wantCode: http.StatusOK, wantIDs: []string{"G1", "G2", "G3"}, wantTotal: 3},
		{name: "paged", query: "?limit=1&offset=1", wantCode: http.StatusOK, wantIDs: []string{"G2"}, wantTotal: 3},
		{name: "search", query: "?search=alpha%7Cgamma", wantCode: http.StatusOK, wantIDs: []string{"G1", "G3"}, wantTotal: 2},
		{name: "no matches", query: "?search=zeta", wantCode: http.StatusOK, wantIDs: []string{}, wantTotal: 0},
		{name: "bad limit", query: "?limit=abc", wantCode: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/v1/channels"+tt.query, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d; body: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp struct {
				Channels []*model.Channel `json:"channels"`
				Total    int              `json:"total"`
			}
			decodeBody(t, rec, &resp)
			if resp.Channels == nil {
				t.Fatal("channels must be an array, got null")
			}
			if resp.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", resp.Total, tt.wantTotal)
			}
			var ids []string
			for _, c := range resp.Channels {
				ids = append(ids, c.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestHandleGetChannel(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "G1", "alpha", 10)

	rec := f.do(t, http.MethodGet, "/v1/channels/G1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var c model.Channel
	decodeBody(t, rec, &c)
	if c.Name != "alpha" || c.Organization != "Acme" {
		t.Fatalf("unexpected channel: %+v", c)
	}

	rec = f.do(t, http.MethodGet, "/v1/channels/G404", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleExtendChannel(t *testing.T) {
	f := newFixture(t)
	orig := f.seed(t, "G1", "alpha", 3)
	if _, err := f.store.UpdateChannel(context.Background(), "G1", model.RemindedPatch()); err != nil {
		t.Fatalf("mark reminded: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
	}{
		{name: "invalid json", path: "/v1/channels/G1/extend", body: "{", wantCode: http.StatusBadRequest},
		{name: "zero days", path: "/v1/channels/G1/extend", body: map[string]int{"days": 0}, wantCode: http.StatusBadRequest},
		{name: "too many days", path: "/v1/channels/G1/extend", body: map[string]int{"days": model.MaxExpireDays + 1}, wantCode: http.StatusBadRequest},
		{name: "unmanaged", path: "/v1/channels/G404/extend", body: map[string]int{"days": 2}, wantCode: http.StatusNotFound},
		{name: "ok", path: "/v1/channels/G1/extend", body: map[string]int{"days": 2}, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d; body: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}

	c, err := f.store.GetChannel(context.Background(), "G1")
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if want := orig.ExpiresAt + 2*model.SecondsPerDay; c.ExpiresAt != want {
		t.Errorf("expires_at = %d, want %d", c.ExpiresAt, want)
	}
	if c.Reminded {
		t.Error("extend must re-arm the reminder")
	}
}

func TestHandleSetExpiry(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "G1", "alpha", 3)

	date := testNow.AddDate(0, 1, 0).UTC().Format(lifecycle.ExpiryDateLayout)
	dateTS, _ := time.Parse(lifecycle.ExpiryDateLayout, date)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantTS   int64
	}{
		{name: "missing", body: map[string]any{}, wantCode: http.StatusBadRequest},
		{name: "past epoch", body: map[string]any{"expires_at": testNow.Unix() - 1}, wantCode: http.StatusBadRequest},
		{name: "bad date", body: map[string]any{"date": "tomorrow"}, wantCode: http.StatusBadRequest},
		{name: "past date", body: map[string]any{"date": "2001-01-01"}, wantCode: http.StatusBadRequest},
		{name: "epoch", body: map[string]any{"expires_at": testNow.Unix() + 3600}, wantCode: http.StatusOK, wantTS: testNow.Unix() + 3600},
		{name: "date", body: map[string]any{"date": date}, wantCode: http.StatusOK, wantTS: dateTS.Unix()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPut, "/v1/channels/G1/expiry", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d; body: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var c model.Channel
			decodeBody(t, rec, &c)
			if c.ExpiresAt != tt.wantTS {
				t.Errorf("expires_at = %d, want %d", c.ExpiresAt, tt.wantTS)
			}
		})
	}

	rec := f.do(t, http.MethodPut, "/v1/channels/G404/expiry", map[string]any{"date": date})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unmanaged channel, got %d", rec.Code)
	}
}

func TestHandleDeleteChannel(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "G1", "alpha", 3)
	f.seed(t, "G2", "beta", 3)

	rec := f.do(t, http.MethodDelete, "/v1/channels/G404", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/v1/channels/G1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d; body: %s", rec.Code, rec.Body.String())
	}
	if n := f.fake.CallCount("conversations.archive"); n != 0 {
		t.Fatalf("plain delete must not archive, got %d archive calls", n)
	}

	rec = f.do(t, http.MethodDelete, "/v1/channels/G2?archive=true", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d; body: %s", rec.Code, rec.Body.String())
	}
	if n := f.fake.CallCount("conversations.archive"); n != 1 {
		t.Fatalf("expected 1 archive call, got %d", n)
	}

	for _, id := range []string{"G1", "G2"} {
		c, err := f.store.GetChannel(context.Background(), id)
		if err != nil {
			t.Fatalf("GetChannel(%s): %v", id, err)
		}
		if c != nil {
			t.Errorf("record %s should be deleted", id)
		}
	}
}

func TestHandleSweep(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "G1", "expired", -1)
	f.seed(t, "G2", "soon", 3)
	f.seed(t, "G3", "later", 30)

	rec := f.do(t, http.MethodPost, "/v1/sweep", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var report lifecycle.Report
	decodeBody(t, rec, &report)
	if report.Expired != 1 || report.Reminded != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	c, _ := f.store.GetChannel(context.Background(), "G1")
	if c != nil {
		t.Error("expired channel record should be deleted")
	}
	c, _ = f.store.GetChannel(context.Background(), "G2")
	if c == nil || !c.Reminded {
		t.Errorf("channel in reminder window should be marked reminded: %+v", c)
	}
}

func TestHandleExportImport(t *testing.T) {
	src := newFixture(t)
	src.seed(t, "G2", "beta", 3)
	src.seed(t, "G1", "alpha", 3)

	rec := src.do(t, http.MethodGet, "/v1/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}
	export := rec.Body.String()
	if n := strings.Count(strings.TrimSpace(export), "\n") + 1; n != 3 {
		t.Fatalf("expected header plus 2 records, got %d lines:\n%s", n, export)
	}

	dst := newFixture(t)
	dst.seed(t, "G1", "alpha", 3)
	rec = dst.do(t, http.MethodPost, "/v1/import", export)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	decodeBody(t, rec, &resp)
	if resp["inserted"] != 1 || resp["skipped"] != 1 {
		t.Fatalf("unexpected import result: %v", resp)
	}

	rec = dst.do(t, http.MethodPost, "/v1/import", "{not json\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed import, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	h := f.srv.NewHTTPHandler("secret")

	req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{inputError("bad"), http.StatusBadRequest},
		{store.ErrNotFound, http.StatusNotFound},
		{lifecycle.ErrNotManaged, http.StatusNotFound},
		{store.ErrDuplicateKey, http.StatusConflict},
		{store.Unavailable("read", io.ErrUnexpectedEOF), http.StatusServiceUnavailable},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
