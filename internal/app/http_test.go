package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/auth"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/export"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/store"
)

type fakeExporter struct {
	requests []export.Request
	result   *export.Result
	err      error
}

func (f *fakeExporter) Export(_ context.Context, req export.Request) (*export.Result, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func newTestServer(fs *fakeStore, exports exporter) *HTTPServer {
	svc, _ := newTestService(fs)
	return NewHTTPServer(svc, exports, "*", nil)
}

func do(t *testing.T, server *HTTPServer, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set(HeaderUserID, "sam")
		req.Header.Set(HeaderRole, role)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	rr := do(t, newTestServer(&fakeStore{}, nil), http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ok := decode(t, rr)["ok"]; ok != true {
		t.Fatalf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers")
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		ping   error
		status int
		ok     bool
	}{
		{name: "database up", status: http.StatusOK, ok: true},
		{name: "database down", ping: errors.New("connection refused"), status: http.StatusServiceUnavailable, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeStore{pingFn: func(context.Context) error { return tt.ping }}
			rr := do(t, newTestServer(fs, nil), http.MethodGet, "/api/ready", "", nil)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
			if ok := decode(t, rr)["ok"]; ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
		})
	}
}

func TestInterviewRoutesRequireActor(t *testing.T) {
	rr := do(t, newTestServer(&fakeStore{}, nil), http.MethodGet, "/api/interviews/int-1/transcript", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := decode(t, rr)["code"]; code != "UNAUTHORIZED" {
		t.Fatalf("code = %v", code)
	}
}

func TestBearerTokenAuthentication(t *testing.T) {
	verifier, err := auth.NewVerifier("secret", "casebook")
	if err != nil {
		t.Fatal(err)
	}
	svc, _ := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, nil, "*", nil, WithTokenVerifier(verifier))
	token, err := verifier.Issue("sam", "Sam", "commenter", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := verifier.Issue("sam", "Sam", "commenter", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header func(*http.Request)
		want   int
	}{
		{name: "valid token", header: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, want: http.StatusOK},
		{name: "expired token", header: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, want: http.StatusUnauthorized},
		{name: "gateway headers ignored", header: func(r *http.Request) { r.Header.Set(HeaderUserID, "sam") }, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/interviews/int-1/transcript", nil)
			tt.header(req)
			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestTranscriptEndpoint(t *testing.T) {
	rr := do(t, newTestServer(&fakeStore{}, nil), http.MethodGet, "/api/interviews/int-1/transcript", "viewer", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if html, _ := body["html"].(string); !strings.Contains(html, `data-comment-id="c1"`) {
		t.Fatalf("unexpected html: %v", body["html"])
	}
	if _, ok := body["anchored"].([]any); !ok {
		t.Fatalf("anchored should be an array, got %T", body["anchored"])
	}
}

func TestTranscriptNotFound(t *testing.T) {
	fs := &fakeStore{getInterviewFn: func(context.Context, string) (store.Interview, error) {
		return store.Interview{}, fmt.Errorf("get interview: %w", sql.ErrNoRows)
	}}
	rr := do(t, newTestServer(fs, nil), http.MethodGet, "/api/interviews/missing/transcript", "viewer", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestNoteEndpoints(t *testing.T) {
	fs := &fakeStore{getNoteFn: func(_ context.Context, _ string, id string) (store.NoteRecord, error) {
		return store.NoteRecord{ID: id, Author: "sam"}, nil
	}}
	server := newTestServer(fs, nil)

	rr := do(t, server, http.MethodPost, "/api/interviews/int-1/notes", "viewer", map[string]any{"content": "hi"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer create: expected 403, got %d", rr.Code)
	}

	rr = do(t, server, http.MethodPost, "/api/interviews/int-1/notes", "commenter", map[string]any{"content": ""})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty content: expected 400, got %d", rr.Code)
	}

	rr = do(t, server, http.MethodPost, "/api/interviews/int-1/notes", "commenter", map[string]any{
		"content":    "Follow up",
		"commentId":  "c1",
		"anchorText": "revisit pricing",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decode(t, rr); body["commentId"] != "c1" || body["author"] != "sam" {
		t.Fatalf("unexpected note: %v", body)
	}

	rr = do(t, server, http.MethodPut, "/api/interviews/int-1/notes/n1", "commenter", map[string]any{"content": "edited"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, server, http.MethodDelete, "/api/interviews/int-1/notes/n1", "commenter", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	if deleted, _ := decode(t, rr)["deleted"].([]any); len(deleted) != 1 || deleted[0] != "n1" {
		t.Fatalf("unexpected deleted ids: %v", deleted)
	}
}

func TestInvalidBody(t *testing.T) {
	server := newTestServer(&fakeStore{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/interviews/int-1/notes", strings.NewReader("{"))
	req.Header.Set(HeaderUserID, "sam")
	req.Header.Set(HeaderRole, "commenter")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest || decode(t, rr)["code"] != "INVALID_BODY" {
		t.Fatalf("expected INVALID_BODY, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestLayoutEndpoint(t *testing.T) {
	rr := do(t, newTestServer(&fakeStore{}, nil), http.MethodPost, "/api/interviews/int-1/layout", "viewer", map[string]any{
		"container": map[string]any{"top": 0, "left": 0, "width": 600, "height": 400},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateInterviewEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{}, nil)
	rr := do(t, server, http.MethodPost, "/api/interviews", "editor", map[string]any{
		"title":      "Pricing",
		"transcript": json.RawMessage(transcriptJSON),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if id, _ := decode(t, rr)["id"].(string); id == "" {
		t.Fatal("expected an interview id")
	}
}

func TestExportEndpoint(t *testing.T) {
	exports := &fakeExporter{result: &export.Result{
		Data:     []byte("<html></html>"),
		Filename: "Pricing.html",
		MimeType: "text/html; charset=utf-8",
	}}
	server := newTestServer(&fakeStore{}, exports)

	rr := do(t, server, http.MethodGet, "/api/interviews/int-1/export?format=html&notes=false", "viewer", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "Pricing.html") {
		t.Fatalf("content disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	req := exports.requests[0]
	if req.InterviewID != "int-1" || req.Format != export.FormatHTML || req.IncludeNotes {
		t.Fatalf("unexpected request: %+v", req)
	}

	rr = do(t, server, http.MethodGet, "/api/interviews/int-1/export?format=odt", "viewer", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	exports.err = fmt.Errorf("render: %w", export.ErrPDFDependencyMissing)
	rr = do(t, server, http.MethodGet, "/api/interviews/int-1/export?format=pdf", "viewer", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestExportEndpointArchived(t *testing.T) {
	exports := &fakeExporter{result: &export.Result{Filename: "Pricing.pdf", URL: "https://exports.test/x"}}
	rr := do(t, newTestServer(&fakeStore{}, exports), http.MethodGet, "/api/interviews/int-1/export?archive=true", "viewer", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if url := decode(t, rr)["url"]; url != "https://exports.test/x" {
		t.Fatalf("url = %v", url)
	}
}

func TestExportUnavailable(t *testing.T) {
	rr := do(t, newTestServer(&fakeStore{}, nil), http.MethodGet, "/api/interviews/int-1/export", "viewer", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestPreflight(t *testing.T) {
	rr := do(t, newTestServer(&fakeStore{}, nil), http.MethodOptions, "/api/interviews/int-1/notes", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin")
	}
}
