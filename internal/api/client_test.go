package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/dumfing/skirmish/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected baseURL=http://localhost:5000, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
	if c.maxTries != 3 {
		t.Errorf("expected 3 tries by default, got %d", c.maxTries)
	}
	if c := New("http://x", "", WithMaxTries(0)); c.maxTries != 1 {
		t.Errorf("expected at least one try, got %d", c.maxTries)
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := New(server.URL, "").Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if err := New(url, "").Healthcheck(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New(server.URL, "").Healthcheck(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Errorf("expected StatusError 500, got %v", err)
	}
}

type received struct {
	fields  map[string]string
	content string
}

func uploadServer(t *testing.T, got *received) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/rounds/add" {
			t.Errorf("expected path /api/v1/rounds/add, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		got.fields = map[string]string{}
		for _, k := range []string{"secret", "filename", "levelName", "serverName", "roundDuration", "tag"} {
			got.fields[k] = r.FormValue(k)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("failed to get file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		b, _ := io.ReadAll(file)
		got.content = string(b)

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func TestUpload_Success(t *testing.T) {
	var got received
	server := uploadServer(t, &got)
	path := writeTestFile(t, "round_7.json.gz", "test content")

	c := New(server.URL, "mysecret")
	meta := core.UploadMetadata{
		LevelName:     "Fort Hill",
		ServerName:    "arena",
		RoundDuration: 312.5,
		Tag:           "ctf",
	}
	if err := c.Upload(context.Background(), path, meta); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	want := map[string]string{
		"secret":        "mysecret",
		"filename":      "round_7.json.gz",
		"levelName":     "Fort Hill",
		"serverName":    "arena",
		"roundDuration": "312.500",
		"tag":           "ctf",
	}
	for k, v := range want {
		if got.fields[k] != v {
			t.Errorf("expected %s=%q, got %q", k, v, got.fields[k])
		}
	}
	if got.content != "test content" {
		t.Errorf("expected file content 'test content', got '%s'", got.content)
	}
}

func TestUpload_FileNotFound(t *testing.T) {
	c := New("http://localhost:5000", "secret")
	if err := c.Upload(context.Background(), "/nonexistent/file.json.gz", core.UploadMetadata{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestUpload_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "bad secret", http.StatusForbidden)
	}))
	defer server.Close()

	path := writeTestFile(t, "test.json.gz", "content")
	err := New(server.URL, "wrong-secret").Upload(context.Background(), path, core.UploadMetadata{})

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("expected StatusError 403, got %v", err)
	}
	if se.Body != "bad secret" {
		t.Errorf("expected body in error, got %q", se.Body)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeTestFile(t, "round.json.gz", "content")
	if err := New(server.URL, "s", WithMaxTries(3)).Upload(context.Background(), path, core.UploadMetadata{}); err != nil {
		t.Fatalf("expected success on third try, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestUpload_GivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	path := writeTestFile(t, "round.json.gz", "content")
	err := New(server.URL, "s", WithMaxTries(2)).Upload(context.Background(), path, core.UploadMetadata{})
	if err == nil {
		t.Fatal("expected error after retries")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

type fakeExport struct{ path string }

func (f fakeExport) GetExportedFilePath() string { return f.path }
func (f fakeExport) GetExportMetadata() core.UploadMetadata {
	return core.UploadMetadata{LevelName: "Fort Hill"}
}

func TestUploadFrom(t *testing.T) {
	var got received
	server := uploadServer(t, &got)
	c := New(server.URL, "")

	if err := c.UploadFrom(context.Background(), fakeExport{}); !errors.Is(err, ErrNothingToUpload) {
		t.Errorf("expected ErrNothingToUpload, got %v", err)
	}

	path := writeTestFile(t, "round.json", "{}")
	if err := c.UploadFrom(context.Background(), fakeExport{path: path}); err != nil {
		t.Fatalf("UploadFrom failed: %v", err)
	}
	if got.fields["levelName"] != "Fort Hill" {
		t.Errorf("expected levelName=Fort Hill, got %q", got.fields["levelName"])
	}
}
