package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/stores"
)

func init() {
	gin.SetMode(gin.TestMode)
	aiq.Register_Function("server_echo", func(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
		return aiq.From_Fn("server_echo", "echoes input", func(ctx context.Context, input string) (string, error) {
			return "echo: " + input, nil
		}), nil
	})
}

func newTestServer(t *testing.T, store stores.RunStore) *Server {
	t.Helper()
	cfg := &config.Config{
		Workflow: config.Component{Type: "server_echo"},
	}
	workflow, err := aiq.NewBuilder(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { workflow.Close() })
	return New(workflow, store, cfg)
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestHandleGenerate(t *testing.T) {
	srv := newTestServer(t, nil)

	w := postJSON(t, srv, "/generate", GenerateRequest{InputMessage: "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if resp.Output != "echo: hello" {
		t.Errorf("Expected 'echo: hello', got %q", resp.Output)
	}
	if resp.RunID == "" {
		t.Error("Expected a run_id")
	}
	if len(resp.IntermediateSteps) != 2 {
		t.Errorf("Expected 2 intermediate steps, got %d", len(resp.IntermediateSteps))
	}
}

func TestHandleGenerate_MissingInput(t *testing.T) {
	srv := newTestServer(t, nil)

	w := postJSON(t, srv, "/generate", map[string]any{"use_knowledge_base": true})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing input_message, got %d", w.Code)
	}
}

func TestHandleGenerate_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", w.Code)
	}
}

func TestHandleGenerate_PersistsRun(t *testing.T) {
	store, err := stores.NewSQLiteStoreSimple(filepath.Join(t.TempDir(), "runs.sqlite"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()
	srv := newTestServer(t, store)

	w := postJSON(t, srv, "/generate", GenerateRequest{InputMessage: "persist me"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}

	run, err := store.GetRun(resp.RunID)
	if err != nil {
		t.Fatalf("Run not persisted: %v", err)
	}
	if run.Channel != "http" {
		t.Errorf("Expected channel http, got %s", run.Channel)
	}
	if run.Status != "completed" {
		t.Errorf("Expected status completed, got %s", run.Status)
	}
	if run.Output != "echo: persist me" {
		t.Errorf("Unexpected persisted output: %q", run.Output)
	}

	steps, err := store.FetchSteps(resp.RunID)
	if err != nil {
		t.Fatalf("FetchSteps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Errorf("Expected 2 persisted steps, got %d", len(steps))
	}
}

func TestHandleGenerateStream(t *testing.T) {
	srv := newTestServer(t, nil)

	w := postJSON(t, srv, "/generate/stream", GenerateRequest{InputMessage: "stream me"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Expected SSE content type, got %s", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event:intermediate_data") {
		t.Errorf("Expected intermediate_data events, got %q", body)
	}
	if !strings.Contains(body, "event:system_response_complete") {
		t.Errorf("Expected completion event, got %q", body)
	}
	if !strings.Contains(body, "echo: stream me") {
		t.Errorf("Expected output in completion event, got %q", body)
	}
}

func TestNew_AppliesLoggingLevel(t *testing.T) {
	defer gin.SetMode(gin.TestMode)

	workflow, err := aiq.NewBuilder(&config.Config{
		Workflow: config.Component{Type: "server_echo"},
	}).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer workflow.Close()

	New(workflow, nil, &config.Config{
		Workflow: config.Component{Type: "server_echo"},
		General:  config.General{Logging: config.Logging{Level: "release"}},
	})
	if gin.Mode() != gin.ReleaseMode {
		t.Errorf("Expected release mode, got %s", gin.Mode())
	}

	// An empty level leaves the current mode alone.
	gin.SetMode(gin.TestMode)
	New(workflow, nil, &config.Config{Workflow: config.Component{Type: "server_echo"}})
	if gin.Mode() != gin.TestMode {
		t.Errorf("Expected test mode to be preserved, got %s", gin.Mode())
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid health JSON: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", resp["status"])
	}
	if resp["workflow"] != "server_echo" {
		t.Errorf("Expected workflow name, got %v", resp["workflow"])
	}
}

func TestHandleListRuns_NoStore(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a store, got %d", w.Code)
	}
}

func TestHandleGetRun(t *testing.T) {
	store, err := stores.NewSQLiteStoreSimple(filepath.Join(t.TempDir(), "runs.sqlite"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()
	srv := newTestServer(t, store)

	w := postJSON(t, srv, "/generate", GenerateRequest{InputMessage: "lookup"})
	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/runs/"+resp.RunID, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/runs/ghost", nil)
	rec = httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown run, got %d", rec.Code)
	}
}
