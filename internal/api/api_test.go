package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/plugin"
	"github.com/starford/ansuz/internal/storage"
)

const testPluginYAML = `id: summarizer
name: Summarizer
description: Summarizes pages
output: text
prompt: "Summarize: {{content}}"
display:
  position: header
  format: text
`

type testAPI struct {
	srv     *httptest.Server
	svc     *noteservice.Service
	plugins *plugin.Store
}

func setupAPI(t *testing.T, fake *llm.FakeClient) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	vault := t.TempDir()
	store, err := storage.NewFS(vault)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open index: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	workspace := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workspace, "plugins"), 0o755); err != nil {
		t.Fatalf("mkdir plugins: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "plugins", "summarizer.yaml"), []byte(testPluginYAML), 0o644); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	plugins, err := plugin.NewStore(workspace, logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	mgr, err := engine.NewManager(plugins, engine.NewExecutor(fake, logger), 16, logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	svc := noteservice.NewService(store, db, mgr, nil)
	router := NewRouter(svc, plugins, fake, false, "", nil, vault)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, svc: svc, plugins: plugins}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func longBody() string {
	return strings.Repeat("meaningful page text ", 10)
}

func TestCaptureEndpoint(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{Default: "x"})

	resp := a.do(t, http.MethodPost, "/capture", CaptureRequest{
		Title:   "A Captured Page",
		URL:     "https://example.com/page",
		Domain:  "example.com",
		Content: longBody(),
		Tags:    []string{"reading"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	note := decode[NoteDetail](t, resp)
	if !strings.HasSuffix(note.Path, "a-captured-page.md") {
		t.Fatalf("path = %q", note.Path)
	}
	if note.URL != "https://example.com/page" {
		t.Fatalf("url = %q", note.URL)
	}

	list := decode[NoteListResponse](t, a.do(t, http.MethodGet, "/notes", nil))
	if list.Total != 1 || list.Notes[0].Path != note.Path {
		t.Fatalf("list = %+v", list)
	}
}

func TestCaptureEndpoint_MissingContent(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{})
	resp := a.do(t, http.MethodPost, "/capture", CaptureRequest{Title: "No Body"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProcessEndpoint(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{Default: "a fine summary"})

	resp := a.do(t, http.MethodPost, "/notes", CreateNoteRequest{Path: "a.md", Content: longBody()})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	pr := decode[ProcessResponse](t, a.do(t, http.MethodPost, "/notes/process/a.md", nil))
	if pr.Results["summarizer"] == nil || pr.Results["summarizer"].Text != "a fine summary" {
		t.Fatalf("results = %+v", pr.Results)
	}

	// The stored result comes back on a plain read.
	note := decode[NoteDetail](t, a.do(t, http.MethodGet, "/notes/a.md", nil))
	if len(note.Results) != 1 || note.Results[0].PluginID != "summarizer" {
		t.Fatalf("stored results = %+v", note.Results)
	}

	// And through the dedicated results endpoint.
	rr := decode[ResultsResponse](t, a.do(t, http.MethodGet, "/notes/results?path=a.md", nil))
	if len(rr.Results) != 1 || rr.Results[0].PluginID != "summarizer" {
		t.Fatalf("results endpoint = %+v", rr.Results)
	}
}

func TestResultsEndpoint_MissingNote(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{})
	resp := a.do(t, http.MethodGet, "/notes/results?path=ghost.md", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProcessEndpoint_ShortContent(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{})

	resp := a.do(t, http.MethodPost, "/notes", CreateNoteRequest{Path: "short.md", Content: "tiny"})
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/notes/process/short.md", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProcessEndpoint_MissingNote(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{})
	resp := a.do(t, http.MethodPost, "/notes/process/ghost.md", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUpdateNote_Conflict(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{})

	created := decode[NoteDetail](t, a.do(t, http.MethodPost, "/notes", CreateNoteRequest{Path: "a.md", Content: "original"}))

	req, _ := http.NewRequest(http.MethodPut, a.srv.URL+"/notes/a.md", strings.NewReader(`{"content":"changed"}`))
	req.Header.Set("If-Match", `"stale"`)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodPut, a.srv.URL+"/notes/a.md", strings.NewReader(`{"content":"changed"}`))
	req.Header.Set("If-Match", fmt.Sprintf("%q", created.Checksum))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPluginEndpoints(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{})

	list := decode[PluginListResponse](t, a.do(t, http.MethodGet, "/plugins", nil))
	if len(list.Plugins) != 1 || list.Plugins[0].ID != "summarizer" || !list.Plugins[0].Enabled {
		t.Fatalf("plugins = %+v", list.Plugins)
	}

	resp := a.do(t, http.MethodPut, "/plugins/summarizer/enabled", TogglePluginRequest{Enabled: false})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	list = decode[PluginListResponse](t, a.do(t, http.MethodGet, "/plugins", nil))
	if list.Plugins[0].Enabled {
		t.Fatal("plugin still enabled after toggle")
	}

	resp = a.do(t, http.MethodGet, "/plugins/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get ghost status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatEndpoint_Streams(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{Default: "hello from the model"})

	resp := a.do(t, http.MethodPost, "/chat", ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	s := body.String()
	if !strings.Contains(s, `"delta":"hello from the model"`) {
		t.Fatalf("body missing delta: %q", s)
	}
	if !strings.Contains(s, "data: [DONE]") {
		t.Fatalf("body missing DONE: %q", s)
	}
}

type recordingClient struct {
	messages []llm.Message
}

func (r *recordingClient) Chat(_ context.Context, messages []llm.Message, onChunk llm.StreamFunc) (string, error) {
	r.messages = messages
	if onChunk != nil {
		onChunk("ok")
	}
	return "ok", nil
}

func (r *recordingClient) Model() string { return "recording" }

type fixedMaster string

func (m fixedMaster) MasterPrompt() string { return string(m) }

func TestChatHandler_MasterPromptIsSystemMessage(t *testing.T) {
	rec := &recordingClient{}
	ch := NewChatHandler(rec, nil, fixedMaster("Always answer in English."))

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	ch.Chat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(rec.messages) != 2 || rec.messages[0].Role != llm.RoleSystem {
		t.Fatalf("messages = %+v", rec.messages)
	}
	if rec.messages[0].Content != "Always answer in English." {
		t.Fatalf("system = %q", rec.messages[0].Content)
	}
}

func TestChatEndpoint_NoMessages(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{})
	resp := a.do(t, http.MethodPost, "/chat", ChatRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTagsEndpoint(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{})

	content := "---\ntags: [go, llm]\n---\n\nbody"
	resp := a.do(t, http.MethodPost, "/notes", CreateNoteRequest{Path: "a.md", Content: content})
	resp.Body.Close()

	tags := decode[TagsResponse](t, a.do(t, http.MethodGet, "/tags", nil))
	if len(tags.Tags) != 2 {
		t.Fatalf("tags = %v", tags.Tags)
	}
}

func TestAuthMiddleware_Enforced(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	vault := t.TempDir()
	store, err := storage.NewFS(vault)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open index: %v", err)
	}
	defer db.Close()
	plugins, err := plugin.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	svc := noteservice.NewService(store, db, nil, nil)
	srv := httptest.NewServer(NewRouter(svc, plugins, nil, true, "secret", nil, vault))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/notes")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with token: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func uploadAttachment(t *testing.T, a *testAPI, filename string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/attachments", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestAttachmentUpload_ImagesOnly(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{Default: "x"})

	resp := uploadAttachment(t, a, "hero.png", []byte("fake image bytes"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["filename"] != "hero.png" || body["url"] != "/attachments/hero.png" {
		t.Fatalf("body = %v", body)
	}
	if body["markdown"] != "![hero.png](/attachments/hero.png)" {
		t.Fatalf("markdown = %v", body["markdown"])
	}

	resp = uploadAttachment(t, a, "payload.exe", []byte("nope"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAttachmentUpload_CollisionGetsSuffix(t *testing.T) {
	a := setupAPI(t, &llm.FakeClient{Default: "x"})

	first := decode[map[string]any](t, uploadAttachment(t, a, "shot.png", []byte("one")))
	second := decode[map[string]any](t, uploadAttachment(t, a, "shot.png", []byte("two")))

	if first["filename"] != "shot.png" {
		t.Fatalf("first = %v", first)
	}
	name, _ := second["filename"].(string)
	if name == "shot.png" || !strings.HasPrefix(name, "shot-") || !strings.HasSuffix(name, ".png") {
		t.Fatalf("second filename = %q, want a suffixed variant", name)
	}
}
