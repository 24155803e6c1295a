package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/gateway"
	"pkt.systems/cellbook/internal/backendmock"
	"pkt.systems/cellbook/internal/datafiles"
	"pkt.systems/cellbook/internal/dataframes"
	"pkt.systems/cellbook/internal/uistate"
	"pkt.systems/cellbook/schema"
)

type fixture struct {
	backend *backendmock.Backend
	service core.Service
	hub     *Hub
	frames  *dataframes.Store
	handler http.Handler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	backend := backendmock.New(nil)
	backendSrv := httptest.NewServer(backend.Handler())
	t.Cleanup(backendSrv.Close)
	return newFixtureWithURL(t, cfg, backend, backendSrv.URL)
}

func newFixtureWithURL(t *testing.T, cfg Config, backend *backendmock.Backend, url string) *fixture {
	t.Helper()
	client, err := gateway.New(gateway.Config{BaseURL: url, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	hub := NewHub(64, nil)
	service, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{Backend: client, EventSink: hub})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	frames := dataframes.New(client, dataframes.Options{}, nil)
	t.Cleanup(func() { _ = frames.Close() })
	ui, err := uistate.New(nil, uistate.Defaults{}, nil)
	if err != nil {
		t.Fatalf("uistate: %v", err)
	}
	srv, err := NewServer(cfg, Deps{
		Service:    service,
		DataFiles:  datafiles.New(client, nil),
		DataFrames: frames,
		UI:         ui,
		Backend:    client,
		Hub:        hub,
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return &fixture{backend: backend, service: service, hub: hub, frames: frames, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, target string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s (%d): %v: %s", method, target, rec.Code, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestNotebookFlowOverHTTP(t *testing.T) {
	f := newFixture(t, Config{})

	var created schema.CreateNotebookResponse
	if code := f.do(t, http.MethodPost, "/api/notebooks/new", nil, &created); code != http.StatusOK {
		t.Fatalf("new notebook status %d", code)
	}
	var added schema.CellResponse
	f.do(t, http.MethodPost, "/api/cells/add", schema.AddCellRequest{Type: schema.CellMarkdown}, &added)
	if !added.Changed || added.CellID == "" {
		t.Fatalf("expected added cell, got %+v", added)
	}
	f.do(t, http.MethodPost, "/api/cells/content", schema.SetCellContentRequest{CellID: added.CellID, Content: "# Notes"}, nil)

	var sess schema.GetSessionResponse
	f.do(t, http.MethodGet, "/api/session?tab="+string(created.TabID), nil, &sess)
	if len(sess.Session.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(sess.Session.Cells))
	}

	var saved schema.SaveNotebookResponse
	if code := f.do(t, http.MethodPost, "/api/notebooks/save", schema.SaveNotebookRequest{FileName: "demo"}, &saved); code != http.StatusOK {
		t.Fatalf("save status %d", code)
	}
	if !saved.Saved || saved.FileName != "demo.ipynb" {
		t.Fatalf("unexpected save response %+v", saved)
	}
	doc, ok := f.backend.Notebook("demo.ipynb")
	if !ok || len(doc.Cells) != 2 || doc.Cells[1].Content != "# Notes" {
		t.Fatalf("unexpected stored document %+v", doc)
	}

	var list schema.ListNotebooksResponse
	f.do(t, http.MethodGet, "/api/notebooks", nil, &list)
	if len(list.Notebooks) != 1 || list.Notebooks[0].Name != "demo.ipynb" {
		t.Fatalf("unexpected notebooks %+v", list)
	}

	var tabs schema.ListTabsResponse
	f.do(t, http.MethodGet, "/api/tabs", nil, &tabs)
	if len(tabs.Tabs) != 1 || tabs.Tabs[0].Title != "demo" || tabs.Tabs[0].Modified {
		t.Fatalf("unexpected tabs %+v", tabs)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodPost, "/api/notebooks/new", nil, nil)

	var body map[string]string
	if code := f.do(t, http.MethodPost, "/api/notebooks/save", nil, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unnamed save, got %d", code)
	}
	if body["error"] == "" {
		t.Fatalf("expected error body")
	}
	if code := f.do(t, http.MethodPost, "/api/notebooks/rename", schema.RenameNotebookRequest{OldName: "missing.ipynb", NewName: "other.ipynb"}, &body); code != http.StatusBadGateway {
		t.Fatalf("expected 502 for backend failure, got %d", code)
	}
	if !strings.Contains(body["error"], "Source notebook not found") {
		t.Fatalf("expected backend message, got %q", body["error"])
	}
	if code := f.do(t, http.MethodPost, "/api/tabs/rename", `{"tab":"x"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", code)
	}
}

func TestBackendDownIsUnavailable(t *testing.T) {
	backendSrv := httptest.NewServer(http.NotFoundHandler())
	url := backendSrv.URL
	backendSrv.Close()
	f := newFixtureWithURL(t, Config{}, backendmock.New(nil), url)

	if code := f.do(t, http.MethodGet, "/api/notebooks", nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("save: %w", schema.ErrFileNameRequired), http.StatusBadRequest},
		{schema.ErrUnknownTheme, http.StatusBadRequest},
		{&gateway.APIError{Op: "save_notebook", Message: "disk full"}, http.StatusBadGateway},
		{&gateway.TransportError{Op: "list_notebooks", Err: errors.New("refused")}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestExportReturnsAttachment(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodPost, "/api/notebooks/new", nil, nil)

	raw, _ := json.Marshal(schema.ExportPDFRequest{FileName: "report"})
	req := httptest.NewRequest(http.MethodPost, "/api/notebooks/export", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "report.pdf") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected pdf body")
	}
}

func TestThemeAndPanel(t *testing.T) {
	f := newFixture(t, Config{})

	if code := f.do(t, http.MethodPost, "/api/ui/theme", map[string]string{"theme": "neon"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown theme, got %d", code)
	}
	var theme schema.Theme
	f.do(t, http.MethodPost, "/api/ui/theme", map[string]string{"theme": "dark"}, &theme)
	if theme.Name != "dark" {
		t.Fatalf("unexpected theme %+v", theme)
	}
	var themes struct {
		Themes []schema.Theme `json:"themes"`
	}
	f.do(t, http.MethodGet, "/api/ui/themes", nil, &themes)
	if len(themes.Themes) != len(schema.AvailableThemes()) {
		t.Fatalf("unexpected themes %d", len(themes.Themes))
	}

	var panel schema.PanelState
	f.do(t, http.MethodPost, "/api/ui/panel", map[string]any{"action": "drag-start"}, &panel)
	if !panel.Dragging {
		t.Fatalf("expected dragging")
	}
	f.do(t, http.MethodPost, "/api/ui/panel", map[string]any{"action": "drag", "width": 9000}, &panel)
	if panel.Width != schema.PanelMaxWidth {
		t.Fatalf("expected clamped width, got %d", panel.Width)
	}
	f.do(t, http.MethodPost, "/api/ui/panel", map[string]any{"action": "drag-end"}, &panel)
	if panel.Dragging || panel.Width != schema.PanelMaxWidth {
		t.Fatalf("unexpected panel %+v", panel)
	}
	if code := f.do(t, http.MethodPost, "/api/ui/panel", map[string]any{"action": "spin"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", code)
	}
}

func TestDataFileUploadAndDataFrames(t *testing.T) {
	f := newFixture(t, Config{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "sales.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("a,b\n1,2\n"))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/data-files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", rec.Code, rec.Body.String())
	}
	var files datafiles.Snapshot
	f.do(t, http.MethodGet, "/api/data-files", nil, &files)
	if len(files.Files) != 1 || files.Files[0].Name != "sales.csv" {
		t.Fatalf("unexpected files %+v", files)
	}

	var created schema.CreateNotebookResponse
	f.do(t, http.MethodPost, "/api/notebooks/new", nil, &created)
	f.backend.SetDataFrames(created.SessionID, "df")
	var frames dataframes.Snapshot
	f.do(t, http.MethodGet, "/api/dataframes", nil, &frames)
	if frames.SessionID != created.SessionID || len(frames.DataFrames) != 1 {
		t.Fatalf("unexpected dataframes %+v", frames)
	}
	f.do(t, http.MethodPost, "/api/dataframes/auto-refresh", map[string]any{"enabled": true, "interval_seconds": 60}, &frames)
	if !frames.AutoRefresh {
		t.Fatalf("expected auto refresh")
	}
	f.do(t, http.MethodPost, "/api/dataframes/auto-refresh", map[string]any{"enabled": false}, &frames)
	if frames.AutoRefresh {
		t.Fatalf("expected auto refresh stopped")
	}
}

func TestBasePathPrefix(t *testing.T) {
	f := newFixture(t, Config{BasePath: "cellbook/"})

	if code := f.do(t, http.MethodGet, "/cellbook/api/tabs", nil, nil); code != http.StatusOK {
		t.Fatalf("expected prefixed route, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/cellbook", nil, nil); code != http.StatusTemporaryRedirect {
		t.Fatalf("expected redirect, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/api/tabs", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected unprefixed route missing, got %d", code)
	}
}

func TestStreamSendsSnapshotAndEvents(t *testing.T) {
	f := newFixture(t, Config{})
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)

	first := readEvent(t, reader)
	if first.Type != "snapshot" || first.Snapshot == nil {
		t.Fatalf("expected snapshot, got %+v", first)
	}
	if _, err := f.service.CreateNewNotebook(context.Background(), schema.CreateNotebookRequest{Title: "live"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for {
		event := readEvent(t, reader)
		if event.Type == "tab" && event.Tab != nil && event.Tab.Type == schema.TabEventCreated {
			if event.Tab.Tab.Title != "live" || event.Seq == 0 {
				t.Fatalf("unexpected tab event %+v", event)
			}
			return
		}
	}
}

func readEvent(t *testing.T, reader *bufio.Reader) StreamEvent {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			var event StreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return event
		}
	}
}
