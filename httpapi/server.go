package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/internal/datafiles"
	"pkt.systems/cellbook/internal/dataframes"
	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/internal/version"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

const maxUploadBytes = 64 << 20

// DataFiles manages backend data files.
type DataFiles interface {
	Refresh(ctx context.Context) ([]schema.DataFile, error)
	Upload(ctx context.Context, name string, content io.Reader) (schema.UploadResult, error)
	Preview(ctx context.Context, name string) (schema.DataFilePreview, error)
	Delete(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newBase string) (schema.RenameResult, error)
	Snapshot() datafiles.Snapshot
}

// DataFrames manages the dataframe listing of the active session.
type DataFrames interface {
	Refresh(ctx context.Context, sessionID schema.SessionID) ([]string, error)
	Info(ctx context.Context, name string) (schema.DataFrameInfo, error)
	Preview(ctx context.Context, name string) (schema.DataFramePreview, error)
	Save(ctx context.Context, name, filePath, fileType string) (map[string]json.RawMessage, error)
	StartAutoRefresh(sessionID schema.SessionID, interval time.Duration) error
	StopAutoRefresh()
	Snapshot() dataframes.Snapshot
}

// UIState holds presentation preferences.
type UIState interface {
	Panel() schema.PanelState
	SetPanelWidth(width int) int
	StartDrag()
	DragTo(width int) int
	EndDrag() schema.PanelState
	Theme() schema.Theme
	SetTheme(name string) (schema.Theme, error)
	Themes() []schema.Theme
}

// Deps are the components the HTTP API exposes.
type Deps struct {
	Service    core.Service
	DataFiles  DataFiles
	DataFrames DataFrames
	UI         UIState
	Backend    version.BackendVersioner
	Hub        *Hub
	Logger     pslog.Logger
	Tracer     trace.Tracer
}

// Server serves the local JSON API and the event stream.
type Server struct {
	cfg      Config
	deps     Deps
	basePath string
	log      pslog.Logger
	tracer   trace.Tracer
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(cfg.HubHistory, deps.Logger)
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("httpapi")
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		basePath: normalizeBasePath(cfg.BasePath),
		log:      logger,
		tracer:   tracer,
	}, nil
}

// Hub returns the event hub fed by the service.
func (s *Server) Hub() *Hub {
	return s.deps.Hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	svc := s.deps.Service
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/tabs", handle(s, "tabs list", svc.ListTabs))
	mux.HandleFunc("POST /api/tabs/activate", handle(s, "tab activate", svc.ActivateTab))
	mux.HandleFunc("POST /api/tabs/rename", handle(s, "tab rename", svc.RenameTab))
	mux.HandleFunc("POST /api/tabs/modified", handle(s, "tab modified", svc.MarkTabModified))
	mux.HandleFunc("POST /api/tabs/tags/add", handle(s, "tab tag add", svc.AddTag))
	mux.HandleFunc("POST /api/tabs/tags/remove", handle(s, "tab tag remove", svc.RemoveTag))
	mux.HandleFunc("POST /api/tabs/close", handle(s, "tab close", svc.CloseNotebook))

	mux.HandleFunc("GET /api/notebooks", handle(s, "notebooks list", svc.ListNotebooks))
	mux.HandleFunc("POST /api/notebooks/new", handle(s, "notebook new", svc.CreateNewNotebook))
	mux.HandleFunc("POST /api/notebooks/open", handle(s, "notebook open", svc.OpenNotebook))
	mux.HandleFunc("POST /api/notebooks/save", handle(s, "notebook save", svc.SaveNotebook))
	mux.HandleFunc("POST /api/notebooks/rename", handle(s, "notebook rename", svc.RenameNotebook))
	mux.HandleFunc("POST /api/notebooks/delete", handle(s, "notebook delete", svc.DeleteNotebook))
	mux.HandleFunc("POST /api/notebooks/clear", handle(s, "notebook clear", svc.ClearNotebook))
	mux.HandleFunc("POST /api/notebooks/reset", handle(s, "notebook reset", svc.ResetExecutionContext))
	mux.HandleFunc("POST /api/notebooks/export", s.handleExport)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/cells/add", handle(s, "cell add", svc.AddCell))
	mux.HandleFunc("POST /api/cells/add-above", handle(s, "cell add above", svc.AddCellAbove))
	mux.HandleFunc("POST /api/cells/add-below", handle(s, "cell add below", svc.AddCellBelow))
	mux.HandleFunc("POST /api/cells/delete", handle(s, "cell delete", svc.DeleteCell))
	mux.HandleFunc("POST /api/cells/move-up", handle(s, "cell move up", svc.MoveCellUp))
	mux.HandleFunc("POST /api/cells/move-down", handle(s, "cell move down", svc.MoveCellDown))
	mux.HandleFunc("POST /api/cells/copy", handle(s, "cell copy", svc.CopyCell))
	mux.HandleFunc("POST /api/cells/type", handle(s, "cell type", svc.ChangeCellType))
	mux.HandleFunc("POST /api/cells/content", handle(s, "cell content", svc.SetCellContent))
	mux.HandleFunc("POST /api/cells/output", handle(s, "cell output", svc.SetCellOutput))
	mux.HandleFunc("POST /api/cells/edit-state", handle(s, "cell edit state", svc.SetMarkdownEditState))
	mux.HandleFunc("POST /api/cells/insert-code", handle(s, "cell insert code", svc.InsertCode))
	mux.HandleFunc("POST /api/cells/complete", handle(s, "cell complete", svc.HandleExecutionComplete))

	if s.deps.DataFiles != nil {
		mux.HandleFunc("GET /api/data-files", s.handleDataFiles)
		mux.HandleFunc("POST /api/data-files/upload", s.handleDataFileUpload)
		mux.HandleFunc("GET /api/data-files/preview", s.handleDataFilePreview)
		mux.HandleFunc("POST /api/data-files/delete", handle(s, "data file delete", s.deleteDataFile))
		mux.HandleFunc("POST /api/data-files/rename", handle(s, "data file rename", s.renameDataFile))
	}
	if s.deps.DataFrames != nil {
		mux.HandleFunc("GET /api/dataframes", s.handleDataFrames)
		mux.HandleFunc("GET /api/dataframes/info", s.handleDataFrameInfo)
		mux.HandleFunc("GET /api/dataframes/preview", s.handleDataFramePreview)
		mux.HandleFunc("POST /api/dataframes/save", handle(s, "dataframe save", s.saveDataFrame))
		mux.HandleFunc("POST /api/dataframes/auto-refresh", handle(s, "dataframe auto refresh", s.autoRefresh))
	}
	if s.deps.UI != nil {
		mux.HandleFunc("GET /api/ui/panel", s.handlePanel)
		mux.HandleFunc("POST /api/ui/panel", handle(s, "ui panel", s.updatePanel))
		mux.HandleFunc("GET /api/ui/theme", s.handleTheme)
		mux.HandleFunc("POST /api/ui/theme", handle(s, "ui theme", s.setTheme))
		mux.HandleFunc("GET /api/ui/themes", s.handleThemes)
	}

	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("GET /api/version", s.handleVersion)

	handler := withRequestLogging(mux, s.log, s.tracer)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

// handle decodes a JSON request, runs fn and writes its JSON result.
// An empty body decodes as the zero request.
func handle[Req, Resp any](s *Server, op string, fn func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context())
		var req Req
		if r.Method != http.MethodGet {
			if err := decodeJSON(r.Body, &req); err != nil {
				log.Warn("http "+op+" decode failed", "err", err)
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		resp, err := fn(r.Context(), req)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		log.Debug("http " + op + " ok")
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	log := logx.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Warn("http "+op+" failed", "status", status, "err", err)
	} else {
		log.Debug("http "+op+" rejected", "status", status, "err", err)
	}
	writeError(w, status, err)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Service.GetSession(r.Context(), schema.GetSessionRequest{TabID: schema.TabID(r.URL.Query().Get("tab"))})
	if err != nil {
		s.fail(w, r, "session", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req schema.ExportPDFRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.deps.Service.ExportPDF(r.Context(), req)
	if err != nil {
		s.fail(w, r, "notebook export", err)
		return
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resp.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Data)
	logx.Ctx(r.Context()).Info("http notebook export ok", "file", resp.FileName, "bytes", len(resp.Data))
}

func (s *Server) handleDataFiles(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.DataFiles.Refresh(r.Context()); err != nil {
		s.fail(w, r, "data files list", err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.DataFiles.Snapshot())
}

func (s *Server) handleDataFileUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer file.Close()
	res, err := s.deps.DataFiles.Upload(r.Context(), header.Filename, file)
	if err != nil {
		s.fail(w, r, "data file upload", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDataFilePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.deps.DataFiles.Preview(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		s.fail(w, r, "data file preview", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type nameRequest struct {
	Name string `json:"name"`
}

type renameRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func (s *Server) deleteDataFile(ctx context.Context, req nameRequest) (datafiles.Snapshot, error) {
	if err := s.deps.DataFiles.Delete(ctx, req.Name); err != nil {
		return datafiles.Snapshot{}, err
	}
	return s.deps.DataFiles.Snapshot(), nil
}

func (s *Server) renameDataFile(ctx context.Context, req renameRequest) (schema.RenameResult, error) {
	return s.deps.DataFiles.Rename(ctx, req.OldName, req.NewName)
}

// handleDataFrames lists the dataframes of ?session=, defaulting to the
// active tab's session.
func (s *Server) handleDataFrames(w http.ResponseWriter, r *http.Request) {
	sessionID := schema.SessionID(r.URL.Query().Get("session"))
	if sessionID == "" {
		resp, err := s.deps.Service.GetSession(r.Context(), schema.GetSessionRequest{})
		if err != nil {
			s.fail(w, r, "dataframes list", err)
			return
		}
		sessionID = resp.Session.SessionID
	}
	if _, err := s.deps.DataFrames.Refresh(r.Context(), sessionID); err != nil {
		s.fail(w, r, "dataframes list", err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.DataFrames.Snapshot())
}

func (s *Server) handleDataFrameInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.DataFrames.Info(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		s.fail(w, r, "dataframe info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDataFramePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.deps.DataFrames.Preview(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		s.fail(w, r, "dataframe preview", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type saveDataFrameRequest struct {
	Name     string `json:"name"`
	FilePath string `json:"file_path"`
	FileType string `json:"file_type,omitempty"`
}

func (s *Server) saveDataFrame(ctx context.Context, req saveDataFrameRequest) (map[string]json.RawMessage, error) {
	return s.deps.DataFrames.Save(ctx, req.Name, req.FilePath, req.FileType)
}

type autoRefreshRequest struct {
	Enabled         bool             `json:"enabled"`
	SessionID       schema.SessionID `json:"session_id,omitempty"`
	IntervalSeconds int              `json:"interval_seconds,omitempty"`
}

func (s *Server) autoRefresh(ctx context.Context, req autoRefreshRequest) (dataframes.Snapshot, error) {
	if !req.Enabled {
		s.deps.DataFrames.StopAutoRefresh()
		return s.deps.DataFrames.Snapshot(), nil
	}
	sessionID := req.SessionID
	if sessionID == "" {
		resp, err := s.deps.Service.GetSession(ctx, schema.GetSessionRequest{})
		if err != nil {
			return dataframes.Snapshot{}, err
		}
		sessionID = resp.Session.SessionID
	}
	interval := time.Duration(req.IntervalSeconds) * time.Second
	if err := s.deps.DataFrames.StartAutoRefresh(sessionID, interval); err != nil {
		return dataframes.Snapshot{}, err
	}
	return s.deps.DataFrames.Snapshot(), nil
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.UI.Panel())
}

// panelRequest drives the panel: a plain width sets it, while the drag
// action starts, moves or ends a resize.
type panelRequest struct {
	Width  int    `json:"width"`
	Action string `json:"action,omitempty"`
}

func (s *Server) updatePanel(_ context.Context, req panelRequest) (schema.PanelState, error) {
	ui := s.deps.UI
	switch req.Action {
	case "":
		ui.SetPanelWidth(req.Width)
	case "drag-start":
		ui.StartDrag()
	case "drag":
		ui.DragTo(req.Width)
	case "drag-end":
		return ui.EndDrag(), nil
	default:
		return schema.PanelState{}, fmt.Errorf("panel action %q: %w", req.Action, schema.ErrInvalidRequest)
	}
	return ui.Panel(), nil
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.UI.Theme())
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (s *Server) setTheme(_ context.Context, req themeRequest) (schema.Theme, error) {
	return s.deps.UI.SetTheme(req.Theme)
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"themes": s.deps.UI.Themes()})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Collect(r.Context(), s.deps.Backend))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())
	hub := s.deps.Hub

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	ch, unsubscribe, _ := hub.Subscribe()
	defer unsubscribe()

	snapshot := s.buildSnapshot(r.Context())
	_ = writeSSEvent(w, StreamEvent{Type: "snapshot", Snapshot: &snapshot, Timestamp: time.Now()})

	replayed := uint64(0)
	replay := []StreamEvent(nil)
	if lastID > 0 {
		replay = hub.Replay(lastID)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
			replayed = event.Seq
		}
	}
	flusher.Flush()

	log.Info("http stream opened", "last_id", lastID, "replay", len(replay), "tabs", len(snapshot.Tabs))
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= replayed {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) buildSnapshot(ctx context.Context) SnapshotPayload {
	resp, err := s.deps.Service.ListTabs(ctx, schema.ListTabsRequest{})
	if err != nil {
		return SnapshotPayload{}
	}
	payload := SnapshotPayload{Tabs: resp.Tabs, ActiveTab: resp.ActiveTab}
	if resp.ActiveTab != "" {
		if sess, err := s.deps.Service.GetSession(ctx, schema.GetSessionRequest{TabID: resp.ActiveTab}); err == nil {
			payload.Session = &sess.Session
		}
	}
	if s.deps.UI != nil {
		payload.Theme = s.deps.UI.Theme().Name
	}
	return payload
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
