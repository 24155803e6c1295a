// Package backendmock serves an in-memory notebook backend for tests and local
// development. It speaks the same envelope API as the real backend.
package backendmock

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

const maxUpload = 32 << 20

type notebookEntry struct {
	doc      json.RawMessage
	modified time.Time
}

type dataFileEntry struct {
	data     []byte
	modified time.Time
}

// Backend is an in-memory notebook backend.
type Backend struct {
	mu         sync.Mutex
	notebooks  map[string]notebookEntry
	dataFiles  map[string]dataFileEntry
	dataframes map[schema.SessionID][]string
	categories []schema.PromptCategory
	prompts    map[string]schema.Prompt
	resets     []schema.SessionID
	failures   map[string]string
	gates      map[string]chan struct{}
	calls      map[string]int
	now        func() time.Time
	logger     pslog.Logger
}

// New returns an empty backend.
func New(logger pslog.Logger) *Backend {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Backend{
		notebooks:  make(map[string]notebookEntry),
		dataFiles:  make(map[string]dataFileEntry),
		dataframes: make(map[schema.SessionID][]string),
		categories: []schema.PromptCategory{{ID: "general", Name: "General"}},
		prompts:    make(map[string]schema.Prompt),
		failures:   make(map[string]string),
		gates:      make(map[string]chan struct{}),
		calls:      make(map[string]int),
		now:        time.Now,
		logger:     logger,
	}
}

// Handler returns the backend routes.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/notebooks/list_notebooks", b.handleListNotebooks)
	mux.HandleFunc("POST /api/notebooks/save_notebook", b.handleSaveNotebook)
	mux.HandleFunc("POST /api/notebooks/rename_notebook", b.handleRenameNotebook)
	mux.HandleFunc("DELETE /api/notebooks/delete_notebook", b.handleDeleteNotebook)
	mux.HandleFunc("GET /api/notebooks/load_notebook", b.handleLoadNotebook)

	mux.HandleFunc("GET /api/data-files/list", b.handleListDataFiles)
	mux.HandleFunc("POST /api/data-files/upload/{kind}", b.handleUpload)
	mux.HandleFunc("GET /api/data-files/preview/{kind}", b.handlePreview)
	mux.HandleFunc("DELETE /api/data-files/delete", b.handleDeleteDataFile)
	mux.HandleFunc("POST /api/data-files/rename", b.handleRenameDataFile)

	mux.HandleFunc("GET /api/dataframes/list", b.handleListDataFrames)
	mux.HandleFunc("GET /api/dataframes/info/{name}", b.handleDataFrameInfo)
	mux.HandleFunc("GET /api/dataframes/preview/{name}", b.handleDataFramePreview)
	mux.HandleFunc("POST /api/dataframes/{name}/save", b.handleDataFrameSave)

	mux.HandleFunc("POST /api/execution/reset_context", b.handleResetContext)
	mux.HandleFunc("POST /api/export/pdf", b.handleExportPDF)
	mux.HandleFunc("GET /api/system/version", b.handleVersion)

	mux.HandleFunc("GET /api/prompt/categories", b.handlePromptCategories)
	mux.HandleFunc("GET /api/prompt/category/{id}", b.handlePromptList)
	mux.HandleFunc("POST /api/prompt", b.handlePromptCreate)
	mux.HandleFunc("PUT /api/prompt", b.handlePromptUpdate)
	return b.intercept(mux)
}

// intercept applies injected failures and gates before routing.
func (b *Backend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[r.URL.Path]++
		msg, fail := b.failures[r.URL.Path]
		if fail {
			delete(b.failures, r.URL.Path)
		}
		gate := b.gates[r.URL.Path]
		b.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if fail {
			b.logger.Debug("backendmock injected failure", "path", r.URL.Path, "message", msg)
			writeFailure(w, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next request to urlPath answer with an error envelope.
func (b *Backend) FailNext(urlPath, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[urlPath] = message
}

// Hold blocks requests to urlPath until the returned release is called.
func (b *Backend) Hold(urlPath string) (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gates[urlPath] = gate
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gates[urlPath] == gate {
				delete(b.gates, urlPath)
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// Calls reports how many requests reached urlPath.
func (b *Backend) Calls(urlPath string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[urlPath]
}

// PutNotebook stores doc under name.
func (b *Backend) PutNotebook(name string, doc schema.Document) {
	raw, _ := json.Marshal(doc)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notebooks[name] = notebookEntry{doc: raw, modified: b.now()}
}

// Notebook returns the document stored under name.
func (b *Backend) Notebook(name string) (schema.Document, bool) {
	b.mu.Lock()
	entry, ok := b.notebooks[name]
	b.mu.Unlock()
	if !ok {
		return schema.Document{}, false
	}
	var doc schema.Document
	if err := json.Unmarshal(entry.doc, &doc); err != nil {
		return schema.Document{}, false
	}
	return doc, true
}

// PutDataFile stores a data file.
func (b *Backend) PutDataFile(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataFiles[name] = dataFileEntry{data: append([]byte(nil), data...), modified: b.now()}
}

// DataFileNames lists stored data files.
func (b *Backend) DataFileNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedKeys(b.dataFiles)
}

// SetDataFrames replaces the dataframe variables of a session.
func (b *Backend) SetDataFrames(sessionID schema.SessionID, names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataframes[sessionID] = append([]string(nil), names...)
}

// Resets returns the sessions whose context was reset, in order.
func (b *Backend) Resets() []schema.SessionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]schema.SessionID(nil), b.resets...)
}

func (b *Backend) handleListNotebooks(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := make([]schema.FileDescriptor, 0, len(b.notebooks))
	for _, name := range sortedKeys(b.notebooks) {
		entry := b.notebooks[name]
		out = append(out, schema.FileDescriptor{
			Name:         name,
			Path:         name,
			LastModified: float64(entry.modified.UnixNano()) / 1e9,
		})
	}
	b.mu.Unlock()
	writeData(w, out)
}

func (b *Backend) handleSaveNotebook(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Filename string          `json:"filename"`
		Notebook json.RawMessage `json:"notebook"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeFailure(w, "invalid request body")
		return
	}
	if payload.Filename == "" || len(payload.Notebook) == 0 || string(payload.Notebook) == "null" {
		writeFailure(w, "Missing filename or notebook data")
		return
	}
	b.mu.Lock()
	b.notebooks[payload.Filename] = notebookEntry{doc: payload.Notebook, modified: b.now()}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (b *Backend) handleRenameNotebook(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OldFilename string `json:"old_filename"`
		NewFilename string `json:"new_filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.OldFilename == "" || payload.NewFilename == "" {
		writeFailure(w, "Missing old_filename or new_filename")
		return
	}
	if !strings.HasSuffix(payload.NewFilename, schema.NotebookExt) {
		writeFailure(w, "New filename must end with .ipynb")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.notebooks[payload.OldFilename]
	if !ok {
		writeFailure(w, "Source notebook not found")
		return
	}
	if _, exists := b.notebooks[payload.NewFilename]; exists {
		writeFailure(w, "A notebook with this name already exists")
		return
	}
	delete(b.notebooks, payload.OldFilename)
	entry.modified = b.now()
	b.notebooks[payload.NewFilename] = entry
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Notebook renamed successfully"})
}

func (b *Backend) handleDeleteNotebook(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.notebooks[name]; !ok {
		writeFailure(w, "Notebook not found")
		return
	}
	delete(b.notebooks, name)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Notebook deleted"})
}

func (b *Backend) handleLoadNotebook(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	b.mu.Lock()
	entry, ok := b.notebooks[name]
	b.mu.Unlock()
	if !ok {
		writeFailure(w, "Notebook not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": entry.doc})
}

func (b *Backend) handleListDataFiles(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := make([]schema.DataFile, 0, len(b.dataFiles))
	for _, name := range sortedKeys(b.dataFiles) {
		entry := b.dataFiles[name]
		out = append(out, schema.DataFile{
			Name:     name,
			Path:     name,
			Size:     int64(len(entry.data)),
			Modified: float64(entry.modified.UnixNano()) / 1e9,
		})
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "files": out})
}

func allowedExtensions(kind string) []string {
	switch kind {
	case "csv":
		return []string{".csv"}
	case "excel":
		return []string{".xlsx", ".xls"}
	default:
		return nil
	}
}

func hasAllowedExt(name string, allowed []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, candidate := range allowed {
		if ext == candidate {
			return true
		}
	}
	return false
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	allowed := allowedExtensions(r.PathValue("kind"))
	if allowed == nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	name := path.Base(header.Filename)
	if !hasAllowedExt(name, allowed) {
		writeDetail(w, http.StatusBadRequest, "unsupported file format, allowed: "+strings.Join(allowed, ", "))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.mu.Lock()
	stored := name
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for counter := 1; ; counter++ {
		if _, exists := b.dataFiles[stored]; !exists {
			break
		}
		stored = fmt.Sprintf("%s_%d%s", stem, counter, ext)
	}
	b.dataFiles[stored] = dataFileEntry{data: data, modified: b.now()}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "upload ok",
		"data": schema.UploadResult{
			FilePath: stored,
			FileName: stored,
			FileSize: int64(len(data)),
		},
	})
}

func (b *Backend) handlePreview(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	allowed := allowedExtensions(kind)
	if allowed == nil {
		http.NotFound(w, r)
		return
	}
	name := r.URL.Query().Get("filename")
	b.mu.Lock()
	entry, ok := b.dataFiles[name]
	b.mu.Unlock()
	if !ok || !hasAllowedExt(name, allowed) {
		writeDetail(w, http.StatusNotFound, "file not found")
		return
	}
	if kind == "excel" {
		writeData(w, map[string]any{"file_name": name, "size": len(entry.data)})
		return
	}
	records, err := csv.NewReader(bytes.NewReader(entry.data)).ReadAll()
	if err != nil {
		writeFailure(w, "preview failed: "+err.Error())
		return
	}
	preview := map[string]any{"columns": []string{}, "rows": [][]string{}, "total_rows": 0}
	if len(records) > 0 {
		rows := records[1:]
		preview["columns"] = records[0]
		preview["total_rows"] = len(rows)
		if len(rows) > 5 {
			rows = rows[:5]
		}
		preview["rows"] = rows
	}
	writeData(w, preview)
}

func (b *Backend) handleDeleteDataFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dataFiles[name]; !ok {
		writeDetail(w, http.StatusNotFound, "file not found")
		return
	}
	delete(b.dataFiles, name)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "file deleted"})
}

func (b *Backend) handleRenameDataFile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OldFilename string `json:"old_filename"`
		NewFilename string `json:"new_filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.OldFilename == "" || payload.NewFilename == "" {
		writeDetail(w, http.StatusBadRequest, "missing old or new file name")
		return
	}
	if !strings.EqualFold(path.Ext(payload.OldFilename), path.Ext(payload.NewFilename)) {
		writeDetail(w, http.StatusBadRequest, "changing the file extension is not allowed")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.dataFiles[payload.OldFilename]
	if !ok {
		writeDetail(w, http.StatusNotFound, "source file not found")
		return
	}
	if _, exists := b.dataFiles[payload.NewFilename]; exists {
		writeDetail(w, http.StatusBadRequest, "target file name already exists")
		return
	}
	delete(b.dataFiles, payload.OldFilename)
	b.dataFiles[payload.NewFilename] = entry
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "file renamed",
		"data":    schema.RenameResult{OldPath: payload.OldFilename, NewPath: payload.NewFilename},
	})
}

func (b *Backend) handleListDataFrames(w http.ResponseWriter, r *http.Request) {
	session := schema.SessionID(r.URL.Query().Get("session_id"))
	b.mu.Lock()
	names := append([]string{}, b.dataframes[session]...)
	b.mu.Unlock()
	writeData(w, names)
}

func (b *Backend) hasDataFrame(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, names := range b.dataframes {
		for _, candidate := range names {
			if candidate == name {
				return true
			}
		}
	}
	return false
}

func (b *Backend) handleDataFrameInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !b.hasDataFrame(name) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("DataFrame '%s' not found", name))
		return
	}
	writeData(w, schema.DataFrameInfo{
		BasicInfo: map[string]json.RawMessage{"rows": json.RawMessage("3"), "columns": json.RawMessage("1")},
		Columns:   []schema.DataFrameColumn{{Name: "value", Type: "int64"}},
	})
}

func (b *Backend) handleDataFramePreview(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !b.hasDataFrame(name) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("DataFrame %s does not exist", name))
		return
	}
	writeData(w, schema.DataFramePreview{
		Shape:       []int{3, 1},
		Columns:     map[string]string{"value": "int64"},
		MemoryUsage: 24,
		SampleData:  map[string]json.RawMessage{"value": json.RawMessage("[1,2,3]")},
	})
}

func (b *Backend) handleDataFrameSave(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req schema.SaveDataFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FilePath == "" {
		writeDetail(w, http.StatusBadRequest, "file_path is required")
		return
	}
	if !b.hasDataFrame(name) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("DataFrame %s does not exist", name))
		return
	}
	b.mu.Lock()
	b.dataFiles[path.Base(req.FilePath)] = dataFileEntry{data: []byte("value\n1\n2\n3\n"), modified: b.now()}
	b.mu.Unlock()
	writeData(w, map[string]any{"file_path": req.FilePath, "file_type": req.FileType})
}

func (b *Backend) handleResetContext(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID schema.SessionID `json:"session_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	b.mu.Lock()
	b.resets = append(b.resets, payload.SessionID)
	delete(b.dataframes, payload.SessionID)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (b *Backend) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Filename string          `json:"filename"`
		Notebook schema.Document `json:"notebook"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	fmt.Fprintf(&buf, "%% %s\n", payload.Filename)
	for _, cell := range payload.Notebook.Cells {
		fmt.Fprintf(&buf, "%% [%s] %s\n", cell.Type, strings.ReplaceAll(cell.Content, "\n", " "))
	}
	buf.WriteString("%%EOF\n")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", schema.ExportFileName(payload.Filename)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (b *Backend) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": "mock"})
}

func (b *Backend) handlePromptCategories(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := append([]schema.PromptCategory(nil), b.categories...)
	b.mu.Unlock()
	writeData(w, out)
}

func (b *Backend) handlePromptList(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("id")
	b.mu.Lock()
	out := make([]schema.Prompt, 0)
	for _, id := range sortedKeys(b.prompts) {
		if prompt := b.prompts[id]; prompt.CategoryID == category {
			out = append(out, prompt)
		}
	}
	b.mu.Unlock()
	writeData(w, out)
}

func (b *Backend) handlePromptCreate(w http.ResponseWriter, r *http.Request) {
	var prompt schema.Prompt
	if err := json.NewDecoder(r.Body).Decode(&prompt); err != nil || prompt.Title == "" {
		writeFailure(w, "title is required")
		return
	}
	prompt.ID = uuid.NewString()
	b.mu.Lock()
	b.prompts[prompt.ID] = prompt
	b.mu.Unlock()
	writeData(w, prompt)
}

func (b *Backend) handlePromptUpdate(w http.ResponseWriter, r *http.Request) {
	var prompt schema.Prompt
	if err := json.NewDecoder(r.Body).Decode(&prompt); err != nil {
		writeFailure(w, "invalid request body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.prompts[prompt.ID]; !ok {
		writeFailure(w, "prompt not found")
		return
	}
	b.prompts[prompt.ID] = prompt
	writeData(w, prompt)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": data})
}

func writeFailure(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": message})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
