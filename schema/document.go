package schema

import (
	"path"
	"strings"
)

// NotebookExt is the extension every persisted notebook document carries.
const NotebookExt = ".ipynb"

// CellOutput is the rendered execution result of a code cell.
type CellOutput struct {
	Output     string     `json:"output"`
	Plot       string     `json:"plot"`
	PlotlyHTML string     `json:"plotly_html"`
	Status     CellStatus `json:"status"`
}

// DefaultCellOutput returns the output record of a code cell that has not run.
func DefaultCellOutput() CellOutput {
	return CellOutput{Status: CellStatusIdle}
}

// Document is the notebook payload exchanged with the backend on save and load.
type Document struct {
	SessionID SessionID      `json:"session_id"`
	Cells     []DocumentCell `json:"cells"`
}

// DocumentCell is one serialised cell. Output is nil for markdown cells.
type DocumentCell struct {
	ID      CellID      `json:"id"`
	Type    CellType    `json:"type"`
	Content string      `json:"content"`
	Output  *CellOutput `json:"output"`
}

// FileDescriptor identifies a persisted notebook as listed by the backend.
type FileDescriptor struct {
	Name         string  `json:"name"`
	Path         string  `json:"path"`
	LastModified float64 `json:"last_modified,omitempty"`
}

// FileRef returns the path used to address the document, falling back to the name.
func (f FileDescriptor) FileRef() string {
	if p := strings.TrimSpace(f.Path); p != "" {
		return p
	}
	return strings.TrimSpace(f.Name)
}

// EnsureNotebookExt appends NotebookExt to name unless it is already present.
// An empty name stays empty.
func EnsureNotebookExt(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasSuffix(name, NotebookExt) {
		return name
	}
	return name + NotebookExt
}

// ValidateNotebookName requires a non-empty name that ends with NotebookExt.
func ValidateNotebookName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyFileName
	}
	if !strings.HasSuffix(name, NotebookExt) || name == NotebookExt {
		return ErrInvalidNotebookName
	}
	return nil
}

// NotebookTitle derives a tab title from a notebook path.
func NotebookTitle(file string) string {
	base := path.Base(strings.TrimSpace(file))
	if base == "." || base == "/" || base == "" {
		return DefaultTitle
	}
	base = strings.TrimSuffix(base, NotebookExt)
	if base == "" {
		return DefaultTitle
	}
	return base
}

// ExportFileName names the rendered artifact for a notebook path.
func ExportFileName(file string) string {
	return NotebookTitle(file) + ".pdf"
}

// Download is a binary artifact produced by the backend.
type Download struct {
	ContentType string
	Data        []byte
}
