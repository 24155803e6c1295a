package schema

import "encoding/json"

// DataFile is a data file stored by the backend.
type DataFile struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"`
}

// DataFilePreview is the backend's preview of a data file. The shape of the
// rows is owned by the backend and passed through untouched.
type DataFilePreview map[string]json.RawMessage

// UploadResult describes a stored upload. The backend may rename the file to
// avoid collisions.
type UploadResult struct {
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// RenameResult reports the old and new path of a renamed data file.
type RenameResult struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// DataFrameInfo is the backend's description of one in-memory dataframe.
type DataFrameInfo struct {
	BasicInfo map[string]json.RawMessage `json:"basic_info"`
	Columns   []DataFrameColumn          `json:"columns"`
	Preview   json.RawMessage            `json:"preview,omitempty"`
}

// DataFrameColumn describes one dataframe column.
type DataFrameColumn struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	NullCount int    `json:"null_count"`
}

// DataFramePreview is a short sample of a dataframe.
type DataFramePreview struct {
	Shape       []int                      `json:"shape"`
	Columns     map[string]string          `json:"columns"`
	MemoryUsage int64                      `json:"memory_usage"`
	SampleData  map[string]json.RawMessage `json:"sample_data"`
}

// SaveDataFrameRequest asks the backend to write a dataframe to a file.
type SaveDataFrameRequest struct {
	FilePath string `json:"file_path"`
	FileType string `json:"file_type"`
}

// Prompt is a reusable prompt template managed by the backend.
type Prompt struct {
	ID         string `json:"id,omitempty"`
	CategoryID string `json:"category_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

// PromptCategory groups prompts.
type PromptCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BackendVersion is the version report of the backend.
type BackendVersion map[string]json.RawMessage

// Panel width bounds for the side panel.
const (
	PanelMinWidth     = 250
	PanelMaxWidth     = 400
	PanelDefaultWidth = PanelMinWidth
)

// PanelState is the resizable side panel state.
type PanelState struct {
	Width    int  `json:"width"`
	Dragging bool `json:"dragging"`
}

// ClampPanelWidth bounds width to the supported panel range.
// Non-positive widths select the default.
func ClampPanelWidth(width int) int {
	switch {
	case width <= 0:
		return PanelDefaultWidth
	case width < PanelMinWidth:
		return PanelMinWidth
	case width > PanelMaxWidth:
		return PanelMaxWidth
	default:
		return width
	}
}
