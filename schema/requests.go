package schema

// Tabs.

// ListTabsRequest describes a request to list tabs.
type ListTabsRequest struct{}

// ListTabsResponse reports tabs in display order and the active tab.
type ListTabsResponse struct {
	Tabs      []TabSnapshot `json:"tabs"`
	ActiveTab TabID         `json:"active_tab,omitempty"`
}

// ActivateTabRequest describes a request to activate a tab.
type ActivateTabRequest struct {
	TabID TabID `json:"tab_id"`
}

// ActivateTabResponse reports whether the active tab changed.
type ActivateTabResponse struct {
	ActiveTab TabID `json:"active_tab,omitempty"`
	Changed   bool  `json:"changed"`
}

// RenameTabRequest sets a tab's display title.
type RenameTabRequest struct {
	TabID TabID  `json:"tab_id"`
	Title string `json:"title"`
}

// MarkTabModifiedRequest sets a tab's dirty flag.
type MarkTabModifiedRequest struct {
	TabID    TabID `json:"tab_id"`
	Modified bool  `json:"modified"`
}

// TabTagRequest adds or removes one tag.
type TabTagRequest struct {
	TabID TabID  `json:"tab_id"`
	Tag   string `json:"tag"`
}

// UpdateTabResponse reports whether a tab mutation changed anything.
type UpdateTabResponse struct {
	Changed bool `json:"changed"`
}

// CloseNotebookRequest closes a tab and its session.
type CloseNotebookRequest struct {
	TabID TabID `json:"tab_id"`
}

// CloseNotebookResponse reports the closed tab and the new active tab.
type CloseNotebookResponse struct {
	Closed    bool  `json:"closed"`
	ActiveTab TabID `json:"active_tab,omitempty"`
}

// Notebooks.

// CreateNotebookRequest opens a fresh notebook in a new tab.
type CreateNotebookRequest struct {
	Title string `json:"title,omitempty"`
}

// CreateNotebookResponse reports the new tab and session.
type CreateNotebookResponse struct {
	TabID     TabID     `json:"tab_id"`
	SessionID SessionID `json:"session_id"`
}

// OpenNotebookRequest opens a persisted notebook.
type OpenNotebookRequest struct {
	File FileDescriptor `json:"file"`
}

// OpenNotebookResponse reports the tab showing the notebook.
// Fallback is set when loading failed and a fresh notebook was created instead.
type OpenNotebookResponse struct {
	TabID     TabID  `json:"tab_id"`
	Reused    bool   `json:"reused"`
	Fallback  bool   `json:"fallback"`
	LoadError string `json:"load_error,omitempty"`
}

// GetSessionRequest fetches a session snapshot. Empty TabID selects the active tab.
type GetSessionRequest struct {
	TabID TabID `json:"tab_id,omitempty"`
}

// GetSessionResponse wraps the session snapshot.
type GetSessionResponse struct {
	Session SessionSnapshot `json:"session"`
}

// SaveNotebookRequest persists a session. FileName overrides the bound name.
type SaveNotebookRequest struct {
	TabID    TabID  `json:"tab_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// SaveNotebookResponse reports the save outcome.
type SaveNotebookResponse struct {
	Saved    bool   `json:"saved"`
	FileName string `json:"file_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ListNotebooksRequest lists persisted notebooks.
type ListNotebooksRequest struct{}

// ListNotebooksResponse reports persisted notebooks.
type ListNotebooksResponse struct {
	Notebooks []FileDescriptor `json:"notebooks"`
}

// RenameNotebookRequest renames a persisted notebook.
type RenameNotebookRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// RenameNotebookResponse reports the tab that was re-pointed, if any.
type RenameNotebookResponse struct {
	TabID TabID `json:"tab_id,omitempty"`
}

// DeleteNotebookRequest deletes a persisted notebook.
type DeleteNotebookRequest struct {
	FileName string `json:"file_name"`
}

// DeleteNotebookResponse reports the tab closed with the document, if any.
type DeleteNotebookResponse struct {
	ClosedTab TabID `json:"closed_tab,omitempty"`
}

// ClearNotebookRequest empties a session. Empty TabID selects the active tab.
type ClearNotebookRequest struct {
	TabID TabID `json:"tab_id,omitempty"`
}

// ResetContextRequest resets the backend execution context of a tab.
type ResetContextRequest struct {
	TabID TabID `json:"tab_id,omitempty"`
}

// ExportPDFRequest renders a notebook. FileName binds an unsaved session first.
type ExportPDFRequest struct {
	TabID    TabID  `json:"tab_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// ExportPDFResponse carries the rendered document.
type ExportPDFResponse struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Cells.

// AddCellRequest appends a cell. Empty Type means code.
type AddCellRequest struct {
	TabID TabID    `json:"tab_id,omitempty"`
	Type  CellType `json:"type,omitempty"`
}

// CellRequest addresses one cell.
type CellRequest struct {
	TabID  TabID  `json:"tab_id,omitempty"`
	CellID CellID `json:"cell_id"`
}

// ChangeCellTypeRequest switches a cell between code and markdown.
type ChangeCellTypeRequest struct {
	TabID  TabID    `json:"tab_id,omitempty"`
	CellID CellID   `json:"cell_id"`
	Type   CellType `json:"type"`
}

// SetCellContentRequest replaces a cell's text.
type SetCellContentRequest struct {
	TabID   TabID  `json:"tab_id,omitempty"`
	CellID  CellID `json:"cell_id"`
	Content string `json:"content"`
}

// SetCellOutputRequest records execution status and results of a code cell.
type SetCellOutputRequest struct {
	TabID  TabID      `json:"tab_id,omitempty"`
	CellID CellID     `json:"cell_id"`
	Output CellOutput `json:"output"`
}

// SetEditStateRequest toggles a markdown cell between edit and rendered mode.
type SetEditStateRequest struct {
	TabID   TabID  `json:"tab_id,omitempty"`
	CellID  CellID `json:"cell_id"`
	Editing bool   `json:"editing"`
}

// InsertCodeRequest places generated code at the end of a notebook.
type InsertCodeRequest struct {
	TabID TabID  `json:"tab_id,omitempty"`
	Code  string `json:"code"`
}

// CellResponse reports the affected cell and whether anything changed.
type CellResponse struct {
	CellID  CellID `json:"cell_id,omitempty"`
	Changed bool   `json:"changed"`
}

// ResetContextResponse reports the session whose execution context was reset.
type ResetContextResponse struct {
	SessionID SessionID `json:"session_id"`
}
