package core

import (
	"context"

	"pkt.systems/cellbook/schema"
)

// Service is the transport-agnostic API for tabs, notebook sessions and cells.
// An empty TabID in a request addresses the active tab.
type Service interface {
	ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error)
	ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error)
	RenameTab(ctx context.Context, req schema.RenameTabRequest) (schema.UpdateTabResponse, error)
	MarkTabModified(ctx context.Context, req schema.MarkTabModifiedRequest) (schema.UpdateTabResponse, error)
	AddTag(ctx context.Context, req schema.TabTagRequest) (schema.UpdateTabResponse, error)
	RemoveTag(ctx context.Context, req schema.TabTagRequest) (schema.UpdateTabResponse, error)
	CloseNotebook(ctx context.Context, req schema.CloseNotebookRequest) (schema.CloseNotebookResponse, error)

	CreateNewNotebook(ctx context.Context, req schema.CreateNotebookRequest) (schema.CreateNotebookResponse, error)
	OpenNotebook(ctx context.Context, req schema.OpenNotebookRequest) (schema.OpenNotebookResponse, error)
	GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error)
	SaveNotebook(ctx context.Context, req schema.SaveNotebookRequest) (schema.SaveNotebookResponse, error)
	ListNotebooks(ctx context.Context, req schema.ListNotebooksRequest) (schema.ListNotebooksResponse, error)
	RenameNotebook(ctx context.Context, req schema.RenameNotebookRequest) (schema.RenameNotebookResponse, error)
	DeleteNotebook(ctx context.Context, req schema.DeleteNotebookRequest) (schema.DeleteNotebookResponse, error)
	ClearNotebook(ctx context.Context, req schema.ClearNotebookRequest) (schema.CellResponse, error)
	ResetExecutionContext(ctx context.Context, req schema.ResetContextRequest) (schema.ResetContextResponse, error)
	ExportPDF(ctx context.Context, req schema.ExportPDFRequest) (schema.ExportPDFResponse, error)

	AddCell(ctx context.Context, req schema.AddCellRequest) (schema.CellResponse, error)
	AddCellAbove(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error)
	AddCellBelow(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error)
	DeleteCell(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error)
	MoveCellUp(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error)
	MoveCellDown(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error)
	CopyCell(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error)
	ChangeCellType(ctx context.Context, req schema.ChangeCellTypeRequest) (schema.CellResponse, error)
	SetCellContent(ctx context.Context, req schema.SetCellContentRequest) (schema.CellResponse, error)
	SetCellOutput(ctx context.Context, req schema.SetCellOutputRequest) (schema.CellResponse, error)
	SetMarkdownEditState(ctx context.Context, req schema.SetEditStateRequest) (schema.CellResponse, error)
	InsertCode(ctx context.Context, req schema.InsertCodeRequest) (schema.CellResponse, error)
	HandleExecutionComplete(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error)
}

// Backend is the subset of the backend gateway the service drives.
type Backend interface {
	ListNotebooks(ctx context.Context) ([]schema.FileDescriptor, error)
	LoadNotebook(ctx context.Context, filename string) (schema.Document, error)
	SaveNotebook(ctx context.Context, filename string, doc schema.Document) error
	RenameNotebook(ctx context.Context, oldName, newName string) error
	DeleteNotebook(ctx context.Context, filename string) error
	ResetContext(ctx context.Context, sessionID schema.SessionID) error
	ExportPDF(ctx context.Context, filename string, doc schema.Document) (schema.Download, error)
}

// DataListingRefresher keeps the dataframe listing in step with open sessions.
type DataListingRefresher interface {
	RefreshSession(ctx context.Context, sessionID schema.SessionID) error
	ForgetSession(sessionID schema.SessionID)
}
