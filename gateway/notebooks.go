package gateway

import (
	"context"
	"net/http"
	"net/url"

	"pkt.systems/cellbook/schema"
)

const notebooksPrefix = "/api/notebooks"

// ListNotebooks returns the persisted notebooks sorted by the backend.
func (c *Client) ListNotebooks(ctx context.Context) ([]schema.FileDescriptor, error) {
	var out []schema.FileDescriptor
	err := c.call(ctx, request{
		op:     "list_notebooks",
		method: http.MethodGet,
		path:   notebooksPrefix + "/list_notebooks",
	}, payloadData, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type saveNotebookBody struct {
	Filename string          `json:"filename"`
	Notebook schema.Document `json:"notebook"`
}

// SaveNotebook writes doc under filename.
func (c *Client) SaveNotebook(ctx context.Context, filename string, doc schema.Document) error {
	return c.call(ctx, request{
		op:     "save_notebook",
		method: http.MethodPost,
		path:   notebooksPrefix + "/save_notebook",
		body:   saveNotebookBody{Filename: filename, Notebook: doc},
	}, payloadNone, nil)
}

// LoadNotebook fetches the document stored under filename.
func (c *Client) LoadNotebook(ctx context.Context, filename string) (schema.Document, error) {
	var doc schema.Document
	err := c.call(ctx, request{
		op:     "load_notebook",
		method: http.MethodGet,
		path:   notebooksPrefix + "/load_notebook",
		query:  url.Values{"filename": {filename}},
	}, payloadData, &doc)
	return doc, err
}

type renameBody struct {
	OldFilename string `json:"old_filename"`
	NewFilename string `json:"new_filename"`
}

// RenameNotebook moves a notebook to a new name. The backend requires the
// .ipynb extension on newName.
func (c *Client) RenameNotebook(ctx context.Context, oldName, newName string) error {
	return c.call(ctx, request{
		op:     "rename_notebook",
		method: http.MethodPost,
		path:   notebooksPrefix + "/rename_notebook",
		body:   renameBody{OldFilename: oldName, NewFilename: newName},
	}, payloadNone, nil)
}

// DeleteNotebook removes a persisted notebook.
func (c *Client) DeleteNotebook(ctx context.Context, filename string) error {
	return c.call(ctx, request{
		op:     "delete_notebook",
		method: http.MethodDelete,
		path:   notebooksPrefix + "/delete_notebook",
		query:  url.Values{"filename": {filename}},
	}, payloadNone, nil)
}
