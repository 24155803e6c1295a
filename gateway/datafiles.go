package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"pkt.systems/cellbook/schema"
)

const dataFilesPrefix = "/api/data-files"

// DataFileKind selects the backend ingest path for a data file.
type DataFileKind string

const (
	// KindCSV is a comma separated file.
	KindCSV DataFileKind = "csv"
	// KindExcel is an .xls or .xlsx workbook.
	KindExcel DataFileKind = "excel"
)

// KindForName maps a file name to its ingest kind by extension.
func KindForName(name string) (DataFileKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return KindCSV, nil
	case ".xls", ".xlsx":
		return KindExcel, nil
	default:
		return "", fmt.Errorf("%q: %w", name, schema.ErrUnsupportedFileType)
	}
}

// ListDataFiles returns the data files stored by the backend.
func (c *Client) ListDataFiles(ctx context.Context) ([]schema.DataFile, error) {
	var out []schema.DataFile
	err := c.call(ctx, request{
		op:     "list_data_files",
		method: http.MethodGet,
		path:   dataFilesPrefix + "/list",
	}, payloadFiles, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UploadDataFile streams content as a multipart upload to the endpoint
// matching the name's extension.
func (c *Client) UploadDataFile(ctx context.Context, name string, content io.Reader) (schema.UploadResult, error) {
	kind, err := KindForName(name)
	if err != nil {
		return schema.UploadResult{}, err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return schema.UploadResult{}, fmt.Errorf("upload %s: %w", name, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return schema.UploadResult{}, fmt.Errorf("upload %s: read content: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return schema.UploadResult{}, fmt.Errorf("upload %s: %w", name, err)
	}
	var out schema.UploadResult
	err = c.call(ctx, request{
		op:          "upload_" + string(kind),
		method:      http.MethodPost,
		path:        dataFilesPrefix + "/upload/" + string(kind),
		rawBody:     &buf,
		contentType: mw.FormDataContentType(),
	}, payloadData, &out)
	return out, err
}

// PreviewDataFile returns the backend preview of a stored data file.
func (c *Client) PreviewDataFile(ctx context.Context, name string) (schema.DataFilePreview, error) {
	kind, err := KindForName(name)
	if err != nil {
		return nil, err
	}
	var out schema.DataFilePreview
	err = c.call(ctx, request{
		op:     "preview_" + string(kind),
		method: http.MethodGet,
		path:   dataFilesPrefix + "/preview/" + string(kind),
		query:  url.Values{"filename": {name}},
	}, payloadData, &out)
	return out, err
}

// DeleteDataFile removes a stored data file.
func (c *Client) DeleteDataFile(ctx context.Context, name string) error {
	return c.call(ctx, request{
		op:     "delete_data_file",
		method: http.MethodDelete,
		path:   dataFilesPrefix + "/delete",
		query:  url.Values{"filename": {name}},
	}, payloadNone, nil)
}

// RenameDataFile renames a stored data file. The backend rejects extension changes.
func (c *Client) RenameDataFile(ctx context.Context, oldName, newName string) (schema.RenameResult, error) {
	var out schema.RenameResult
	err := c.call(ctx, request{
		op:     "rename_data_file",
		method: http.MethodPost,
		path:   dataFilesPrefix + "/rename",
		body:   renameBody{OldFilename: oldName, NewFilename: newName},
	}, payloadData, &out)
	return out, err
}
