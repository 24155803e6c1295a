package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"pkt.systems/cellbook/schema"
)

const dataFramesPrefix = "/api/dataframes"

// ListDataFrames returns the dataframe variables alive in a session's context.
func (c *Client) ListDataFrames(ctx context.Context, sessionID schema.SessionID) ([]string, error) {
	var query url.Values
	if sessionID != "" {
		query = url.Values{"session_id": {string(sessionID)}}
	}
	var out []string
	err := c.call(ctx, request{
		op:     "list_dataframes",
		method: http.MethodGet,
		path:   dataFramesPrefix + "/list",
		query:  query,
	}, payloadData, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DataFrameInfo describes one dataframe.
func (c *Client) DataFrameInfo(ctx context.Context, name string) (schema.DataFrameInfo, error) {
	var out schema.DataFrameInfo
	err := c.call(ctx, request{
		op:     "dataframe_info",
		method: http.MethodGet,
		path:   dataFramesPrefix + "/info/" + url.PathEscape(name),
	}, payloadData, &out)
	return out, err
}

// PreviewDataFrame samples one dataframe.
func (c *Client) PreviewDataFrame(ctx context.Context, name string) (schema.DataFramePreview, error) {
	var out schema.DataFramePreview
	err := c.call(ctx, request{
		op:     "dataframe_preview",
		method: http.MethodGet,
		path:   dataFramesPrefix + "/preview/" + url.PathEscape(name),
	}, payloadData, &out)
	return out, err
}

// SaveDataFrame writes a dataframe to a file on the backend.
func (c *Client) SaveDataFrame(ctx context.Context, name string, req schema.SaveDataFrameRequest) (map[string]json.RawMessage, error) {
	var out map[string]json.RawMessage
	err := c.call(ctx, request{
		op:     "dataframe_save",
		method: http.MethodPost,
		path:   dataFramesPrefix + "/" + url.PathEscape(name) + "/save",
		body:   req,
	}, payloadData, &out)
	return out, err
}
