package gateway

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"pkt.systems/cellbook/schema"
)

// ResetContext drops the backend execution context of a session.
func (c *Client) ResetContext(ctx context.Context, sessionID schema.SessionID) error {
	return c.call(ctx, request{
		op:     "reset_context",
		method: http.MethodPost,
		path:   "/api/execution/reset_context",
		body:   map[string]string{"session_id": string(sessionID)},
	}, payloadNone, nil)
}

type exportBody struct {
	Filename string          `json:"filename"`
	Notebook schema.Document `json:"notebook"`
}

// ExportPDF renders doc. Failures arrive as a JSON envelope instead of a document.
func (c *Client) ExportPDF(ctx context.Context, filename string, doc schema.Document) (schema.Download, error) {
	req := request{
		op:     "export_pdf",
		method: http.MethodPost,
		path:   "/api/export/pdf",
		body:   exportBody{Filename: filename, Notebook: doc},
	}
	var out schema.Download
	err := c.do(ctx, req, func(resp *http.Response) error {
		mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if resp.StatusCode < 200 || resp.StatusCode > 299 || mediaType == "application/json" {
			raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			if err != nil {
				return &TransportError{Op: req.op, Err: fmt.Errorf("read response: %w", err)}
			}
			if err := decodeEnvelope(req.op, resp.StatusCode, raw, payloadNone, nil); err != nil {
				return err
			}
			return &APIError{Op: req.op, StatusCode: resp.StatusCode, Message: "backend returned no document"}
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Op: req.op, Err: fmt.Errorf("read document: %w", err)}
		}
		out = schema.Download{ContentType: mediaType, Data: data}
		if out.ContentType == "" {
			out.ContentType = "application/pdf"
		}
		return nil
	})
	return out, err
}

// Version reports the backend version information.
func (c *Client) Version(ctx context.Context) (schema.BackendVersion, error) {
	var out schema.BackendVersion
	err := c.call(ctx, request{
		op:     "system_version",
		method: http.MethodGet,
		path:   "/api/system/version",
	}, payloadBody, &out)
	return out, err
}

const promptPrefix = "/api/prompt"

// PromptCategories lists prompt categories.
func (c *Client) PromptCategories(ctx context.Context) ([]schema.PromptCategory, error) {
	var out []schema.PromptCategory
	err := c.call(ctx, request{
		op:     "prompt_categories",
		method: http.MethodGet,
		path:   promptPrefix + "/categories",
	}, payloadData, &out)
	return out, err
}

// Prompts lists the prompts of one category.
func (c *Client) Prompts(ctx context.Context, categoryID string) ([]schema.Prompt, error) {
	var out []schema.Prompt
	err := c.call(ctx, request{
		op:     "prompt_list",
		method: http.MethodGet,
		path:   promptPrefix + "/category/" + url.PathEscape(categoryID),
	}, payloadData, &out)
	return out, err
}

// CreatePrompt stores a new prompt and returns it with its assigned id.
func (c *Client) CreatePrompt(ctx context.Context, prompt schema.Prompt) (schema.Prompt, error) {
	var out schema.Prompt
	err := c.call(ctx, request{
		op:     "prompt_create",
		method: http.MethodPost,
		path:   promptPrefix,
		body:   prompt,
	}, payloadData, &out)
	return out, err
}

// UpdatePrompt replaces an existing prompt.
func (c *Client) UpdatePrompt(ctx context.Context, prompt schema.Prompt) (schema.Prompt, error) {
	var out schema.Prompt
	err := c.call(ctx, request{
		op:     "prompt_update",
		method: http.MethodPut,
		path:   promptPrefix,
		body:   prompt,
	}, payloadData, &out)
	return out, err
}
