package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"pkt.systems/pslog"
)

const (
	// DefaultBaseURL is where the notebook backend listens by default.
	DefaultBaseURL = "http://127.0.0.1:5000"
	// DefaultTimeout bounds a single backend request.
	DefaultTimeout = 30 * time.Second

	statusSuccess = "success"
	statusOK      = "ok"
	maxErrorBody  = 64 << 10
)

// Config configures the backend client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tracer     trace.Tracer
}

// Client calls the notebook backend. One method maps to one endpoint.
type Client struct {
	base   *url.URL
	http   *http.Client
	tracer trace.Tracer
}

// New builds a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", raw)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("gateway")
	}
	return &Client{base: base, http: httpClient, tracer: tracer}, nil
}

// CloseIdleConnections releases pooled connections to the backend.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// BaseURL returns the backend root the client targets.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// envelope is the uniform backend response wrapper. FastAPI errors arrive as
// {"detail": ...} instead.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
	Data    json.RawMessage `json:"data"`
	Files   json.RawMessage `json:"files"`
}

// payload selects which envelope member carries the result.
type payload int

const (
	payloadData payload = iota
	payloadFiles
	payloadBody
	payloadNone
)

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        any
	rawBody     io.Reader
	contentType string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// send performs the request and returns the open response. Callers close the body.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	var body io.Reader
	contentType := req.contentType
	switch {
	case req.rawBody != nil:
		body = req.rawBody
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", req.op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", req.op, err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: req.op, Err: err}
	}
	return resp, nil
}

// call runs req and decodes the selected envelope member into out.
func (c *Client) call(ctx context.Context, req request, sel payload, out any) error {
	return c.do(ctx, req, func(resp *http.Response) error {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Op: req.op, Err: fmt.Errorf("read response: %w", err)}
		}
		return decodeEnvelope(req.op, resp.StatusCode, raw, sel, out)
	})
}

// do runs req inside a client span and hands the response to handle.
func (c *Client) do(ctx context.Context, req request, handle func(*http.Response) error) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend."+req.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.method),
			attribute.String("http.route", req.path),
		),
	)
	start := time.Now()
	defer func() {
		logger := pslog.Ctx(ctx).With("op", req.op, "method", req.method, "path", req.path, "duration_ms", time.Since(start).Milliseconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("backend call failed", "err", err)
		} else {
			logger.Debug("backend call ok")
		}
		span.End()
	}()

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return handle(resp)
}

func decodeEnvelope(op string, statusCode int, raw []byte, sel payload, out any) error {
	var env envelope
	isEnvelope := false
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &env); err == nil {
			isEnvelope = env.Status != "" || len(env.Detail) > 0
		}
	}

	if statusCode < 200 || statusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = detailMessage(env.Detail)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(truncate(trimmed, 512)))
		}
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return &APIError{Op: op, StatusCode: statusCode, Message: msg}
	}
	if isEnvelope && env.Status != statusSuccess && env.Status != statusOK {
		msg := env.Message
		if msg == "" {
			msg = detailMessage(env.Detail)
		}
		return &APIError{Op: op, StatusCode: statusCode, Message: msg}
	}
	if out == nil || sel == payloadNone {
		return nil
	}

	body := json.RawMessage(trimmed)
	if isEnvelope && sel != payloadBody {
		switch sel {
		case payloadFiles:
			body = env.Files
		default:
			body = env.Data
		}
	}
	if len(body) == 0 || string(body) == "null" {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Op: op, StatusCode: statusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// detailMessage flattens a FastAPI detail, which is either a string or a list
// of validation errors.
func detailMessage(detail json.RawMessage) string {
	if len(detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(detail, &text); err == nil {
		return text
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(detail, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				parts = append(parts, item.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return string(detail)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
