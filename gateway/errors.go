package gateway

import (
	"fmt"

	"pkt.systems/cellbook/schema"
)

// TransportError reports a request that never produced a backend response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: backend unavailable: %v", e.Op, e.Err)
}

// Unwrap exposes both the cause and schema.ErrBackendUnavailable.
func (e *TransportError) Unwrap() []error {
	return []error{schema.ErrBackendUnavailable, e.Err}
}

// APIError reports a response with a non-success status.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns schema.ErrBackendApplication.
func (e *APIError) Unwrap() error {
	return schema.ErrBackendApplication
}
