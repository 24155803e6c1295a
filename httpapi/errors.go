package httpapi

import (
	"errors"
	"net/http"

	"pkt.systems/cellbook/schema"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case schema.IsPrecondition(err):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrBackendApplication):
		return http.StatusBadGateway
	case errors.Is(err, schema.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
