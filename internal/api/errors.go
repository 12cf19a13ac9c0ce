package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/qtensor/internal/tensor"
	"github.com/samcharles93/qtensor/pkg/quant"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps a codec or dispatch error to a status, error type and code.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, quant.ErrAlignment):
		return http.StatusBadRequest, "invalid_request_error", "alignment"
	case errors.Is(err, quant.ErrSizeMismatch):
		return http.StatusBadRequest, "invalid_request_error", "size_mismatch"
	case errors.Is(err, quant.ErrStructuralRead):
		return http.StatusBadRequest, "invalid_request_error", "structural_read"
	case errors.Is(err, tensor.ErrShape):
		return http.StatusBadRequest, "invalid_request_error", "shape_mismatch"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error", ""
	case errors.Is(err, quant.ErrBackendUnavailable):
		return http.StatusConflict, "backend_unavailable_error", "backend_unavailable"
	default:
		return http.StatusInternalServerError, "server_error", ""
	}
}
