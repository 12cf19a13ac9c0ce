package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qtensor/internal/backend"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
		},
	})
}

// writeErr reports err with the status its kind maps to.
func writeErr(c *echo.Context, err error) error {
	status, typ, code := classify(err)
	return writeError(c, status, typ, err.Error(), code)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// parseBackend reads an optional backend name; empty means Auto.
func parseBackend(name string) (backend.Kind, error) {
	if strings.TrimSpace(name) == "" {
		return backend.Auto, nil
	}
	k, err := backend.ParseKind(name)
	if err != nil {
		return 0, newInvalidRequest(err.Error())
	}
	return k, nil
}
