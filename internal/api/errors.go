package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/perceptual/internal/nlpd"
	"github.com/samcharles93/perceptual/internal/pim"
	"github.com/samcharles93/perceptual/internal/tensor"
)

// ErrInvalidRequest classifies request validation failures.
var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg   string
	param string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, msg string) error {
	return invalidRequestError{msg: msg, param: param}
}

// writeDomainError maps package errors onto HTTP statuses.
func writeDomainError(c *echo.Context, err error) error {
	var inv invalidRequestError
	switch {
	case errors.As(err, &inv):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", inv.msg, inv.param, "")
	case errors.Is(err, nlpd.ErrInvalidConfig):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "", "invalid_config")
	case errors.Is(err, nlpd.ErrInvalidShape), errors.Is(err, nlpd.ErrShapeMismatch),
		errors.Is(err, tensor.ErrInvalidShape), errors.Is(err, tensor.ErrDataMismatch):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "", "invalid_shape")
	case errors.Is(err, pim.ErrInvalidName):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "model", "")
	case errors.Is(err, pim.ErrNotFound):
		return writeError(c, http.StatusNotFound, "not_found_error", err.Error(), "model", "")
	case errors.Is(err, pim.ErrDownload):
		return writeError(c, http.StatusBadGateway, "upstream_error", err.Error(), "", "download_failed")
	case errors.Is(err, pim.ErrConfig), errors.Is(err, pim.ErrWeights), errors.Is(err, pim.ErrArchive):
		return writeError(c, http.StatusUnprocessableEntity, "model_error", err.Error(), "", "")
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
}
