package api

import (
	"errors"
	"net/http"

	"github.com/timguo/taichi/internal/kernel"
	"github.com/timguo/taichi/internal/linalg"
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

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// classify maps engine errors to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, kernel.ErrCompile),
		errors.Is(err, linalg.ErrBadShape),
		errors.Is(err, linalg.ErrShapeMismatch),
		errors.Is(err, linalg.ErrDType):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, linalg.ErrSingularMatrix), errors.Is(err, linalg.ErrConvergence):
		return http.StatusUnprocessableEntity, "numeric_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
