// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/tokoku/pos-core/internal/shared"
)

// ErrMalformedBody indicates the request body could not be decoded.
var ErrMalformedBody = errors.New("malformed request body")

// StatusFor maps the domain error taxonomy to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var titles = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnprocessableEntity: "Validation Failed",
	http.StatusNotFound:            "Not Found",
	http.StatusConflict:            "Conflict",
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, "Internal Error", "")
		return
	}
	title := titles[status]
	switch {
	case errors.Is(err, shared.ErrInsufficientStock):
		title = "Insufficient Stock"
	case errors.Is(err, shared.ErrInvalidState):
		title = "Invalid State"
	}
	JSON(w, status, ProblemDetail{
		Type:      "about:blank",
		Title:     title,
		Status:    status,
		Detail:    err.Error(),
		Kind:      shared.Kind(err),
		Retryable: errors.Is(err, shared.ErrConflict),
		Errors:    shared.FieldErrors(err),
	})
}
