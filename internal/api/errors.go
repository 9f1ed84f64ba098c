package api

import (
	"errors"
	"net/http"

	"github.com/loreforge/loreforge/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case store.IsNotFound(err):
		return http.StatusNotFound

	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrProjectNotFound):
		return "Project not found"
	case errors.Is(err, store.ErrSourceNotFound):
		return "Source not found"
	case errors.Is(err, store.ErrLinkNotFound):
		return "Link not found"
	case store.IsNotFound(err):
		return "Resource not found"

	case errors.Is(err, store.ErrInvalidTransition):
		return "Job is already in a terminal state"

	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}
