// Package status defines the error taxonomy shared by every service in the
// core. Handlers map these sentinels to HTTP codes; services wrap them with
// pkg/errors to add call-site context and callers test with errors.Is.
package status

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation covers empty or oversized content and missing required
	// fields. Recoverable, surfaced to the caller.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers missing posts, messages and conversations. Owner
	// checks also surface ErrNotFound on purpose: a non-owner cannot tell an
	// unauthorized delete apart from a delete of a post that never existed.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned for unauthenticated access to
	// authenticated-only operations.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned for authenticated but disallowed access.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict covers duplicated shares/follows and self-action attempts.
	ErrConflict = errors.New("conflict")
)

// HTTPCode maps a service error to the status code handlers should respond
// with. Unrecognized errors are treated as internal failures: multi-step
// mutations roll back entirely and surface only a generic failure.
func HTTPCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
