package server

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRunNotFound indicates the run has never executed
type ErrRunNotFound struct {
	RunID string
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

// ErrInvalidLink indicates a link token that is malformed, forged or expired
type ErrInvalidLink struct {
	Cause error
}

func (e *ErrInvalidLink) Error() string {
	return fmt.Sprintf("invalid or expired link: %v", e.Cause)
}

func (e *ErrInvalidLink) Unwrap() error { return e.Cause }

// ErrAccessCodeRequired indicates the X-Access-Code header is missing
type ErrAccessCodeRequired struct{}

func (e *ErrAccessCodeRequired) Error() string {
	return "access code required"
}

// ErrAccessDenied indicates the access code does not match the run's current link
type ErrAccessDenied struct{}

func (e *ErrAccessDenied) Error() string {
	return "invalid access code"
}

// ErrLinkRevoked indicates a valid token for a report that is no longer published
type ErrLinkRevoked struct {
	RunID string
}

func (e *ErrLinkRevoked) Error() string {
	return fmt.Sprintf("link is no longer active for run %s", e.RunID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound *ErrRunNotFound
		invalid  *ErrInvalidLink
		required *ErrAccessCodeRequired
		denied   *ErrAccessDenied
		revoked  *ErrLinkRevoked
		badInput *ErrValidation
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &required):
		return http.StatusUnauthorized
	case errors.As(err, &denied):
		return http.StatusForbidden
	case errors.As(err, &revoked):
		return http.StatusGone
	case errors.As(err, &badInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
