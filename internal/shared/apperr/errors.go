// Package apperr holds the error classes shared by every module.
//
// Specific errors wrap one class with %w so callers can branch with errors.Is
// on the class without knowing the concrete error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound means the addressed entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the entity is in a state that rejects the operation.
	ErrConflict = errors.New("conflict")
	// ErrTransient means the store could not be reached within its bound.
	// The operation outcome is unknown and the caller should re-query.
	ErrTransient = errors.New("transient store failure")
	// ErrInvalidArgument means the request itself is malformed.
	ErrInvalidArgument = errors.New("invalid argument")
)

// New builds a specific error that belongs to class.
func New(class error, msg string) error {
	return fmt.Errorf("%s: %w", msg, class)
}

// Transient marks err as a transient store failure for op.
// Nil stays nil and errors already classified are returned as is.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClassified(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// IsClassified reports whether err already carries one of the classes.
func IsClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrInvalidArgument)
}

// HTTPStatus maps an error class to the status code controllers answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
