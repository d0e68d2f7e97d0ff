// Package apperror defines the domain error taxonomy shared by the service,
// repository and handler layers.
//
// Every error is an *AppError wrapping one sentinel. Callers test the kind
// with errors.Is(err, apperror.ErrDuplicate) and read the details with
// errors.As. The handler package is the only place that turns a kind into an
// HTTP status.
package apperror

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	ErrUnauthorized  = errors.New("unauthorized")
	ErrSchema        = errors.New("malformed input")
	ErrType          = errors.New("wrong type")
	ErrValue         = errors.New("value out of range")
	ErrDuplicate     = errors.New("duplicate")
	ErrAlreadyExists = errors.New("already exists")
	ErrSelfReference = errors.New("self reference")
	ErrEmptyCart     = errors.New("empty cart")
)

type AppError struct {
	Err     error   // actual error
	Message string  // Human-readable error message
	Field   string  // Optional: field causing the error
	IDs     []int64 // Optional: offending identifiers (duplicates, missing references)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string, id int64) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %d", resource, id),
	}
}

// NotFoundMessage is NotFound for lookups that are not keyed by a single id,
// such as "recipe is not in your favorites".
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

// MissingReferences reports ids submitted in a request body that do not
// exist. Unlike NotFound it is bound to a field, so it surfaces as a 400.
func MissingReferences(field, resource string, ids []int64) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with ids %s", resource, joinIDs(ids)),
		Field:   field,
		IDs:     ids,
	}
}

// NotPresent reports that a toggled relation the caller referred to does not
// exist, e.g. removing a favorite that was never added. It is bound to the
// relation's target field and surfaces as a 400.
func NotPresent(field, message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
		Field:   field,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict: %s", resource, message),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func Schema(field, message string) *AppError {
	return &AppError{
		Err:     ErrSchema,
		Message: message,
		Field:   field,
	}
}

func Type(field, message string) *AppError {
	return &AppError{
		Err:     ErrType,
		Message: message,
		Field:   field,
	}
}

func Value(field, message string) *AppError {
	return &AppError{
		Err:     ErrValue,
		Message: message,
		Field:   field,
	}
}

func Duplicate(field string, ids []int64) *AppError {
	return &AppError{
		Err:     ErrDuplicate,
		Message: fmt.Sprintf("duplicate %s: %s", field, joinIDs(ids)),
		Field:   field,
		IDs:     ids,
	}
}

func AlreadyExists(message string) *AppError {
	return &AppError{
		Err:     ErrAlreadyExists,
		Message: message,
	}
}

func SelfReference(message string) *AppError {
	return &AppError{
		Err:     ErrSelfReference,
		Message: message,
	}
}

func EmptyCart() *AppError {
	return &AppError{
		Err:     ErrEmptyCart,
		Message: "shopping cart is empty",
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
