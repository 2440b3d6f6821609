package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound               = errors.New("resource not found")
	ErrBadRequest             = errors.New("bad request")
	ErrConflict               = errors.New("resource conflict")
	ErrInternal               = errors.New("internal server error")
	ErrValidation             = errors.New("validation error")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientComponents = errors.New("insufficient components")
	ErrUnitConversionMissing  = errors.New("unit conversion missing")
	ErrRecipeCycle            = errors.New("recipe cycle detected")
	ErrInvalidTransition      = errors.New("invalid state transition")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Domain error constructors

// InvalidQuantity rejects a non-positive quantity passed to a mutating call.
func InvalidQuantity(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// InsufficientStock signals a removal larger than the available balance.
func InsufficientStock(message string) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// InsufficientComponents signals a production start that cannot reserve its
// full component set.
func InsufficientComponents(message string) *AppError {
	return &AppError{
		Err:        ErrInsufficientComponents,
		Code:       "INSUFFICIENT_COMPONENTS",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// UnitConversionMissing signals that no conversion path exists between two
// units for an item.
func UnitConversionMissing(from, to string) *AppError {
	return &AppError{
		Err:        ErrUnitConversionMissing,
		Code:       "UNIT_CONVERSION_MISSING",
		Message:    fmt.Sprintf("no conversion path from %s to %s", from, to),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// RecipeCycleDetected signals that a recursive bill-of-materials expansion
// revisited an ancestor recipe.
func RecipeCycleDetected(recipeID string) *AppError {
	return &AppError{
		Err:        ErrRecipeCycle,
		Code:       "RECIPE_CYCLE_DETECTED",
		Message:    fmt.Sprintf("recipe %s is part of a component cycle", recipeID),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// InvalidTransition rejects a lifecycle call made from a state that does not
// permit it.
func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransition,
		Code:       "INVALID_TRANSITION",
		Message:    fmt.Sprintf("cannot transition from %s to %s", from, to),
		StatusCode: http.StatusConflict,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
