package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Pipeline errors. Everything except ErrNoUsableRecords is recovered per image.
var (
	ErrServiceUnavailable = errors.New("extraction service unavailable")
	ErrNoText             = errors.New("no text found in image")
	ErrUnparseable        = errors.New("no structured data in response")
	ErrUnsupportedFile    = errors.New("unsupported file type")
	ErrNoUsableRecords    = errors.New("No valid data extracted from files")
	ErrResultNotFound     = errors.New("Result not found")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// UserMessage returns the message shown to end users for err.
func UserMessage(err error) string {
	var appErr *AppError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrResultNotFound):
		return ErrResultNotFound.Error()
	case errors.Is(err, ErrNoUsableRecords):
		return ErrNoUsableRecords.Error()
	case errors.As(err, &appErr):
		return appErr.Message
	case errors.Is(err, ErrDatabase):
		return "Database error, please try again later"
	case HTTPStatus(err) == http.StatusInternalServerError:
		// driver and wrapping detail stays in the logs
		return "Internal server error"
	default:
		return err.Error()
	}
}

// HTTPStatus maps err onto the status code the API replies with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrResultNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedFile):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoUsableRecords):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
