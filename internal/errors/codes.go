// Package errors defines the coded error kinds shared by the store, the
// retrieval core and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error kind.
type ErrorCode string

const (
	// ErrCodeEncoding indicates the embedding backend is unavailable or failed.
	ErrCodeEncoding ErrorCode = "ENCODING_FAILED"
	// ErrCodeDecoding indicates a corrupt or dimension-mismatched embedding blob.
	ErrCodeDecoding ErrorCode = "DECODING_FAILED"
	// ErrCodeInvalidTimestamp indicates an unparsable or missing entry date.
	ErrCodeInvalidTimestamp ErrorCode = "INVALID_TIMESTAMP"
	// ErrCodeNotFound indicates an unknown entry id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeGeneration indicates the text-generation backend failed.
	ErrCodeGeneration ErrorCode = "GENERATION_FAILED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeRerank indicates the cross-encoder backend failed.
	ErrCodeRerank ErrorCode = "RERANK_FAILED"
)

// AppError is a structured error carrying an ErrorCode.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Encoding creates an encoding error.
func Encoding(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeEncoding, Message: msg, Cause: cause}
}

// Decoding creates a decoding error.
func Decoding(msg string) *AppError {
	return &AppError{Code: ErrCodeDecoding, Message: msg}
}

// InvalidTimestamp creates an invalid timestamp error.
func InvalidTimestamp(value string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidTimestamp,
		Message: fmt.Sprintf("invalid timestamp %q", value),
		Cause:   cause,
	}
}

// NotFound creates a not found error for an entry id.
func NotFound(id string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("entry not found: %s", id),
	}
}

// Generation creates a generation error.
func Generation(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeGeneration, Message: msg, Cause: cause}
}

// Rerank creates a rerank error.
func Rerank(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeRerank, Message: msg, Cause: cause}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidArgument, Message: msg}
}

// IsCode reports whether any error in err's chain is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the chain holds no AppError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return defaultCode
}
