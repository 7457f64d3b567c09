// Package errors provides custom error types and error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes.
const (
	// Input errors, fatal for the enclosing run.
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeArtifactNotFound = "ARTIFACT_NOT_FOUND"
	CodeSchema           = "SCHEMA_ERROR"
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"

	// Runtime errors.
	CodeTraining    = "TRAINING_ERROR"
	CodeInference   = "INFERENCE_ERROR"
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit status for this error.
func (e *AppError) ExitCode() int {
	switch e.Code {
	case CodeConfiguration, CodeValidation:
		return 2
	case CodeArtifactNotFound, CodeNotFound:
		return 3
	case CodeSchema:
		return 4
	case CodeUnavailable, CodeTimeout:
		return 5
	default:
		return 1
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ConfigurationError creates a configuration error, e.g. a corpus directory
// without a label subdirectory.
func ConfigurationError(message string) *AppError {
	return New(CodeConfiguration, message)
}

// ArtifactNotFoundError creates an error for a missing classifier artifact.
func ArtifactNotFoundError(name string) *AppError {
	return New(CodeArtifactNotFound, fmt.Sprintf("artifact %s not found", name)).
		WithDetail("artifact", name)
}

// NotFoundError creates a not found error for a ledger record.
func NotFoundError(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id)).
		WithDetail(resource, id)
}

// SchemaError creates an error for a table missing a required column.
func SchemaError(column string) *AppError {
	return New(CodeSchema, fmt.Sprintf("required column %q is missing", column)).
		WithDetail("column", column)
}

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// TrainingError creates a training failure.
func TrainingError(message string, err error) *AppError {
	return Wrap(CodeTraining, message, err)
}

// InferenceError creates an inference failure.
func InferenceError(message string, err error) *AppError {
	return Wrap(CodeInference, message, err)
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// ServiceUnavailableError creates a service unavailable error.
func ServiceUnavailableError(service string) *AppError {
	message := "service unavailable"
	if service != "" {
		message = fmt.Sprintf("%s is unavailable", service)
	}
	return New(CodeUnavailable, message)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsConfiguration checks if error is a configuration error.
func IsConfiguration(err error) bool {
	return CodeOf(err) == CodeConfiguration
}

// IsArtifactNotFound checks if error is a missing artifact error.
func IsArtifactNotFound(err error) bool {
	return CodeOf(err) == CodeArtifactNotFound
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsSchema checks if error is a schema error.
func IsSchema(err error) bool {
	return CodeOf(err) == CodeSchema
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// ExitCode returns the exit status for any error. Nil maps to 0 and errors
// outside the taxonomy map to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.ExitCode()
	}
	return 1
}
