package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeState             = "STATE_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeBackend           = "BACKEND_ERROR"
	ErrCodeConfig            = "CONFIG_ERROR"
	ErrCodeStore             = "STORE_ERROR"
)

// HandoffError is the structured error type for all handoff operations.
type HandoffError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *HandoffError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *HandoffError) Unwrap() error {
	return e.Cause
}

// NewError creates a new HandoffError.
func NewError(code, message string) *HandoffError {
	return &HandoffError{Code: code, Message: message}
}

// NewErrorf creates a new HandoffError with a formatted message.
func NewErrorf(code, format string, args ...any) *HandoffError {
	return &HandoffError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *HandoffError) WithStep(stepID string) *HandoffError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *HandoffError) WithCause(err error) *HandoffError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *HandoffError) WithDetails(details map[string]any) *HandoffError {
	e.Details = details
	return e
}

// CodeOf returns the error code if err is a HandoffError, or "" otherwise.
func CodeOf(err error) string {
	if he, ok := err.(*HandoffError); ok {
		return he.Code
	}
	return ""
}
