// Package errors provides a lightweight structured error type (PageTreeError)
// for category-based classification of site build failures in the CLI and
// build report.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a pagetree error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Content tree errors
	CategorySource   ErrorCategory = "source"
	CategoryNaming   ErrorCategory = "naming"
	CategoryTemplate ErrorCategory = "template"

	// Output and external tool errors
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryRenderer   ErrorCategory = "renderer"
	CategoryPublish    ErrorCategory = "publish"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// PageTreeError is a structured error with category, retryability, and context
type PageTreeError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for PageTreeError
type ContextFields map[string]any

// Error implements the error interface
func (e *PageTreeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *PageTreeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *PageTreeError) WithContext(key string, value any) *PageTreeError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the severity of the error
func (e *PageTreeError) WithSeverity(severity ErrorSeverity) *PageTreeError {
	e.Severity = severity
	return e
}

// New creates a new PageTreeError
func New(category ErrorCategory, severity ErrorSeverity, message string) *PageTreeError {
	return &PageTreeError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new PageTreeError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PageTreeError {
	return &PageTreeError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable PageTreeError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *PageTreeError {
	return &PageTreeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As returns the outermost PageTreeError in err's chain.
func As(err error) (*PageTreeError, bool) {
	var pte *PageTreeError
	if stdErrors.As(err, &pte) {
		return pte, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if pte, ok := As(err); ok {
		return pte.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if pte, ok := As(err); ok {
		return pte.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a PageTreeError
func GetCategory(err error) ErrorCategory {
	if pte, ok := As(err); ok {
		return pte.Category
	}
	return CategoryInternal
}
