// Package cronerr classifies the errors that end a command, so that a single
// handler at the top of main can map them to stable exit codes.
package cronerr

import (
	"errors"
	"fmt"
)

// ClassifiedError is an error with a category and severity.
type ClassifiedError struct {
	category Category
	severity Severity
	message  string
	cause    error
}

// Error implements the standard error interface.
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error { return e.cause }

// Category returns the error category.
func (e *ClassifiedError) Category() Category { return e.category }

// Severity returns the error severity.
func (e *ClassifiedError) Severity() Severity { return e.severity }

// Message returns the message without the cause.
func (e *ClassifiedError) Message() string { return e.message }

// Is matches another ClassifiedError of the same category, so callers can
// test errors.Is(err, cronerr.New(cronerr.CategoryAlreadyRunning, "")).
func (e *ClassifiedError) Is(target error) bool {
	var other *ClassifiedError
	if errors.As(target, &other) {
		return e.category == other.category && (other.message == "" || e.message == other.message)
	}
	return false
}

// New creates a classified error.
func New(category Category, message string) *ClassifiedError {
	return &ClassifiedError{category: category, severity: SeverityError, message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(category Category, format string, args ...any) *ClassifiedError {
	return New(category, fmt.Sprintf(format, args...))
}

// Wrap classifies err. A nil err yields nil.
func Wrap(err error, category Category, message string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{category: category, severity: SeverityError, message: message, cause: err}
}

// Fatal returns a copy with fatal severity.
func (e *ClassifiedError) Fatal() *ClassifiedError {
	c := *e
	c.severity = SeverityFatal
	return &c
}

// AsClassified finds the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var c *ClassifiedError
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// CategoryOf returns the category of err, or CategoryInternal.
func CategoryOf(err error) Category {
	if c, ok := AsClassified(err); ok {
		return c.Category()
	}
	return CategoryInternal
}

// ExitCode maps err to its exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if code, ok := exitCodes[CategoryOf(err)]; ok {
		return code
	}
	return ExitGeneral
}
