// Package treeporterrors provides structured error handling for Treeport with
// error categorization, contextual details, and stack traces.
//
// Every detected anomaly during an import is fatal to the whole operation, so
// the categories exist for reporting and testing rather than for retry logic:
//
//	if treeporterrors.IsType(err, treeporterrors.ErrorTypeUnsupported) {
//	    // the source schema contains a shape the importer cannot translate
//	}
//
// Errors always carry a human-readable message; wrapping preserves the cause
// for errors.Is / errors.As chains.
package treeporterrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType categorizes an error. Categories map one-to-one onto the failure
// taxonomy of the import engine.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents runtime data validation failures,
	// e.g. a count leaf exceeding its planned maximum
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents missing resources or objects
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict represents destination name collisions
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents per-record transformation failures
	ErrorTypeData ErrorType = "data"
	// ErrorTypeFile represents source/destination container I/O errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeUnsupported represents source schema shapes the importer
	// cannot translate
	ErrorTypeUnsupported ErrorType = "unsupported"
)

// Error is a structured error with a category, optional details, and the call
// stack captured at the point of creation.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame of the call stack recorded at error creation.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key-value detail to the error. Chainable.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error with the given type and message, capturing the stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates an error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with a category and message, preserving the
// original as the cause. Returns nil for a nil input. If the cause is already
// a structured Error, its stack is kept rather than re-captured.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an existing error with a category and a formatted message.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// IsType reports whether err (or any error in its chain) is a structured
// Error of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
