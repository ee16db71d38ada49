// Package errors provides structured error handling for MeltFlow.
// It implements errors with codes, key/value context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Configuration errors (1xx)
	CodeFileNotFound    Code = "E101"
	CodeInvalidDeck     Code = "E102"
	CodeInvalidScanPath Code = "E103"
	CodeInvalidBoundary Code = "E104"
	CodeInvalidValue    Code = "E105"

	// Runtime errors (2xx)
	CodeSolverFailed    Code = "E201"
	CodeRankMismatch    Code = "E202"
	CodeInterrupted     Code = "E203"

	// Output errors (3xx)
	CodeWriteFailed  Code = "E301"
	CodeExportFailed Code = "E302"

	// Checkpoint/backend errors (4xx)
	CodeCheckpointSave Code = "E401"
	CodeCheckpointLoad Code = "E402"
	CodeBackendConnect Code = "E403"

	// Unknown
	CodeUnknown Code = "E999"
)

// MeltFlowError is the base error type for all MeltFlow errors.
type MeltFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *MeltFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *MeltFlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *MeltFlowError) Is(target error) bool {
	if t, ok := target.(*MeltFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *MeltFlowError) WithContext(key string, value interface{}) *MeltFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new MeltFlowError.
func New(code Code, message string) *MeltFlowError {
	return &MeltFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *MeltFlowError {
	if err == nil {
		return nil
	}

	return &MeltFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *MeltFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *MeltFlowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *MeltFlowError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// InvalidBoundary creates an invalid boundary type error.
func InvalidBoundary(face, typ string) *MeltFlowError {
	return New(CodeInvalidBoundary, "invalid boundary type").
		WithContext("face", face).
		WithContext("type", typ)
}

// InvalidScanPath creates a malformed scan path error.
func InvalidScanPath(path string, line int, cause error) *MeltFlowError {
	return Wrap(cause, CodeInvalidScanPath, "malformed scan path").
		WithContext("path", path).
		WithContext("line", line)
}

// GetCode extracts the error code, or CodeUnknown for foreign errors.
func GetCode(err error) Code {
	var me *MeltFlowError
	if errors.As(err, &me) {
		return me.Code
	}
	return CodeUnknown
}
