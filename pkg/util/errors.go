// Package util provides logging helpers and the error taxonomy shared by the
// session engine and its callers.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. They describe the cause of a failure; the Kind of an
// *Error describes which operation failed.
var (
	ErrNotConnected     = errors.New("device not connected")
	ErrTimeout          = errors.New("timed out waiting for device prompt")
	ErrCommandRejected  = errors.New("command rejected by device")
	ErrCommandInFlight  = errors.New("previous command has not settled")
	ErrInvalidState     = errors.New("invalid session state transition")
	ErrUnexpectedPrompt = errors.New("unexpected device prompt")
	ErrDeviceLocked     = errors.New("device locked by another holder")
	ErrValidationFailed = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
)

// Kind is the closed set of engine failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindInitialization
	KindReadFailed
	KindCreateFailed
	KindUpdateFailed
	KindDeleteFailed
	KindCommitFailed
	KindRevertFailed
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindConnection:     "connection failed",
	KindInitialization: "initialization failed",
	KindReadFailed:     "read failed",
	KindCreateFailed:   "create failed",
	KindUpdateFailed:   "update failed",
	KindDeleteFailed:   "delete failed",
	KindCommitFailed:   "commit failed",
	KindRevertFailed:   "revert failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified engine failure with its structured cause.
type Error struct {
	Kind    Kind
	Device  string
	Command string // command that failed, if any
	Output  string // device output captured for the failing command
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Device != "" {
		sb.WriteString(" on " + e.Device)
	}
	if e.Command != "" {
		sb.WriteString(fmt.Sprintf(" (command %q)", e.Command))
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind Kind, device, command string, cause error) *Error {
	return &Error{Kind: kind, Device: device, Command: command, Err: cause}
}

// WithOutput attaches captured device output.
func (e *Error) WithOutput(output string) *Error {
	e.Output = output
	return e
}

// KindOf returns the outermost Kind in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HasKind reports whether any *Error in err's chain has the given kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// NeedsOperator reports whether err leaves the device in an unknown state.
func NeedsOperator(err error) bool {
	return HasKind(err, KindRevertFailed)
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
