// Package faults defines the typed error taxonomy shared by the harness.
//
// Four recoverable categories exist:
//   - InvalidInput: unknown regime/pattern, malformed payload. Fails
//     immediately, never silently defaults.
//   - SafetyViolation: non-synthetic data submitted for injection. Fails
//     before any forwarding.
//   - UsageError: insufficient arguments or an operation on an unknown
//     context (e.g. determinism check with fewer than 2 snapshots).
//   - EnvironmentError: overlay/interceptor install or restore failure.
//     Triggers rollback of partially applied state.
//
// A fifth code, Timeout, marks operations that exceeded their caller-supplied
// deadline instead of hanging.
//
// Validation failures are NOT faults: a failing validator returns a normal
// validate.Result with Passed=false and full diagnostics.
package faults

import (
	"errors"
	"fmt"
)

// Code categorizes faults.
type Code string

const (
	// CodeInvalidInput indicates an unrecognized discriminant or malformed record.
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeSafetyViolation indicates non-synthetic data reached an injection point.
	CodeSafetyViolation Code = "SAFETY_VIOLATION"

	// CodeUsageError indicates a caller misused the API (bad arity, unknown context).
	CodeUsageError Code = "USAGE_ERROR"

	// CodeEnvironmentError indicates environment overlay or interceptor failure.
	CodeEnvironmentError Code = "ENVIRONMENT_ERROR"

	// CodeTimeout indicates an operation exceeded its caller-supplied deadline.
	CodeTimeout Code = "TIMEOUT"
)

// Fault is a structured, catchable error raised by the harness core.
//
// Fault includes structured fields for diagnostics and recovery. Unexpected
// errors are never wrapped into Faults; they propagate unmodified.
type Fault struct {
	// Code identifies the fault category.
	Code Code

	// Message is a human-readable description.
	Message string

	// ContextID identifies the affected test context, when one exists.
	ContextID string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.ContextID != "" {
		return fmt.Sprintf("%s: %s (context=%s)", f.Code, f.Message, f.ContextID)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// NewInvalidInput creates a Fault for an unrecognized discriminant or payload.
func NewInvalidInput(format string, args ...any) *Fault {
	return &Fault{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// NewSafetyViolation creates a Fault for non-synthetic data at an injection point.
func NewSafetyViolation(contextID, format string, args ...any) *Fault {
	return &Fault{Code: CodeSafetyViolation, Message: fmt.Sprintf(format, args...), ContextID: contextID}
}

// NewUsageError creates a Fault for API misuse.
func NewUsageError(format string, args ...any) *Fault {
	return &Fault{Code: CodeUsageError, Message: fmt.Sprintf(format, args...)}
}

// NewEnvironmentError creates a Fault for environment overlay/interceptor failure.
func NewEnvironmentError(contextID, format string, args ...any) *Fault {
	return &Fault{Code: CodeEnvironmentError, Message: fmt.Sprintf(format, args...), ContextID: contextID}
}

// NewTimeout creates a Fault for an operation that exceeded its deadline.
func NewTimeout(contextID, op string) *Fault {
	return &Fault{
		Code:      CodeTimeout,
		Message:   fmt.Sprintf("operation %s exceeded deadline", op),
		ContextID: contextID,
		Details:   map[string]string{"operation": op},
	}
}

// is reports whether err is a Fault with the given code.
// Uses errors.As to handle wrapped errors.
func is(err error, code Code) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code == code
	}
	return false
}

// IsInvalidInput returns true if the error is an invalid-input fault.
func IsInvalidInput(err error) bool { return is(err, CodeInvalidInput) }

// IsSafetyViolation returns true if the error is a safety-violation fault.
func IsSafetyViolation(err error) bool { return is(err, CodeSafetyViolation) }

// IsUsageError returns true if the error is a usage fault.
func IsUsageError(err error) bool { return is(err, CodeUsageError) }

// IsEnvironmentError returns true if the error is an environment fault.
func IsEnvironmentError(err error) bool { return is(err, CodeEnvironmentError) }

// IsTimeout returns true if the error is a timeout fault.
func IsTimeout(err error) bool { return is(err, CodeTimeout) }
