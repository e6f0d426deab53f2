// Package apperror provides a structured way to handle application errors
// with specific codes, a coarse error class, severity levels and additional
// details. It includes conversions to gRPC status errors and connect errors.
package apperror

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents a specific application error code.
type ErrorCode string

const (
	// Validation
	CodeInvalidNetwork      ErrorCode = "INVALID_NETWORK"
	CodeDuplicateLocation   ErrorCode = "DUPLICATE_LOCATION"
	CodeDanglingRoute       ErrorCode = "DANGLING_ROUTE"
	CodeNegativeCost        ErrorCode = "NEGATIVE_COST"
	CodeInvalidTime         ErrorCode = "INVALID_TIME"
	CodeNegativeEnvironment ErrorCode = "NEGATIVE_ENVIRONMENT"
	CodeUnknownMode         ErrorCode = "UNKNOWN_MODE"
	CodeSpeedOutOfRange     ErrorCode = "SPEED_OUT_OF_RANGE"
	CodeUnknownLocation     ErrorCode = "UNKNOWN_LOCATION"
	CodeUnknownRoute        ErrorCode = "UNKNOWN_ROUTE"
	CodeInvalidKind         ErrorCode = "INVALID_KIND"

	// Controller state
	CodeInvalidState      ErrorCode = "INVALID_STATE"
	CodeProtectedLocation ErrorCode = "PROTECTED_LOCATION"
	CodeSimulationRunning ErrorCode = "SIMULATION_RUNNING"
	CodeCrisisActive      ErrorCode = "CRISIS_ACTIVE"
	CodeEndpointLimit     ErrorCode = "ENDPOINT_LIMIT"

	// External collaborators
	CodeAdvisorUnavailable ErrorCode = "ADVISOR_UNAVAILABLE"
	CodeAdvisorMalformed   ErrorCode = "ADVISOR_MALFORMED"
	CodeAdvisorDisabled    ErrorCode = "ADVISOR_DISABLED"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeTimeout            ErrorCode = "TIMEOUT"

	// General
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	CodeNilInput          ErrorCode = "NIL_INPUT"
	CodeInvalidPagination ErrorCode = "INVALID_PAGINATION"
	CodeUnimplemented     ErrorCode = "UNIMPLEMENTED"
)

// Class groups error codes by how callers are expected to react.
type Class int

const (
	// ClassInternal is an unexpected failure inside the service.
	ClassInternal Class = iota
	// ClassValidation is a command referencing unknown or malformed input; commands absorb it as a no-op.
	ClassValidation
	// ClassState is a command issued in a state that does not accept it; it is rejected without side effects.
	ClassState
	// ClassExternal is a failure of an external collaborator; it is surfaced as a message and is retryable.
	ClassExternal
)

// String returns the string representation of the Class.
func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassState:
		return "state"
	case ClassExternal:
		return "external"
	default:
		return "internal"
	}
}

// Severity defines the criticality level of an error.
type Severity int

const (
	// SeverityWarning indicates a non-critical issue that can be ignored or automatically resolved.
	SeverityWarning Severity = iota
	// SeverityError indicates a standard error that requires attention.
	SeverityError
	// SeverityCritical indicates a severe error that might require immediate human intervention.
	SeverityCritical
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a custom error type that includes an ErrorCode, message,
// an optional field, additional details, an underlying cause, and a severity level.
type Error struct {
	Code     ErrorCode      // Code is a unique identifier for the type of error.
	Message  string         // Message is a human-readable description of the error.
	Field    string         // Field indicates which input field caused the error, if applicable.
	Details  map[string]any // Details provides additional structured information about the error.
	Cause    error          // Cause is the underlying error that triggered this application error.
	Severity Severity       // Severity indicates the criticality level of the error.
}

// Error implements the error interface, returning a string representation of the error.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error, allowing for error chain introspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Class reports the error class of the code.
func (e *Error) Class() Class {
	switch e.Code {
	case CodeInvalidNetwork, CodeDuplicateLocation, CodeDanglingRoute, CodeNegativeCost,
		CodeInvalidTime, CodeNegativeEnvironment, CodeUnknownMode, CodeSpeedOutOfRange,
		CodeUnknownLocation, CodeUnknownRoute, CodeInvalidKind, CodeNotFound,
		CodeInvalidArgument, CodeNilInput, CodeInvalidPagination:
		return ClassValidation

	case CodeInvalidState, CodeProtectedLocation, CodeSimulationRunning,
		CodeCrisisActive, CodeEndpointLimit:
		return ClassState

	case CodeAdvisorUnavailable, CodeAdvisorMalformed, CodeAdvisorDisabled,
		CodeRateLimited, CodeTimeout:
		return ClassExternal

	default:
		return ClassInternal
	}
}

// GRPCStatus converts the application error into a gRPC status.Status.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.grpcCode(), e.Message)
}

// grpcCode maps an ErrorCode to an appropriate gRPC codes.Code.
func (e *Error) grpcCode() codes.Code {
	switch e.Code {
	case CodeUnknownLocation, CodeUnknownRoute, CodeNotFound:
		return codes.NotFound

	case CodeInvalidState, CodeProtectedLocation, CodeSimulationRunning,
		CodeCrisisActive, CodeEndpointLimit, CodeAdvisorDisabled:
		return codes.FailedPrecondition

	case CodeAdvisorUnavailable, CodeAdvisorMalformed:
		return codes.Unavailable

	case CodeRateLimited:
		return codes.ResourceExhausted

	case CodeTimeout:
		return codes.DeadlineExceeded

	case CodeUnimplemented:
		return codes.Unimplemented

	case CodeInternal:
		return codes.Internal
	}

	if e.Class() == ClassValidation {
		return codes.InvalidArgument
	}
	return codes.Internal
}

// ConnectCode maps the error to a connect.Code. gRPC and connect share the
// numeric code space.
func (e *Error) ConnectCode() connect.Code {
	return connect.Code(e.grpcCode())
}

// New creates a new application error with the given code and message.
// The default severity is SeverityError.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithField creates a new application error with the given code, message, and field.
func NewWithField(code ErrorCode, message, field string) *Error {
	e := New(code, message)
	e.Field = field
	return e
}

// NewWarning creates a new application error with SeverityWarning.
func NewWarning(code ErrorCode, message string) *Error {
	e := New(code, message)
	e.Severity = SeverityWarning
	return e
}

// Wrap creates a new application error that wraps an existing error,
// providing additional context with a code and message.
func Wrap(cause error, code ErrorCode, message string) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithDetails adds a key-value pair to the error's details map and returns the modified error.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithField sets the field associated with the error and returns the modified error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// Is checks if the given error is an application error with a matching ErrorCode.
func Is(err error, code ErrorCode) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the ErrorCode from an error. If the error is not an *Error,
// it returns CodeInternal.
func Code(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// ClassOf returns the Class of err; non-application errors are ClassInternal.
func ClassOf(err error) Class {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Class()
	}
	return ClassInternal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return ClassOf(err) == ClassValidation }

// IsState reports whether err is a controller state error.
func IsState(err error) bool { return ClassOf(err) == ClassState }

// IsExternal reports whether err is an external collaborator failure.
func IsExternal(err error) bool { return ClassOf(err) == ClassExternal }

// ToGRPC converts an application error or any other error into a gRPC error status.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.GRPCStatus().Err()
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	return status.Error(codes.Internal, err.Error())
}

// ToConnect converts an error into a *connect.Error. Errors that are already
// connect errors pass through unchanged.
func ToConnect(err error) error {
	if err == nil {
		return nil
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		cerr := connect.NewError(appErr.ConnectCode(), errors.New(appErr.Message))
		cerr.Meta().Set("X-Error-Code", string(appErr.Code))
		if appErr.Field != "" {
			cerr.Meta().Set("X-Error-Field", appErr.Field)
		}
		return cerr
	}

	return connect.NewError(connect.CodeInternal, err)
}

// IsWarning checks if the given error is an application error with SeverityWarning.
func IsWarning(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Severity == SeverityWarning
	}
	return false
}

// Predefined errors for common scenarios.
var (
	ErrNilNetwork         = New(CodeNilInput, "network is nil")
	ErrUnknownLocation    = New(CodeUnknownLocation, "location not found")
	ErrUnknownRoute       = New(CodeUnknownRoute, "route not found")
	ErrProtectedLocation  = New(CodeProtectedLocation, "protected location cannot be destroyed")
	ErrSimulationRunning  = New(CodeSimulationRunning, "simulation is running")
	ErrCrisisActive       = New(CodeCrisisActive, "crisis mode is active")
	ErrAdvisorDisabled    = New(CodeAdvisorDisabled, "advisor is disabled")
	ErrAdvisorUnavailable = New(CodeAdvisorUnavailable, "advisor is unavailable")
	ErrRateLimited        = New(CodeRateLimited, "rate limit exceeded")
)

// ValidationErrors is a collection of application errors and warnings,
// typically used for aggregating results of multiple validation checks.
type ValidationErrors struct {
	Errors   []*Error
	Warnings []*Error
}

// NewValidationErrors creates and returns a new empty ValidationErrors collection.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors:   make([]*Error, 0),
		Warnings: make([]*Error, 0),
	}
}

// Add appends an *Error to the appropriate slice based on its Severity.
func (v *ValidationErrors) Add(err *Error) {
	if err.Severity == SeverityWarning {
		v.Warnings = append(v.Warnings, err)
	} else {
		v.Errors = append(v.Errors, err)
	}
}

// AddErrorWithField creates and adds a new application error with a specific field.
func (v *ValidationErrors) AddErrorWithField(code ErrorCode, message, field string) {
	v.Errors = append(v.Errors, NewWithField(code, message, field))
}

// HasErrors returns true if the collection contains any errors (non-warning severity).
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Err folds the collected errors into a single *Error, or nil when valid.
// The first error keeps its code; the rest are listed under the "errors" detail.
func (v *ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	first := v.Errors[0]
	out := New(first.Code, first.Message).WithField(first.Field)
	if len(v.Errors) > 1 {
		out.WithDetails("errors", v.ErrorMessages())
	}
	return out
}

// ErrorMessages returns a slice of string messages for all collected errors.
func (v *ValidationErrors) ErrorMessages() []string {
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Error()
	}
	return messages
}
