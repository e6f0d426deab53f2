// Package apperror provides tests for the custom error types and utility functions.
package apperror

import (
	"errors"
	"fmt"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TestError_Error verifies that the Error() method returns the correct string format.
func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without field",
			err:      New(CodeInvalidNetwork, "network is invalid"),
			expected: "[INVALID_NETWORK] network is invalid",
		},
		{
			name:     "with field",
			err:      NewWithField(CodeUnknownLocation, "location not found", "origin"),
			expected: "[UNKNOWN_LOCATION] location not found (field: origin)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, CodeAdvisorUnavailable, "advisor call failed")

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the cause")
	}
}

func TestError_Class(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want Class
	}{
		{CodeUnknownLocation, ClassValidation},
		{CodeSpeedOutOfRange, ClassValidation},
		{CodeProtectedLocation, ClassState},
		{CodeInvalidState, ClassState},
		{CodeAdvisorUnavailable, ClassExternal},
		{CodeTimeout, ClassExternal},
		{CodeInternal, ClassInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").Class(); got != tt.want {
				t.Errorf("Class() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_GRPCStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want codes.Code
	}{
		{CodeNegativeCost, codes.InvalidArgument},
		{CodeUnknownRoute, codes.NotFound},
		{CodeCrisisActive, codes.FailedPrecondition},
		{CodeAdvisorMalformed, codes.Unavailable},
		{CodeRateLimited, codes.ResourceExhausted},
		{CodeTimeout, codes.DeadlineExceeded},
		{CodeInternal, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			st := New(tt.code, "msg").GRPCStatus()
			if st.Code() != tt.want {
				t.Errorf("GRPCStatus().Code() = %v, want %v", st.Code(), tt.want)
			}
			if st.Message() != "msg" {
				t.Errorf("GRPCStatus().Message() = %q", st.Message())
			}
		})
	}
}

func TestToConnect(t *testing.T) {
	if ToConnect(nil) != nil {
		t.Fatal("ToConnect(nil) should be nil")
	}

	err := ToConnect(NewWithField(CodeUnknownLocation, "location not found", "id"))
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *connect.Error, got %T", err)
	}
	if cerr.Code() != connect.CodeNotFound {
		t.Errorf("Code() = %v, want %v", cerr.Code(), connect.CodeNotFound)
	}
	if got := cerr.Meta().Get("X-Error-Code"); got != string(CodeUnknownLocation) {
		t.Errorf("X-Error-Code = %q", got)
	}
	if got := cerr.Meta().Get("X-Error-Field"); got != "id" {
		t.Errorf("X-Error-Field = %q", got)
	}

	plain := ToConnect(errors.New("boom"))
	if connect.CodeOf(plain) != connect.CodeInternal {
		t.Errorf("plain error code = %v", connect.CodeOf(plain))
	}

	already := connect.NewError(connect.CodeAborted, errors.New("x"))
	if ToConnect(already) != already {
		t.Error("connect errors must pass through")
	}
}

func TestToGRPC(t *testing.T) {
	if ToGRPC(nil) != nil {
		t.Fatal("ToGRPC(nil) should be nil")
	}

	st, ok := status.FromError(ToGRPC(ErrProtectedLocation))
	if !ok || st.Code() != codes.FailedPrecondition {
		t.Errorf("unexpected status %v", st)
	}

	st, _ = status.FromError(ToGRPC(errors.New("boom")))
	if st.Code() != codes.Internal {
		t.Errorf("plain error code = %v", st.Code())
	}
}

func TestIsAndCode(t *testing.T) {
	wrapped := fmt.Errorf("destroy: %w", ErrProtectedLocation)

	if !Is(wrapped, CodeProtectedLocation) {
		t.Error("Is should unwrap")
	}
	if Is(wrapped, CodeUnknownRoute) {
		t.Error("Is should compare codes")
	}
	if Code(wrapped) != CodeProtectedLocation {
		t.Errorf("Code() = %v", Code(wrapped))
	}
	if Code(errors.New("x")) != CodeInternal {
		t.Error("unknown errors map to CodeInternal")
	}
	if !IsState(wrapped) || IsValidation(wrapped) || IsExternal(wrapped) {
		t.Error("class helpers disagree with Class()")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collection must be valid")
	}

	v.Add(NewWarning(CodeInvalidNetwork, "isolated location"))
	if v.HasErrors() {
		t.Fatal("warnings must not invalidate")
	}

	v.AddErrorWithField(CodeDanglingRoute, "route references unknown location", "routes[0]")
	v.AddErrorWithField(CodeNegativeCost, "cost must be >= 0", "routes[1]")

	err := v.Err()
	if !Is(err, CodeDanglingRoute) {
		t.Fatalf("Err() = %v", err)
	}
	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected *Error")
	}
	if msgs, ok := appErr.Details["errors"].([]string); !ok || len(msgs) != 2 {
		t.Errorf("details = %v", appErr.Details)
	}
}
