package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "neurojudge/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{StatusNotFound, "Status record not found"},
		{InvalidParams, "Invalid parameters"},
		{ExecutionFailed, "Execution failed"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{InvalidFlag, 400},
		{StatusNotFound, 404},
		{Timeout, 504},
		{TokenExpired, 401},
		{Forbidden, 403},
		{TooManyRequests, 429},
		{InternalServerError, 500},
		{EngineStartFailed, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(StatusNotFound, "status %d not found", int64(42))

	want := "status 42 not found"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if err.Code != StatusNotFound {
		t.Errorf("Code = %v, want %v", err.Code, StatusNotFound)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(StatusNotFound), want: StatusNotFound},
		{name: "wrapped by fmt", err: fmt.Errorf("pass: %w", New(EngineStartFailed)), want: EngineStartFailed},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(StatusNotFound)

	if !Is(err, StatusNotFound) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, StatusNotFound) {
		t.Error("Is() should return false for nil error")
	}
	if !Is(fmt.Errorf("ctx: %w", err), StatusNotFound) {
		t.Error("Is() should follow wrapped errors")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(ConfigError("engine.home", "required")) {
		t.Error("configuration errors must be fatal")
	}
	if !IsFatal(fmt.Errorf("start: %w", New(MissingMaster))) {
		t.Error("wrapped configuration errors must be fatal")
	}
	if IsFatal(New(ExecutionFailed)) {
		t.Error("execution errors must not be fatal")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("plain errors must not be fatal")
	}
}

func TestWrapRecodesCopy(t *testing.T) {
	orig := New(StatusNotFound)
	wrapped := Wrap(orig, DatabaseError)

	if wrapped.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrapped.Code, DatabaseError)
	}
	if orig.Code != StatusNotFound {
		t.Errorf("original code changed to %v", orig.Code)
	}
}

func TestGetError(t *testing.T) {
	if GetError(nil) != nil {
		t.Error("GetError(nil) should be nil")
	}
	plain := GetError(errors.New("boom"))
	if plain.Code != InternalServerError || plain.Error() != "boom" {
		t.Errorf("unexpected wrap of plain error: %v %q", plain.Code, plain.Error())
	}
	inner := Newf(InvalidFlag, "flag x")
	if got := GetError(fmt.Errorf("outer: %w", inner)); got != inner {
		t.Error("GetError should return the wrapped *Error")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("ConfigError", func(t *testing.T) {
		err := ConfigError("engine.master", "required")
		if err.Code != ConfigurationError {
			t.Error("ConfigError should use ConfigurationError code")
		}
		if err.Details["key"] != "engine.master" {
			t.Error("key detail not set")
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("flag", "unknown")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "flag" {
			t.Error("Field detail not set")
		}
	})
}
