package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 10

// Error carries a numeric code alongside the message shown to operators.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// build is shared by every constructor so the recorded stack starts at the caller.
func build(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Details: map[string]interface{}{},
		Err:     cause,
		Stack:   callerStack(3),
	}
}

func New(code ErrorCode) *Error {
	return build(code, code.Message(), nil)
}

func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return build(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code to err. An *Error is re-coded on a copy so the original
// keeps its classification; nil stays nil.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		cp := *e
		cp.Code = code
		return &cp
	}
	return build(code, err.Error(), err)
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return build(code, fmt.Sprintf(format, args...), err)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// find walks the wrap chain for the outermost *Error.
func find(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns Success for nil and InternalServerError for foreign errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	if e, ok := find(err); ok {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the *Error in err's chain, wrapping foreign errors as internal.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := find(err); ok {
		return e
	}
	return Wrap(err, InternalServerError)
}

func Is(err error, code ErrorCode) bool {
	e, ok := find(err)
	return ok && e.Code == code
}

// IsFatal reports whether err must abort the evaluator run.
func IsFatal(err error) bool {
	e, ok := find(err)
	return ok && e.Code.IsFatal()
}

func callerStack(skip int) string {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&b, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			return b.String()
		}
	}
}

// ValidationError names the offending field and why it was rejected.
func ValidationError(field, reason string) *Error {
	return New(ValidationFailed).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// ConfigError is fatal and names the offending key.
func ConfigError(key, reason string) *Error {
	return Newf(ConfigurationError, "config %s: %s", key, reason).
		WithDetail("key", key)
}
