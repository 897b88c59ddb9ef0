package bridgeerr

import (
	"errors"
	"fmt"
)

// Code is a stable error identifier shared with the front end. Codes are
// part of the wire contract: renaming one breaks every consumer.
type Code string

const (
	CodeNotReady         Code = "NOT_READY"
	CodeInFlight         Code = "IN_FLIGHT"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeInitError        Code = "INIT_ERROR"
	CodeTransportError   Code = "TRANSPORT_ERROR"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeNotImplemented   Code = "NOT_IMPLEMENTED"
	CodeDecodeError      Code = "DECODE_ERROR"
	CodeResultTimeout    Code = "RESULT_TIMEOUT"
)

// Error is the only error shape that crosses the channel. Everything raised
// below the controller boundary is mapped to one of these before emission.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotReady(format string, args ...any) *Error {
	return New(CodeNotReady, format, args...)
}

func InFlight(format string, args ...any) *Error {
	return New(CodeInFlight, format, args...)
}

func InitError(format string, args ...any) *Error {
	return New(CodeInitError, format, args...)
}

func Transport(format string, args ...any) *Error {
	return New(CodeTransportError, format, args...)
}

func Unavailable(format string, args ...any) *Error {
	return New(CodeUnavailable, format, args...)
}

func NotImplemented(method string) *Error {
	return New(CodeNotImplemented, "method %q is not implemented", method)
}

func Decode(format string, args ...any) *Error {
	return New(CodeDecodeError, format, args...)
}

// From returns err as an *Error, mapping unclassified errors to
// TRANSPORT_ERROR so no raw fault ever crosses the channel.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return &Error{Code: CodeTransportError, Message: err.Error()}
}

// CodeOf extracts the taxonomy code from err, defaulting to TRANSPORT_ERROR.
func CodeOf(err error) Code {
	return From(err).Code
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
