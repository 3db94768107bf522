// Package errors carries the API's typed error codes and how each one is
// rendered to clients.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata controls how a code is rendered.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// EchoMessage lets the error's own message replace PublicMessage.
	EchoMessage bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	withDetails
	echo
)

func describe(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&withDetails != 0,
		EchoMessage:    traits&echo != 0,
	}
}

// 5xx codes never echo: their messages name internals.
var codes = map[Code]Metadata{
	CodeValidation:    describe(http.StatusBadRequest, "validation failed", echo|withDetails),
	CodeUnauthorized:  describe(http.StatusUnauthorized, "authentication required", echo),
	CodeForbidden:     describe(http.StatusForbidden, "access denied", echo),
	CodeNotFound:      describe(http.StatusNotFound, "resource not found", echo),
	CodeConflict:      describe(http.StatusConflict, "conflict detected", echo),
	CodeStateConflict: describe(http.StatusUnprocessableEntity, "state transition disallowed", echo|withDetails),
	CodeIdempotency:   describe(http.StatusConflict, "idempotency key reused", echo|withDetails),
	CodeRateLimit:     describe(http.StatusTooManyRequests, "rate limit exceeded", echo),
	CodeInternal:      describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	meta, ok := codes[code]
	if !ok {
		return codes[CodeInternal]
	}
	return meta
}

// Error is a coded error with an optional cause and client-safe details.
// The zero value and nil both read as CodeInternal.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// WithDetails attaches client-visible details. Codes without DetailsAllowed
// drop them at render time.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil || e.code == "" {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// PublicMessage is the text a client may see.
func (e *Error) PublicMessage() string {
	meta := MetadataFor(e.Code())
	if msg := e.Message(); meta.EchoMessage && msg != "" {
		return msg
	}
	return meta.PublicMessage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	text := string(e.Code()) + ": " + e.message
	if e.cause != nil {
		text += ": " + e.cause.Error()
	}
	return text
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err == nil || !stdErrors.As(err, &typed) {
		return nil
	}
	return typed
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Retryable reports whether a client may retry unchanged. Untyped errors
// count as internal.
func Retryable(err error) bool {
	return err != nil && MetadataFor(As(err).Code()).Retryable
}
