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
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"

	// CodeInsufficientStock marks a structural shortage; retrying the same order will not help.
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	// CodeDeliveryFailed marks a rejected remote delivery whose reservation was released.
	CodeDeliveryFailed Code = "DELIVERY_FAILED"
)

// Metadata drives how a code is surfaced over HTTP and whether callers may
// retry it.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	opaque    = false
	detailed  = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:        {http.StatusBadRequest, final, "validation failed", detailed},
	CodeUnauthorized:      {http.StatusUnauthorized, final, "authentication required", opaque},
	CodeForbidden:         {http.StatusForbidden, final, "access denied", opaque},
	CodeNotFound:          {http.StatusNotFound, final, "resource not found", opaque},
	CodeConflict:          {http.StatusConflict, final, "conflict detected", opaque},
	CodeStateConflict:     {http.StatusUnprocessableEntity, final, "state transition disallowed", detailed},
	CodeInternal:          {http.StatusInternalServerError, retryable, "internal server error", opaque},
	CodeDependency:        {http.StatusServiceUnavailable, retryable, "dependency unavailable", detailed},
	CodeRateLimit:         {http.StatusTooManyRequests, retryable, "too many requests", opaque},
	CodeInsufficientStock: {http.StatusConflict, final, "insufficient stock", detailed},
	CodeDeliveryFailed:    {http.StatusBadGateway, final, "delivery failed", detailed},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error carries a Code that selects the HTTP status and retry policy.
type Error struct {
	kind  Code
	msg   string
	extra any
	cause error
}

func New(code Code, message string) *Error {
	return &Error{kind: code, msg: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{kind: code, msg: message, cause: err}
}

// Code is CodeInternal for a nil receiver.
func (e *Error) Code() Code {
	if e != nil {
		return e.kind
	}
	return CodeInternal
}

func (e *Error) Message() string {
	if e != nil {
		return e.msg
	}
	return ""
}

func (e *Error) Details() any {
	if e != nil {
		return e.extra
	}
	return nil
}

// WithDetails attaches structured context exposed to clients when the code
// allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.extra = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	text := string(e.kind) + ": " + e.msg
	if e.cause != nil {
		text += ": " + e.cause.Error()
	}
	return text
}

func (e *Error) Unwrap() error {
	if e != nil {
		return e.cause
	}
	return nil
}

// As returns the first *Error in the chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether any typed error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		typed := As(err)
		if typed == nil {
			return false
		}
		if typed.kind == code {
			return true
		}
		err = typed.cause
	}
	return false
}

// IsRetryable reports whether the outermost typed error is marked retryable.
// Untyped errors are treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.Code()).Retryable
}
