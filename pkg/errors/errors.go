package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeInvalidPromotion  Code = "INVALID_PROMOTION"
	CodeDistanceExceeded  Code = "DISTANCE_EXCEEDED"
	CodeUpstream          Code = "UPSTREAM_ERROR"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is rendered over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// UserFacing codes surface the error's own message instead of PublicMessage.
	UserFacing bool
}

type trait uint8

const (
	userFacing trait = 1 << iota
	detailed
	retryable
)

func describe(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		UserFacing:     traits&userFacing != 0,
		DetailsAllowed: traits&detailed != 0,
		Retryable:      traits&retryable != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        describe(http.StatusBadRequest, "validation failed", userFacing|detailed),
	CodeUnauthorized:      describe(http.StatusUnauthorized, "authentication required", userFacing),
	CodeForbidden:         describe(http.StatusForbidden, "access denied", userFacing),
	CodeNotFound:          describe(http.StatusNotFound, "resource not found", userFacing),
	CodeConflict:          describe(http.StatusConflict, "conflict detected", userFacing),
	CodeStateConflict:     describe(http.StatusUnprocessableEntity, "state transition disallowed", userFacing|detailed),
	CodeIdempotency:       describe(http.StatusConflict, "idempotency key reused", userFacing|detailed),
	CodeRateLimit:         describe(http.StatusTooManyRequests, "rate limit exceeded", userFacing),
	CodeInsufficientFunds: describe(http.StatusBadRequest, "insufficient wallet balance", userFacing|detailed),
	CodeInvalidPromotion:  describe(http.StatusBadRequest, "promotion code is not valid", userFacing|detailed),
	CodeDistanceExceeded:  describe(http.StatusBadRequest, "delivery distance exceeds the supported maximum", userFacing|detailed),
	CodeUpstream:          describe(http.StatusBadGateway, "upstream provider error", userFacing|detailed),
	CodeInternal:          describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:        describe(http.StatusServiceUnavailable, "dependency unavailable", detailed|retryable),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded application error with an optional cause and client-safe
// details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches cause to a new coded error; a nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Code() Code {
	if e == nil {
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

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
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
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	return As(err).Code()
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
