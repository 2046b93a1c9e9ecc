package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindInvalidInput  ErrorKind = "invalid_input"
	KindClient        ErrorKind = "client"
	KindRateLimit     ErrorKind = "rate_limit"
	KindTransient     ErrorKind = "transient"
	KindUpstream      ErrorKind = "upstream"
	KindParse         ErrorKind = "parse"
	KindProvider      ErrorKind = "provider"
	KindTimeout       ErrorKind = "timeout"
)

const (
	MessageRateLimited    = "Rate limit exceeded. Please try again in a few moments."
	MessageInvalidRequest = "Invalid request. Please check your API key and request format."
)

// Error is the structured failure every processing operation returns.
// Status is the upstream HTTP status when one was observed and Body the
// upstream body text (trimmed).
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
	Body    string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so callers can write
// errors.Is(err, &domain.Error{Kind: domain.KindTimeout}).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && (other.Message == "" || other.Message == e.Message)
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ConfigurationError(key string) *Error {
	return &Error{Kind: KindConfiguration, Message: key + " is not configured"}
}

func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// KindOf returns the kind of err, or an empty kind when err is not an *Error.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}

// HTTPStatus maps a kind to the status returned to callers.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindClient:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTransient, KindUpstream, KindParse, KindProvider:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Code is the stable machine readable code used in error payloads.
func (k ErrorKind) Code() string {
	switch k {
	case KindConfiguration:
		return "configuration_error"
	case KindInvalidInput, KindClient:
		return "invalid_request"
	case KindRateLimit:
		return "rate_limited"
	case KindTransient:
		return "upstream_unavailable"
	case KindUpstream:
		return "upstream_error"
	case KindParse:
		return "parse_error"
	case KindProvider:
		return "provider_error"
	case KindTimeout:
		return "timeout"
	default:
		return "internal_error"
	}
}
