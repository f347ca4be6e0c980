package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jwebster45206/divergence-engine/pkg/textfilter"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// Kind classifies a failed turn.
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindUpstream        Kind = "upstream"
	KindMalformedOutput Kind = "malformed_output"
	KindProgression     Kind = "progression"
	KindInvalidRequest  Kind = "invalid_request"
	KindRateLimited     Kind = "rate_limited"
)

// MaxRawLen bounds the model text echoed back on malformed output.
const MaxRawLen = 4000

// Error is a typed turn failure. It never carries scene data.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Raw     string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindUpstream, KindMalformedOutput, KindProgression:
		return http.StatusBadGateway
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Response renders the error body sent to clients.
func (e *Error) Response() turn.ErrorResponse {
	return turn.ErrorResponse{
		Error:  e.Message,
		Kind:   string(e.Kind),
		Detail: e.Detail,
		Raw:    e.Raw,
	}
}

// AsError converts any error into an *Error, treating unknown errors as
// upstream failures.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUpstream, Message: "Server error", Detail: err.Error(), Err: err}
}

func configurationError(envName string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: "Missing " + envName,
	}
}

func upstreamError(detail string, err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: "Server error",
		Detail:  detail,
		Err:     err,
	}
}

func malformedError(raw string, err error) *Error {
	return &Error{
		Kind:    KindMalformedOutput,
		Message: "Invalid AI JSON",
		Detail:  err.Error(),
		Raw:     textfilter.Truncate(raw, MaxRawLen),
		Err:     err,
	}
}

func progressionError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindProgression,
		Message: "Chapter progression violated",
		Detail:  fmt.Sprintf(format, args...),
	}
}

// InvalidRequest wraps a request decoding failure.
func InvalidRequest(err error) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Message: "Invalid request",
		Detail:  err.Error(),
		Err:     err,
	}
}

// RateLimited reports an exhausted turn budget.
func RateLimited(err error) *Error {
	return &Error{
		Kind:    KindRateLimited,
		Message: "Too many turns",
		Detail:  "slow down and try again shortly",
		Err:     err,
	}
}
