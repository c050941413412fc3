package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/chatproxy/pkg/provider"
	"github.com/odvcencio/chatproxy/pkg/queue"
	"github.com/odvcencio/chatproxy/pkg/session"
)

// ErrorCode is the wire-level error type carried in the error envelope.
type ErrorCode string

const (
	CodeInvalidRequest ErrorCode = "invalid_request_error"
	CodeNotFound       ErrorCode = "not_found"
	CodeServerError    ErrorCode = "server_error"
	CodeOverloaded     ErrorCode = "overloaded"
	CodeTimeout        ErrorCode = "timeout"
	CodeSessionError   ErrorCode = "session_error"
)

// ProxyError carries a wire error code alongside the underlying cause.
type ProxyError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ProxyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

// NewProxyError creates a ProxyError without a cause.
func NewProxyError(code ErrorCode, message string) *ProxyError {
	return &ProxyError{Code: code, Message: message}
}

// WrapProxyError attaches a wire code to an existing error.
func WrapProxyError(code ErrorCode, message string, err error) *ProxyError {
	return &ProxyError{Code: code, Message: message, Err: err}
}

// Classify maps any internal error onto a ProxyError for the wire. Errors
// already carrying a code pass through unchanged.
func Classify(err error) *ProxyError {
	if err == nil {
		return nil
	}
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, provider.ErrUnknown):
		return WrapProxyError(CodeNotFound, "unknown model", err)
	case errors.Is(err, queue.ErrOverloaded):
		return WrapProxyError(CodeOverloaded, "too many pending requests", err)
	case errors.Is(err, queue.ErrTimedOutInQueue),
		errors.Is(err, provider.ErrResponseTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return WrapProxyError(CodeTimeout, "request timed out", err)
	case errors.Is(err, session.ErrSessionStart),
		errors.Is(err, provider.ErrSessionLost),
		errors.Is(err, provider.ErrNavigationRequired):
		return WrapProxyError(CodeSessionError, "browser session unavailable", err)
	default:
		return WrapProxyError(CodeServerError, "internal error", err)
	}
}
