// Package domain provides canonical error types for the bridge.
package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed request, including
	// payloads that cannot be translated between protocols.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates an authentication failure.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypePermission indicates a permission/authorization failure.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeOverloaded indicates the service is overloaded.
	ErrorTypeOverloaded ErrorType = "overloaded"

	// ErrorTypeServer indicates an internal or upstream server error.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeTimeout indicates the backend did not answer in time.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeStreamInterrupted indicates the backend stream ended early.
	ErrorTypeStreamInterrupted ErrorType = "stream_interrupted"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeTranslationFailed ErrorCode = "translation_failed"
	ErrorCodeModelNotFound     ErrorCode = "model_not_found"
	ErrorCodeUpstream          ErrorCode = "upstream_error"
	ErrorCodeUpstreamTimeout   ErrorCode = "upstream_timeout"
	ErrorCodeStreamInterrupted ErrorCode = "stream_interrupted"
	ErrorCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
)

// APIError represents a canonical API error raised anywhere on the request
// path and rendered into the client's protocol by the ingress adapter.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Param is the parameter that caused the error (if applicable)
	Param string `json:"param,omitempty"`

	// StatusCode is the suggested HTTP status code
	StatusCode int `json:"-"`

	// SourceAPI indicates which backend protocol produced the error
	SourceAPI APIType `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeStreamInterrupted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// WithSourceAPI sets the source API type.
func (e *APIError) WithSourceAPI(api APIType) *APIError {
	e.SourceAPI = api
	return e
}

// ErrTranslation reports a payload that does not match the expected protocol
// shape. It is never forwarded upstream.
func ErrTranslation(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message).
		WithCode(ErrorCodeTranslationFailed)
}

// ErrUnknownModel reports a model name absent from the registry.
func ErrUnknownModel(model string) *APIError {
	return NewAPIError(ErrorTypeNotFound, fmt.Sprintf("model %q is not configured", model)).
		WithCode(ErrorCodeModelNotFound).
		WithParam("model")
}

// ErrUpstream reports a non-success backend reply. The backend status is kept
// so it can be passed through to the client.
func ErrUpstream(errType ErrorType, status int, message string) *APIError {
	return NewAPIError(errType, message).
		WithCode(ErrorCodeUpstream).
		WithStatusCode(status)
}

// ErrUpstreamTimeout reports a backend that did not answer within budget.
func ErrUpstreamTimeout(message string) *APIError {
	return NewAPIError(ErrorTypeTimeout, message).
		WithCode(ErrorCodeUpstreamTimeout)
}

// ErrStreamInterrupted reports a backend stream that ended before completion.
func ErrStreamInterrupted(message string) *APIError {
	return NewAPIError(ErrorTypeStreamInterrupted, message).
		WithCode(ErrorCodeStreamInterrupted)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message).
		WithCode(ErrorCodeRateLimitExceeded)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

// ConfigError reports a malformed routing table or a missing secret. It is
// raised only at startup and is never rendered to a client.
type ConfigError struct {
	Model  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "config"
	if e.Model != "" {
		msg += fmt.Sprintf(": model %q", e.Model)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }
