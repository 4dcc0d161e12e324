// Package codec maps failures raised anywhere on the request path onto
// canonical errors and renders them through the client's ingress adapter.
package codec

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// StatusClientClosedRequest is logged when the client goes away before a
// reply is ready. Nothing is written to the connection in that case.
const StatusClientClosedRequest = 499

// ToCanonicalError converts any error to a domain.APIError. Canonical errors
// pass through unchanged; deadlines and network timeouts become upstream
// timeouts; cancellation is reported with status 499; everything else is an
// upstream failure.
func ToCanonicalError(err error) *domain.APIError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrUpstreamTimeout("backend did not respond in time")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrUpstreamTimeout("backend did not respond in time")
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrServer("client closed request").WithStatusCode(StatusClientClosedRequest)
	}
	return domain.ErrUpstream(domain.ErrorTypeServer, http.StatusBadGateway, err.Error())
}

// IsClientGone reports whether err means the client disconnected.
func IsClientGone(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *domain.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == StatusClientClosedRequest
}

// WriteError renders err in the client's protocol with its HTTP status.
func WriteError(w http.ResponseWriter, ingress domain.Ingress, err error) *domain.APIError {
	apiErr := ToCanonicalError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatusCode())
	_, _ = w.Write(ingress.EncodeError(apiErr))
	return apiErr
}
