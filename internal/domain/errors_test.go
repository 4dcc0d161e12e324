package domain

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestAPIErrorHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want int
	}{
		{"translation", ErrTranslation("bad"), http.StatusBadRequest},
		{"unknown model", ErrUnknownModel("m"), http.StatusNotFound},
		{"authentication", NewAPIError(ErrorTypeAuthentication, "no"), http.StatusUnauthorized},
		{"permission", NewAPIError(ErrorTypePermission, "no"), http.StatusForbidden},
		{"rate limit", ErrRateLimit("slow down"), http.StatusTooManyRequests},
		{"overloaded", NewAPIError(ErrorTypeOverloaded, "busy"), http.StatusServiceUnavailable},
		{"timeout", ErrUpstreamTimeout("late"), http.StatusGatewayTimeout},
		{"stream interrupted", ErrStreamInterrupted("cut"), http.StatusBadGateway},
		{"server", ErrServer("boom"), http.StatusInternalServerError},
		{"upstream keeps backend status", ErrUpstream(ErrorTypeRateLimit, 429, "quota"), http.StatusTooManyRequests},
		{"explicit status wins", ErrTranslation("big").WithStatusCode(413), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := ErrUnknownModel("gpt-x")
	if got, want := err.Error(), `not_found (model_not_found): model "gpt-x" is not configured`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if err.Param != "model" {
		t.Errorf("Param = %q, want model", err.Param)
	}

	plain := NewAPIError(ErrorTypeServer, "boom")
	if got := plain.Error(); got != "server: boom" {
		t.Errorf("Error() = %q, want %q", got, "server: boom")
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Model: "gpt-4o", Reason: "missing credential", Err: io.ErrUnexpectedEOF}
	msg := err.Error()
	for _, want := range []string{`model "gpt-4o"`, "missing credential", io.ErrUnexpectedEOF.Error()} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ConfigError should unwrap to its cause")
	}

	bare := &ConfigError{Reason: "no models"}
	if got := bare.Error(); got != "config: no models" {
		t.Errorf("Error() = %q, want %q", got, "config: no models")
	}
}
