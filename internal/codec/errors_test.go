package codec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/frontdoor/anthropic"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/frontdoor/openai"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestToCanonicalError(t *testing.T) {
	translation := domain.ErrTranslation("bad")

	tests := []struct {
		name       string
		err        error
		wantType   domain.ErrorType
		wantStatus int
	}{
		{"canonical passes through", fmt.Errorf("wrapped: %w", translation), domain.ErrorTypeInvalidRequest, http.StatusBadRequest},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), domain.ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"net timeout", timeoutErr{}, domain.ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"canceled", context.Canceled, domain.ErrorTypeServer, StatusClientClosedRequest},
		{"other", errors.New("connection refused"), domain.ErrorTypeServer, http.StatusBadGateway},
		{"upstream status kept", domain.ErrUpstream(domain.ErrorTypeRateLimit, 429, "slow down"), domain.ErrorTypeRateLimit, 429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCanonicalError(tt.err)
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
			if got.HTTPStatusCode() != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.HTTPStatusCode(), tt.wantStatus)
			}
		})
	}

	if ToCanonicalError(translation) != translation {
		t.Error("canonical error was copied")
	}
}

func TestIsClientGone(t *testing.T) {
	if !IsClientGone(fmt.Errorf("read: %w", context.Canceled)) {
		t.Error("canceled context not detected")
	}
	if !IsClientGone(ToCanonicalError(context.Canceled)) {
		t.Error("canonical 499 not detected")
	}
	if IsClientGone(errors.New("boom")) {
		t.Error("plain error reported as client gone")
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		ingress domain.Ingress
		want    string
	}{
		{"anthropic", anthropic.NewCodec(), `{"type":"error","error":{"type":"not_found_error","message":"model \"x\" is not configured"}}`},
		{"openai", openai.NewCodec(), `{"error":{"message":"model \"x\" is not configured","type":"invalid_request_error","param":"model","code":"model_not_found"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.ingress, domain.ErrUnknownModel("x"))
			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d", rec.Code)
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
			}
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("body = %s, want %s", got, tt.want)
			}
		})
	}
}
