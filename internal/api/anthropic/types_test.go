package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

func TestMessagesRequestUnmarshal(t *testing.T) {
	body := `{
		"model": "claude-test",
		"max_tokens": 64,
		"system": [{"type":"text","text":"be brief"},{"type":"text","text":"be kind"}],
		"messages": [
			{"role":"user","content":"hi"},
			{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"lookup","input":{"q":"x"}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]}
		]
	}`

	var req MessagesRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatal(err)
	}

	if got := req.System.String(); got != "be brief\n\nbe kind" {
		t.Errorf("System = %q", got)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(req.Messages))
	}
	if c := req.Messages[0].Content; len(c) != 1 || c[0].Type != "text" || c[0].Text != "hi" {
		t.Errorf("string content = %+v", c)
	}
	if c := req.Messages[1].Content[0]; c.ID != "toolu_1" || string(c.Input) != `{"q":"x"}` {
		t.Errorf("tool_use = %+v", c)
	}
	if got := req.Messages[2].Content[0].Content.String(); got != "a\nb" {
		t.Errorf("tool_result content = %q", got)
	}
}

func TestSystemMessagesString(t *testing.T) {
	var s SystemMessages
	if err := json.Unmarshal([]byte(`"only"`), &s); err != nil {
		t.Fatal(err)
	}
	if s.String() != "only" {
		t.Errorf("String() = %q", s.String())
	}
}

func TestToolResultContentRoundTrip(t *testing.T) {
	tests := []string{`"plain"`, `[{"type":"text","text":"x"}]`}
	for _, in := range tests {
		var c ToolResultContent
		if err := json.Unmarshal([]byte(in), &c); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", in, err)
		}
		out, err := json.Marshal(c)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != in {
			t.Errorf("Marshal = %s, want %s", out, in)
		}
	}

	var nilContent *ToolResultContent
	if nilContent.String() != "" {
		t.Error("nil content should flatten to empty")
	}
}

func TestErrorTypeNames(t *testing.T) {
	names := []string{
		"invalid_request_error",
		"authentication_error",
		"permission_error",
		"not_found_error",
		"rate_limit_error",
		"overloaded_error",
		"timeout_error",
		"api_error",
	}
	for _, name := range names {
		if got := ErrorTypeName(mapErrorType(name)); got != name {
			t.Errorf("ErrorTypeName(mapErrorType(%q)) = %q", name, got)
		}
	}
	if got := ErrorTypeName(domain.ErrorTypeStreamInterrupted); got != "api_error" {
		t.Errorf("stream_interrupted renders as %q, want api_error", got)
	}
}

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType domain.ErrorType
		wantMsg  string
	}{
		{
			name:     "anthropic envelope",
			status:   529,
			body:     `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			wantType: domain.ErrorTypeOverloaded,
			wantMsg:  "Overloaded",
		},
		{
			name:     "auth",
			status:   401,
			body:     `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			wantType: domain.ErrorTypeAuthentication,
			wantMsg:  "invalid x-api-key",
		},
		{
			name:     "non json body uses status",
			status:   429,
			body:     "too many",
			wantType: domain.ErrorTypeRateLimit,
			wantMsg:  "upstream returned status 429: too many",
		},
		{
			name:     "unknown status",
			status:   500,
			wantType: domain.ErrorTypeServer,
			wantMsg:  "upstream returned status 500: Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseErrorResponse(tt.status, []byte(tt.body))
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMsg)
			}
			if got.HTTPStatusCode() != tt.status {
				t.Errorf("status = %d, want %d", got.HTTPStatusCode(), tt.status)
			}
			if got.SourceAPI != domain.APITypeAnthropic {
				t.Errorf("SourceAPI = %q", got.SourceAPI)
			}
		})
	}
}

func TestInStreamErrorHasNoStatus(t *testing.T) {
	apiErr := (&APIError{Type: "overloaded_error", Message: "busy"}).ToCanonical(0)
	if apiErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", apiErr.StatusCode)
	}
	if apiErr.HTTPStatusCode() != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatusCode() = %d", apiErr.HTTPStatusCode())
	}
}

func TestStopReasonMapping(t *testing.T) {
	for _, s := range []string{"end_turn", "max_tokens", "tool_use", "stop_sequence"} {
		if got := StopReasonName(StopReason(s)); got != s {
			t.Errorf("round trip of %q = %q", s, got)
		}
	}
	if got := StopReasonName(domain.StopReasonError); got != "end_turn" {
		t.Errorf("StopReasonName(error) = %q, want end_turn", got)
	}
}

func TestGeneratedIDs(t *testing.T) {
	if id := NewMessageID(); !strings.HasPrefix(id, "msg_") || strings.Contains(id, "-") {
		t.Errorf("NewMessageID() = %q", id)
	}
	if id := NewToolUseID(); !strings.HasPrefix(id, "toolu_") || strings.Contains(id, "-") {
		t.Errorf("NewToolUseID() = %q", id)
	}
}

func TestClientHeadersAndURL(t *testing.T) {
	tests := []struct {
		name string
		base string
	}{
		{"bare host", ""},
		{"with v1", "/v1"},
		{"trailing slash", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/messages" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if got := r.Header.Get("x-api-key"); got != "sk-ant" {
					t.Errorf("x-api-key = %q", got)
				}
				if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
					t.Errorf("anthropic-version = %q", got)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"ok"}],"model":"claude-test","stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":1}}`)
			}))
			defer srv.Close()

			c := NewClient(WithHTTPClient(srv.Client()))
			resp, err := c.CreateMessage(context.Background(), Endpoint{BaseURL: srv.URL + tt.base, APIKey: "sk-ant"}, &MessagesRequest{Model: "claude-test", MaxTokens: 8})
			if err != nil {
				t.Fatal(err)
			}
			if len(resp.Content) != 1 || resp.Content[0].Text != "ok" {
				t.Errorf("content = %+v", resp.Content)
			}
		})
	}
}

func TestClientStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens required"}}`)
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(srv.Client()))
	_, err := c.StreamMessage(context.Background(), Endpoint{BaseURL: srv.URL}, &MessagesRequest{Model: "claude-test"})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *domain.APIError", err)
	}
	if apiErr.Type != domain.ErrorTypeInvalidRequest || apiErr.Message != "max_tokens required" {
		t.Errorf("error = %+v", apiErr)
	}
}
