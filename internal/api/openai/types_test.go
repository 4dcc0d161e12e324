package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

func TestStopSequencesUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want StopSequences
	}{
		{in: `"END"`, want: StopSequences{"END"}},
		{in: `["a","b"]`, want: StopSequences{"a", "b"}},
		{in: `[]`, want: StopSequences{}},
	}

	for _, tt := range tests {
		var got StopSequences
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Unmarshal(%s) = %#v, want %#v", tt.in, got, tt.want)
		}
	}

	var bad StopSequences
	if err := json.Unmarshal([]byte(`42`), &bad); err == nil {
		t.Error("expected error for numeric stop")
	}
}

func TestMessageContent(t *testing.T) {
	var msg ChatCompletionMessage
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hi"}`), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Content == nil || msg.Content.Text != "hi" || msg.Content.Parts != nil {
		t.Fatalf("string content = %+v", msg.Content)
	}

	msg = ChatCompletionMessage{}
	if err := json.Unmarshal([]byte(`{"role":"user","content":[{"type":"text","text":"a"}]}`), &msg); err != nil {
		t.Fatal(err)
	}
	if len(msg.Content.Parts) != 1 || msg.Content.Parts[0].Text != "a" {
		t.Fatalf("array content = %+v", msg.Content)
	}

	msg = ChatCompletionMessage{}
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":null}`), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Content != nil {
		t.Errorf("null content = %+v, want nil", msg.Content)
	}

	if err := json.Unmarshal([]byte(`{"role":"user","content":7}`), &msg); err == nil {
		t.Error("expected error for numeric content")
	}

	out, err := json.Marshal(TextContent("x"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"x"` {
		t.Errorf("Marshal(TextContent) = %s", out)
	}
}

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantType  domain.ErrorType
		wantParam string
	}{
		{
			name:     "rate limit code",
			status:   429,
			body:     `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`,
			wantType: domain.ErrorTypeRateLimit,
		},
		{
			name:     "bad key",
			status:   401,
			body:     `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantType: domain.ErrorTypeAuthentication,
		},
		{
			name:      "invalid request with param",
			status:    400,
			body:      `{"error":{"message":"bad temp","type":"invalid_request_error","param":"temperature"}}`,
			wantType:  domain.ErrorTypeInvalidRequest,
			wantParam: "temperature",
		},
		{
			name:     "numeric code falls back to status",
			status:   503,
			body:     `{"error":{"message":"down","type":"","code":503}}`,
			wantType: domain.ErrorTypeOverloaded,
		},
		{
			name:     "plain text body",
			status:   502,
			body:     "bad gateway",
			wantType: domain.ErrorTypeServer,
		},
		{
			name:     "empty body",
			status:   504,
			wantType: domain.ErrorTypeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseErrorResponse(tt.status, []byte(tt.body))
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
			if got.HTTPStatusCode() != tt.status {
				t.Errorf("status = %d, want %d", got.HTTPStatusCode(), tt.status)
			}
			if got.Code != domain.ErrorCodeUpstream {
				t.Errorf("Code = %q, want %q", got.Code, domain.ErrorCodeUpstream)
			}
			if got.SourceAPI != domain.APITypeOpenAI {
				t.Errorf("SourceAPI = %q", got.SourceAPI)
			}
			if got.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", got.Param, tt.wantParam)
			}
		})
	}
}

func TestStopReasonMapping(t *testing.T) {
	tests := []struct {
		finish string
		want   domain.StopReason
		back   string
	}{
		{"stop", domain.StopReasonEndTurn, "stop"},
		{"length", domain.StopReasonMaxTokens, "length"},
		{"tool_calls", domain.StopReasonToolUse, "tool_calls"},
		{"function_call", domain.StopReasonToolUse, "tool_calls"},
		{"content_filter", domain.StopReasonEndTurn, "stop"},
	}
	for _, tt := range tests {
		got := StopReason(tt.finish)
		if got != tt.want {
			t.Errorf("StopReason(%q) = %q, want %q", tt.finish, got, tt.want)
		}
		if back := FinishReason(got); back != tt.back {
			t.Errorf("FinishReason(%q) = %q, want %q", got, back, tt.back)
		}
	}
	if got := FinishReason(domain.StopReasonStopSequence); got != "stop" {
		t.Errorf("FinishReason(stop_sequence) = %q, want stop", got)
	}
}

func TestToolArguments(t *testing.T) {
	got, err := ToolArguments("")
	if err != nil || string(got) != "{}" {
		t.Errorf("ToolArguments(\"\") = %s, %v", got, err)
	}
	got, err = ToolArguments(`{"city":"Paris"}`)
	if err != nil || string(got) != `{"city":"Paris"}` {
		t.Errorf("ToolArguments(valid) = %s, %v", got, err)
	}
	if _, err := ToolArguments(`{"city":`); err == nil {
		t.Error("expected error for truncated arguments")
	}
}

func TestClientStream(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"id\":\"c1\"}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(srv.Client()))
	s, err := c.StreamChatCompletion(context.Background(), Endpoint{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"}, &ChatCompletionRequest{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var frames []string
	for {
		data, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		frames = append(frames, string(data))
	}

	want := []string{`{"id":"c1"}`, "[DONE]"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("frames = %q, want %q", frames, want)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"no such model","type":"invalid_request_error","code":"model_not_found"}}`)
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(srv.Client()))
	_, err := c.CreateChatCompletion(context.Background(), Endpoint{BaseURL: srv.URL}, &ChatCompletionRequest{Model: "m"})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *domain.APIError", err)
	}
	if apiErr.Type != domain.ErrorTypeNotFound || apiErr.HTTPStatusCode() != http.StatusNotFound {
		t.Errorf("error = %+v", apiErr)
	}
}
