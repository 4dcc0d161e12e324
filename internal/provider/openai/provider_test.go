package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/testutil"
)

func testRoute() *domain.RouteEntry {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = "test-key"
	}
	return &domain.RouteEntry{
		Model:   "gpt-4o",
		Kind:    domain.EgressOpenAICompatible,
		BaseURL: "https://llm.example.test/v1",
		APIKey:  apiKey,
	}
}

func TestProvider_Kind(t *testing.T) {
	if got := New().Kind(); got != domain.EgressOpenAICompatible {
		t.Errorf("Kind() = %q", got)
	}
}

func TestProvider_BuildRequest(t *testing.T) {
	maxTokens := 256
	req := &domain.CanonicalRequest{
		Model:           "gpt-4o",
		MaxOutputTokens: &maxTokens,
		Stream:          true,
		StopSequences:   []string{"END"},
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: []domain.ContentBlock{domain.TextBlock("be brief")}},
			{Role: domain.RoleUser, Content: []domain.ContentBlock{domain.TextBlock("weather?")}},
			{Role: domain.RoleAssistant, Content: []domain.ContentBlock{
				domain.ToolUseBlock("t1", "lookup", json.RawMessage(`{"q":"x"}`)),
			}},
			{Role: domain.RoleTool, Content: []domain.ContentBlock{domain.ToolResultBlock("t1", "sunny", false)}},
		},
		Tools: []domain.ToolDefinition{{
			Name:       "lookup",
			Parameters: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`),
		}},
		ToolChoice: &domain.ToolChoice{Mode: domain.ToolChoiceTool, Name: "lookup"},
	}

	httpReq, err := New().BuildRequest(context.Background(), req, testRoute())
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	if httpReq.URL.String() != "https://llm.example.test/v1/chat/completions" {
		t.Errorf("URL = %s", httpReq.URL)
	}
	if got := httpReq.Header.Get("Authorization"); got != "Bearer "+testRoute().APIKey {
		t.Errorf("Authorization = %q", got)
	}

	body, _ := io.ReadAll(httpReq.Body)
	var sent struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Stop     []string
		Max      int `json:"max_tokens"`
		Messages []struct {
			Role       string          `json:"role"`
			Content    json.RawMessage `json:"content"`
			ToolCallID string          `json:"tool_call_id"`
			ToolCalls  []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"messages"`
		StreamOptions *struct {
			IncludeUsage bool `json:"include_usage"`
		} `json:"stream_options"`
		Tools []struct {
			Function struct {
				Parameters json.RawMessage `json:"parameters"`
			} `json:"function"`
		} `json:"tools"`
		ToolChoice json.RawMessage `json:"tool_choice"`
	}
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}

	if !sent.Stream || sent.StreamOptions == nil || !sent.StreamOptions.IncludeUsage {
		t.Error("expected streaming request with include_usage")
	}
	if sent.Max != 256 {
		t.Errorf("max_tokens = %d", sent.Max)
	}
	if len(sent.Stop) != 1 || sent.Stop[0] != "END" {
		t.Errorf("stop = %v", sent.Stop)
	}

	wantRoles := []string{"system", "user", "assistant", "tool"}
	if len(sent.Messages) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(sent.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if sent.Messages[i].Role != role {
			t.Errorf("messages[%d].role = %q, want %q", i, sent.Messages[i].Role, role)
		}
	}
	if string(sent.Messages[2].Content) != "null" {
		t.Errorf("assistant content = %s, want null", sent.Messages[2].Content)
	}
	call := sent.Messages[2].ToolCalls[0]
	if call.ID != "t1" || call.Function.Name != "lookup" || call.Function.Arguments != `{"q":"x"}` {
		t.Errorf("tool call = %+v", call)
	}
	if sent.Messages[3].ToolCallID != "t1" || string(sent.Messages[3].Content) != `"sunny"` {
		t.Errorf("tool message = %+v", sent.Messages[3])
	}
	if string(sent.Tools[0].Function.Parameters) != `{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}` {
		t.Errorf("parameters not copied verbatim: %s", sent.Tools[0].Function.Parameters)
	}
	if string(sent.ToolChoice) != `{"type":"function","function":{"name":"lookup"}}` {
		t.Errorf("tool_choice = %s", sent.ToolChoice)
	}
}

func TestProvider_Complete(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("VCR_MODE") == "record" {
		t.Skip("Skipping test: OPENAI_API_KEY not set")
	}

	p := New(WithHTTPClient(testutil.ReplayClient(t, "openai_complete")))

	req := &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: []domain.ContentBlock{domain.TextBlock("hi")}}},
	}

	resp, err := p.Complete(context.Background(), req, testRoute())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if len(resp.Content) != 1 || resp.Content[0].Type != domain.ContentTypeText || resp.Content[0].Text != "hello" {
		t.Errorf("Content = %+v, want single Text(hello)", resp.Content)
	}
	if resp.StopReason != domain.StopReasonEndTurn {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Usage.InputTokens != 8 || resp.Usage.OutputTokens != 1 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestProvider_Stream(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("VCR_MODE") == "record" {
		t.Skip("Skipping test: OPENAI_API_KEY not set")
	}

	p := New(WithHTTPClient(testutil.ReplayClient(t, "openai_stream")))

	req := &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Stream:   true,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: []domain.ContentBlock{domain.TextBlock("weather?")}}},
	}

	src, dec, err := p.Stream(context.Background(), req, testRoute())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer src.Close()

	var events []domain.StreamEvent
	for {
		chunk, err := src.Next()
		if errors.Is(err, io.EOF) {
			rest, ferr := dec.Finish()
			if ferr != nil {
				t.Fatalf("Finish() error = %v", ferr)
			}
			events = append(events, rest...)
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		evs, err := dec.Decode(chunk)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		events = append(events, evs...)
	}

	last := events[len(events)-1]
	if last.Type != domain.EventMessageStop {
		t.Fatalf("last event = %s, want message_stop", last.Type)
	}
	delta := events[len(events)-2]
	if delta.StopReason != domain.StopReasonToolUse || delta.Usage == nil || delta.Usage.OutputTokens != 9 {
		t.Errorf("message delta = %+v", delta)
	}

	partials := collectPartials(events)
	if partials[0] != "Let me check." {
		t.Errorf("text = %q", partials[0])
	}
	if partials[1] != `{"q":"x"}` {
		t.Errorf("arguments = %q", partials[1])
	}
}

func TestProvider_UpstreamError(t *testing.T) {
	srv := newStubBackend(t, http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)

	route := &domain.RouteEntry{Model: "m", BaseURL: srv.URL, APIKey: "k"}
	req := &domain.CanonicalRequest{
		Model:    "m",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: []domain.ContentBlock{domain.TextBlock("hi")}}},
	}

	_, err := New().Complete(context.Background(), req, route)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *domain.APIError, got %T %v", err, err)
	}
	if apiErr.Type != domain.ErrorTypeRateLimit || apiErr.HTTPStatusCode() != http.StatusTooManyRequests {
		t.Errorf("error = %+v", apiErr)
	}
	if apiErr.Message != "slow down" {
		t.Errorf("message = %q", apiErr.Message)
	}
}
