package tokens

import (
	"encoding/json"
	"testing"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

func TestCounter_CountText(t *testing.T) {
	c := NewCounter()

	tests := []struct {
		name  string
		model string
		text  string
		want  int
	}{
		{"empty", "gpt-4o", "", 0},
		{"hello world o200k", "gpt-4o", "hello world", 2},
		{"hello world cl100k", "gpt-4", "hello world", 2},
		{"unknown model uses o200k", "llama-3.1-8b", "hello world", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.CountText(tt.model, tt.text); got != tt.want {
				t.Errorf("CountText(%q, %q) = %d, want %d", tt.model, tt.text, got, tt.want)
			}
		})
	}
}

func TestCounter_CountRequest(t *testing.T) {
	c := NewCounter()
	base := &domain.CanonicalRequest{
		Model: "gpt-4o",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: []domain.ContentBlock{domain.TextBlock("hello world")}},
		},
	}

	got := c.CountRequest(base)
	want := tokensPerMessage + tokensPerRole + 2 + assistantPriming
	if got != want {
		t.Errorf("CountRequest() = %d, want %d", got, want)
	}

	withTools := *base
	withTools.Tools = []domain.ToolDefinition{{Name: "lookup", Description: "find things", Parameters: json.RawMessage(`{"type":"object"}`)}}
	withTools.Messages = append(withTools.Messages,
		domain.Message{Role: domain.RoleAssistant, Content: []domain.ContentBlock{domain.ToolUseBlock("t1", "lookup", json.RawMessage(`{"q":"x"}`))}},
		domain.Message{Role: domain.RoleTool, Content: []domain.ContentBlock{domain.ToolResultBlock("t1", "found", false)}},
	)
	if more := c.CountRequest(&withTools); more <= got+tokensPerTool+tokensPerCall+tokensPerResult {
		t.Errorf("CountRequest(with tools) = %d, want more than %d", more, got+tokensPerTool+tokensPerCall+tokensPerResult)
	}
}

func TestCounter_Fallback(t *testing.T) {
	c := NewCounter()
	if got := c.estimate("abcdefgh"); got != 2 {
		t.Errorf("estimate = %d, want 2", got)
	}
	if got := c.estimate("a"); got != 1 {
		t.Errorf("estimate(short) = %d, want 1", got)
	}
}

func TestModelToEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  tokenizer.Encoding
	}{
		{"gpt-4o-mini", tokenizer.O200kBase},
		{"GPT-4.1", tokenizer.O200kBase},
		{"gpt-4-turbo", tokenizer.Cl100kBase},
		{"gpt-3.5-turbo", tokenizer.Cl100kBase},
		{"text-davinci-003", tokenizer.P50kBase},
		{"claude-3.5-sonnet", tokenizer.O200kBase},
	}
	for _, tt := range tests {
		if got := modelToEncoding(tt.model); got != tt.want {
			t.Errorf("modelToEncoding(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
