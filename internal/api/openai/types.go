// Package openai provides wire types and an HTTP client for OpenAI-compatible
// Chat Completions backends. The same types are used to speak the protocol to
// clients.
package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// ChatCompletionRequest represents an OpenAI chat completion request.
type ChatCompletionRequest struct {
	Model               string                  `json:"model"`
	Messages            []ChatCompletionMessage `json:"messages"`
	MaxTokens           *int                    `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                    `json:"max_completion_tokens,omitempty"`
	Temperature         *float64                `json:"temperature,omitempty"`
	TopP                *float64                `json:"top_p,omitempty"`
	Stream              bool                    `json:"stream,omitempty"`
	StreamOptions       *StreamOptions          `json:"stream_options,omitempty"`
	Stop                StopSequences           `json:"stop,omitempty"`
	Tools               []Tool                  `json:"tools,omitempty"`
	ToolChoice          json.RawMessage         `json:"tool_choice,omitempty"`
}

// StreamOptions configures streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// StopSequences accepts either a single string or an array on decode.
type StopSequences []string

func (s *StopSequences) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = StopSequences{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ChatCompletionMessage represents a message in the chat completion request/response.
type ChatCompletionMessage struct {
	Role       string          `json:"role"`
	Content    *MessageContent `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MessageContent is either a plain string or an array of content parts.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// TextContent wraps s as string content.
func TextContent(s string) *MessageContent {
	return &MessageContent{Text: s}
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &c.Text)
	case '[':
		c.Parts = []ContentPart{}
		return json.Unmarshal(data, &c.Parts)
	}
	return fmt.Errorf("content must be a string or an array of parts")
}

// ContentPart is one element of array content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data: URL.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Tool represents a tool that the model can call.
type Tool struct {
	Type     string       `json:"type"`
	Function FunctionTool `json:"function"`
}

// FunctionTool describes a function tool.
type FunctionTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall represents a tool call made by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a function call. Arguments is a JSON document
// encoded as a string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NamedToolChoice forces a specific function.
type NamedToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// ChatCompletionResponse represents an OpenAI chat completion response.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk represents a streaming chunk.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice represents a choice in a streaming chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta represents the delta content in a streaming chunk.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallChunk `json:"tool_calls,omitempty"`
}

// ToolCallChunk represents a partial tool call in streaming.
type ToolCallChunk struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function *FunctionCallChunk `json:"function,omitempty"`
}

// FunctionCallChunk represents a partial function call.
type FunctionCallChunk struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// Model represents an OpenAI model.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList represents a list of models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ErrorResponse represents an OpenAI API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError contains error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   any    `json:"param,omitempty"`
	Code    any    `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if code := e.code(); code != "" {
		return code + ": " + e.Message
	}
	return e.Message
}

// code normalizes Code, which some compatible backends send as a number.
func (e *APIError) code() string {
	switch v := e.Code.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

// ToCanonical converts the backend error to a canonical upstream error,
// keeping the backend's HTTP status.
func (e *APIError) ToCanonical(status int) *domain.APIError {
	apiErr := domain.ErrUpstream(mapErrorType(e.Type, e.code(), status), status, e.Message).
		WithSourceAPI(domain.APITypeOpenAI)
	if p, ok := e.Param.(string); ok {
		apiErr.Param = p
	}
	return apiErr
}

// mapErrorType maps OpenAI error types/codes to domain error types, falling
// back to the HTTP status.
func mapErrorType(errType, errCode string, status int) domain.ErrorType {
	switch errCode {
	case "rate_limit_exceeded":
		return domain.ErrorTypeRateLimit
	case "invalid_api_key":
		return domain.ErrorTypeAuthentication
	case "model_not_found":
		return domain.ErrorTypeNotFound
	case "context_length_exceeded":
		return domain.ErrorTypeInvalidRequest
	}

	switch errType {
	case "invalid_request_error":
		return domain.ErrorTypeInvalidRequest
	case "authentication_error":
		return domain.ErrorTypeAuthentication
	case "permission_denied", "permission_error":
		return domain.ErrorTypePermission
	case "not_found", "not_found_error":
		return domain.ErrorTypeNotFound
	case "rate_limit_error", "rate_limit_exceeded", "insufficient_quota":
		return domain.ErrorTypeRateLimit
	case "service_unavailable", "overloaded_error":
		return domain.ErrorTypeOverloaded
	}
	return StatusErrorType(status)
}

// StatusErrorType classifies an HTTP status when the body carries no usable
// error type.
func StatusErrorType(status int) domain.ErrorType {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return domain.ErrorTypeInvalidRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeAuthentication
	case http.StatusForbidden:
		return domain.ErrorTypePermission
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusTooManyRequests:
		return domain.ErrorTypeRateLimit
	case http.StatusServiceUnavailable, 529:
		return domain.ErrorTypeOverloaded
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return domain.ErrorTypeTimeout
	}
	return domain.ErrorTypeServer
}

// ParseErrorResponse converts a non-success backend body into a canonical
// error. Bodies that are not OpenAI error envelopes keep their raw text.
func ParseErrorResponse(status int, data []byte) *domain.APIError {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
		return errResp.Error.ToCanonical(status)
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return domain.ErrUpstream(StatusErrorType(status), status, fmt.Sprintf("upstream returned status %d: %s", status, msg)).
		WithSourceAPI(domain.APITypeOpenAI)
}
