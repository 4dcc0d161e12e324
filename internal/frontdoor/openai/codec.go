// Package openai implements the Chat Completions ingress adapter.
package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	openaiapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/openai"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// Codec converts between Chat Completions bodies and the canonical model.
type Codec struct{}

func NewCodec() *Codec { return &Codec{} }

func (c *Codec) APIType() domain.APIType { return domain.APITypeOpenAI }

// DecodeRequest maps a Chat Completions request into canonical form.
func (c *Codec) DecodeRequest(body []byte) (*domain.CanonicalRequest, error) {
	var req openaiapi.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, domain.ErrTranslation(fmt.Sprintf("invalid request body: %v", err))
	}

	out := &domain.CanonicalRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        req.Stream,
		StopSequences: req.Stop,
	}
	if req.Stream && req.StreamOptions != nil {
		out.StreamUsage = req.StreamOptions.IncludeUsage
	}
	switch {
	case req.MaxCompletionTokens != nil:
		out.MaxOutputTokens = req.MaxCompletionTokens
	case req.MaxTokens != nil:
		out.MaxOutputTokens = req.MaxTokens
	}

	for i, m := range req.Messages {
		msg, err := decodeMessage(m)
		if err != nil {
			return nil, domain.ErrTranslation(fmt.Sprintf("messages[%d]: %s", i, err.Error())).WithParam("messages")
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		if t.Type != "" && t.Type != "function" {
			return nil, domain.ErrTranslation(fmt.Sprintf("unsupported tool type %q", t.Type)).WithParam("tools")
		}
		if t.Function.Name == "" {
			return nil, domain.ErrTranslation("tool function name is required").WithParam("tools")
		}
		out.Tools = append(out.Tools, domain.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	if len(req.ToolChoice) > 0 && !bytes.Equal(req.ToolChoice, []byte("null")) {
		choice, err := decodeToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = choice
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeMessage(m openaiapi.ChatCompletionMessage) (domain.Message, error) {
	switch m.Role {
	case "system", "developer":
		text, err := textOnly(m.Content)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Role: domain.RoleSystem, Content: []domain.ContentBlock{domain.TextBlock(text)}}, nil

	case "user":
		blocks, err := decodeContent(m.Content)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Role: domain.RoleUser, Content: blocks}, nil

	case "assistant":
		var blocks []domain.ContentBlock
		if m.Content != nil {
			text, err := textOnly(m.Content)
			if err != nil {
				return domain.Message{}, err
			}
			if text != "" {
				blocks = append(blocks, domain.TextBlock(text))
			}
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == "" {
				return domain.Message{}, fmt.Errorf("tool call without id")
			}
			args, err := openaiapi.ToolArguments(tc.Function.Arguments)
			if err != nil {
				return domain.Message{}, fmt.Errorf("tool call %q: %w", tc.ID, err)
			}
			blocks = append(blocks, domain.ToolUseBlock(tc.ID, tc.Function.Name, args))
		}
		if len(blocks) == 0 {
			blocks = append(blocks, domain.TextBlock(""))
		}
		return domain.Message{Role: domain.RoleAssistant, Content: blocks}, nil

	case "tool":
		if m.ToolCallID == "" {
			return domain.Message{}, fmt.Errorf("tool message without tool_call_id")
		}
		text, err := textOnly(m.Content)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{
			Role:    domain.RoleTool,
			Content: []domain.ContentBlock{domain.ToolResultBlock(m.ToolCallID, text, false)},
		}, nil
	}
	return domain.Message{}, fmt.Errorf("unsupported role %q", m.Role)
}

func decodeContent(c *openaiapi.MessageContent) ([]domain.ContentBlock, error) {
	if c == nil {
		return []domain.ContentBlock{domain.TextBlock("")}, nil
	}
	if c.Parts == nil {
		return []domain.ContentBlock{domain.TextBlock(c.Text)}, nil
	}
	blocks := make([]domain.ContentBlock, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch p.Type {
		case "text":
			blocks = append(blocks, domain.TextBlock(p.Text))
		case "image_url":
			if p.ImageURL == nil || p.ImageURL.URL == "" {
				return nil, fmt.Errorf("image_url part without url")
			}
			blocks = append(blocks, domain.ImageBlock(domain.ParseDataURL(p.ImageURL.URL)))
		default:
			return nil, fmt.Errorf("unsupported content part %q", p.Type)
		}
	}
	return blocks, nil
}

// textOnly flattens content for roles that cannot carry images.
func textOnly(c *openaiapi.MessageContent) (string, error) {
	if c == nil {
		return "", nil
	}
	if c.Parts == nil {
		return c.Text, nil
	}
	parts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p.Type != "text" {
			return "", fmt.Errorf("unsupported content part %q", p.Type)
		}
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n"), nil
}

func decodeToolChoice(raw json.RawMessage) (*domain.ToolChoice, error) {
	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "auto":
			return &domain.ToolChoice{Mode: domain.ToolChoiceAuto}, nil
		case "required":
			return &domain.ToolChoice{Mode: domain.ToolChoiceAny}, nil
		case "none":
			return &domain.ToolChoice{Mode: domain.ToolChoiceNone}, nil
		}
		return nil, domain.ErrTranslation(fmt.Sprintf("unsupported tool_choice %q", mode)).WithParam("tool_choice")
	}

	var named openaiapi.NamedToolChoice
	if err := json.Unmarshal(raw, &named); err != nil || named.Function.Name == "" {
		return nil, domain.ErrTranslation("tool_choice must be a string or name a function").WithParam("tool_choice")
	}
	return &domain.ToolChoice{Mode: domain.ToolChoiceTool, Name: named.Function.Name}, nil
}

// EncodeResponse renders a buffered canonical reply as a chat completion.
func (c *Codec) EncodeResponse(resp *domain.CanonicalResponse, meta domain.StreamMetadata) ([]byte, error) {
	meta = withDefaults(meta)

	msg := openaiapi.ChatCompletionMessage{Role: "assistant"}
	if text := domain.JoinText(resp.Content); text != "" || len(domain.ToolUses(resp.Content)) == 0 {
		msg.Content = openaiapi.TextContent(text)
	}
	for _, b := range domain.ToolUses(resp.Content) {
		args := b.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		msg.ToolCalls = append(msg.ToolCalls, openaiapi.ToolCall{
			ID:       b.ID,
			Type:     "function",
			Function: openaiapi.FunctionCall{Name: b.Name, Arguments: string(args)},
		})
	}

	out := openaiapi.ChatCompletionResponse{
		ID:      meta.ID,
		Object:  "chat.completion",
		Created: meta.Created,
		Model:   meta.Model,
		Choices: []openaiapi.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: openaiapi.FinishReason(resp.StopReason),
		}},
		Usage: &openaiapi.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	return json.Marshal(out)
}

// EncodeError renders err in the Chat Completions error envelope.
func (c *Codec) EncodeError(err *domain.APIError) []byte {
	e := &openaiapi.APIError{
		Message: err.Message,
		Type:    errorTypeName(err.Type),
	}
	if err.Code != "" {
		e.Code = string(err.Code)
	}
	if err.Param != "" {
		e.Param = err.Param
	}
	body, _ := json.Marshal(openaiapi.ErrorResponse{Error: e})
	return body
}

func (c *Codec) NewStreamEncoder(meta domain.StreamMetadata) domain.StreamEncoder {
	return newStreamEncoder(withDefaults(meta))
}

func errorTypeName(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypeInvalidRequest, domain.ErrorTypeNotFound:
		return "invalid_request_error"
	case domain.ErrorTypeAuthentication:
		return "authentication_error"
	case domain.ErrorTypePermission:
		return "permission_error"
	case domain.ErrorTypeRateLimit:
		return "rate_limit_error"
	case domain.ErrorTypeOverloaded:
		return "service_unavailable"
	case domain.ErrorTypeTimeout:
		return "timeout_error"
	}
	return "server_error"
}

func withDefaults(meta domain.StreamMetadata) domain.StreamMetadata {
	if meta.ID == "" {
		meta.ID = "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if meta.Created == 0 {
		meta.Created = time.Now().Unix()
	}
	return meta
}
