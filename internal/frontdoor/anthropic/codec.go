// Package anthropic implements the Anthropic Messages ingress adapter.
package anthropic

import (
	"encoding/json"
	"fmt"

	anthropicapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// Codec converts between Messages API bodies and the canonical model.
type Codec struct{}

func NewCodec() *Codec { return &Codec{} }

func (c *Codec) APIType() domain.APIType { return domain.APITypeAnthropic }

// DecodeRequest maps a Messages request into canonical form. The system
// prompt becomes a leading system message, and tool_result blocks are lifted
// out of user turns into tool messages placed where they appeared.
func (c *Codec) DecodeRequest(body []byte) (*domain.CanonicalRequest, error) {
	return c.decode(body, true)
}

// DecodeCountTokensRequest decodes a count_tokens body, which carries the
// same fields as a Messages request minus max_tokens.
func (c *Codec) DecodeCountTokensRequest(body []byte) (*domain.CanonicalRequest, error) {
	return c.decode(body, false)
}

func (c *Codec) decode(body []byte, requireMaxTokens bool) (*domain.CanonicalRequest, error) {
	var req anthropicapi.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, domain.ErrTranslation(fmt.Sprintf("invalid request body: %v", err))
	}
	if requireMaxTokens && req.MaxTokens <= 0 {
		return nil, domain.ErrTranslation("max_tokens is required").WithParam("max_tokens")
	}

	out := &domain.CanonicalRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        req.Stream,
		StopSequences: req.StopSequences,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		out.MaxOutputTokens = &maxTokens
	}

	if sys := req.System.String(); sys != "" {
		out.Messages = append(out.Messages, domain.Message{
			Role:    domain.RoleSystem,
			Content: []domain.ContentBlock{domain.TextBlock(sys)},
		})
	}

	for i, m := range req.Messages {
		msgs, err := decodeMessage(m)
		if err != nil {
			return nil, domain.ErrTranslation(fmt.Sprintf("messages[%d]: %s", i, err.Error())).WithParam("messages")
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range req.Tools {
		if t.Name == "" {
			return nil, domain.ErrTranslation("tool name is required").WithParam("tools")
		}
		out.Tools = append(out.Tools, domain.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	if tc := req.ToolChoice; tc != nil {
		choice, err := decodeToolChoice(tc)
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

func decodeMessage(m anthropicapi.Message) ([]domain.Message, error) {
	var role domain.Role
	switch m.Role {
	case "user":
		role = domain.RoleUser
	case "assistant":
		role = domain.RoleAssistant
	default:
		return nil, fmt.Errorf("unsupported role %q", m.Role)
	}

	var (
		out     []domain.Message
		current domain.Message
	)
	flush := func() {
		if len(current.Content) > 0 {
			out = append(out, current)
		}
		current = domain.Message{}
	}
	add := func(r domain.Role, b domain.ContentBlock) {
		if current.Role != r {
			flush()
			current.Role = r
		}
		current.Content = append(current.Content, b)
	}

	for _, p := range m.Content {
		switch p.Type {
		case "text":
			add(role, domain.TextBlock(p.Text))
		case "image":
			if p.Source == nil {
				return nil, fmt.Errorf("image block without source")
			}
			add(role, domain.ImageBlock(&domain.ImageSource{
				MediaType: p.Source.MediaType,
				Data:      p.Source.Data,
				URL:       p.Source.URL,
			}))
		case "tool_use":
			if role != domain.RoleAssistant {
				return nil, fmt.Errorf("tool_use block in %s message", m.Role)
			}
			add(role, domain.ToolUseBlock(p.ID, p.Name, p.Input))
		case "tool_result":
			if role != domain.RoleUser {
				return nil, fmt.Errorf("tool_result block in %s message", m.Role)
			}
			add(domain.RoleTool, domain.ToolResultBlock(p.ToolUseID, p.Content.String(), p.IsError))
		case "thinking", "redacted_thinking":
			// Reasoning traces from earlier turns have no canonical form.
		default:
			return nil, fmt.Errorf("unsupported content block %q", p.Type)
		}
	}
	flush()

	if len(out) == 0 {
		// Keep empty turns so alternation is preserved downstream.
		out = append(out, domain.Message{Role: role, Content: []domain.ContentBlock{domain.TextBlock("")}})
	}
	return out, nil
}

func decodeToolChoice(tc *anthropicapi.ToolChoice) (*domain.ToolChoice, error) {
	switch tc.Type {
	case "auto":
		return &domain.ToolChoice{Mode: domain.ToolChoiceAuto}, nil
	case "any":
		return &domain.ToolChoice{Mode: domain.ToolChoiceAny}, nil
	case "none":
		return &domain.ToolChoice{Mode: domain.ToolChoiceNone}, nil
	case "tool":
		if tc.Name == "" {
			return nil, domain.ErrTranslation("tool_choice of type tool requires a name").WithParam("tool_choice")
		}
		return &domain.ToolChoice{Mode: domain.ToolChoiceTool, Name: tc.Name}, nil
	}
	return nil, domain.ErrTranslation(fmt.Sprintf("unsupported tool_choice type %q", tc.Type)).WithParam("tool_choice")
}

// EncodeResponse renders a buffered canonical reply as a Messages response.
func (c *Codec) EncodeResponse(resp *domain.CanonicalResponse, meta domain.StreamMetadata) ([]byte, error) {
	stop := anthropicapi.StopReasonName(resp.StopReason)
	out := anthropicapi.MessagesResponse{
		ID:         messageID(meta),
		Type:       "message",
		Role:       "assistant",
		Model:      meta.Model,
		Content:    make([]anthropicapi.ResponseContent, 0, len(resp.Content)),
		StopReason: &stop,
		Usage: anthropicapi.MessagesUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	for _, b := range resp.Content {
		switch b.Type {
		case domain.ContentTypeText:
			out.Content = append(out.Content, anthropicapi.ResponseContent{Type: "text", Text: b.Text})
		case domain.ContentTypeToolUse:
			out.Content = append(out.Content, anthropicapi.ResponseContent{Type: "tool_use", ID: b.ID, Name: b.Name, Input: b.Arguments})
		}
	}

	return json.Marshal(out)
}

// EncodeError renders err in the Messages error envelope.
func (c *Codec) EncodeError(err *domain.APIError) []byte {
	body, _ := json.Marshal(anthropicapi.ErrorResponse{
		Type: "error",
		Error: &anthropicapi.APIError{
			Type:    anthropicapi.ErrorTypeName(err.Type),
			Message: err.Message,
		},
	})
	return body
}

func (c *Codec) NewStreamEncoder(meta domain.StreamMetadata) domain.StreamEncoder {
	return newStreamEncoder(meta)
}

func messageID(meta domain.StreamMetadata) string {
	if meta.ID != "" {
		return meta.ID
	}
	return anthropicapi.NewMessageID()
}
