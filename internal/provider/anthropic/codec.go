package anthropic

import (
	"encoding/json"
	"fmt"

	anthropicapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// defaultMaxTokens is sent when the client did not set a limit, since the
// Messages API requires one.
const defaultMaxTokens = 4096

// toAPIRequest reshapes a canonical request into Messages form. System
// messages merge into the dedicated system field and tool results travel as
// tool_result blocks inside user turns.
func toAPIRequest(req *domain.CanonicalRequest) (*anthropicapi.MessagesRequest, error) {
	out := &anthropicapi.MessagesRequest{
		Model:         req.Model,
		MaxTokens:     defaultMaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        req.Stream,
		StopSequences: req.StopSequences,
	}
	if req.MaxOutputTokens != nil {
		out.MaxTokens = *req.MaxOutputTokens
	}
	if sys := req.SystemText(); sys != "" {
		out.System = anthropicapi.SystemMessages{{Type: "text", Text: sys}}
	}

	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "assistant"
		}

		parts, err := toAPIParts(m.Content)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			continue
		}

		// Consecutive turns from the same side are merged; a tool turn
		// followed by user text becomes one user message.
		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == role {
			out.Messages[n-1].Content = append(out.Messages[n-1].Content, parts...)
			continue
		}
		out.Messages = append(out.Messages, anthropicapi.Message{Role: role, Content: parts})
	}

	for _, t := range req.Tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out.Tools = append(out.Tools, anthropicapi.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	if tc := req.ToolChoice; tc != nil {
		out.ToolChoice = &anthropicapi.ToolChoice{Type: string(tc.Mode), Name: tc.Name}
	}

	return out, nil
}

func toAPIParts(blocks []domain.ContentBlock) ([]anthropicapi.ContentPart, error) {
	parts := make([]anthropicapi.ContentPart, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case domain.ContentTypeText:
			if b.Text == "" {
				continue
			}
			parts = append(parts, anthropicapi.ContentPart{Type: "text", Text: b.Text})
		case domain.ContentTypeImage:
			if b.Image == nil {
				return nil, domain.ErrTranslation("image block without source")
			}
			src := &anthropicapi.ImageSource{Type: "base64", MediaType: b.Image.MediaType, Data: b.Image.Data}
			if b.Image.URL != "" {
				src = &anthropicapi.ImageSource{Type: "url", URL: b.Image.URL}
			}
			parts = append(parts, anthropicapi.ContentPart{Type: "image", Source: src})
		case domain.ContentTypeToolUse:
			input := b.Arguments
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			parts = append(parts, anthropicapi.ContentPart{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
		case domain.ContentTypeToolResult:
			parts = append(parts, anthropicapi.ContentPart{
				Type:      "tool_result",
				ToolUseID: b.ToolUseID,
				Content:   &anthropicapi.ToolResultContent{Text: b.Content},
				IsError:   b.IsError,
			})
		default:
			return nil, domain.ErrTranslation(fmt.Sprintf("unsupported content block %q", b.Type))
		}
	}
	return parts, nil
}

// toCanonicalResponse keeps text and tool_use blocks. Thinking blocks have no
// canonical form and are dropped.
func toCanonicalResponse(resp *anthropicapi.MessagesResponse) (*domain.CanonicalResponse, error) {
	if resp.Type != "" && resp.Type != "message" {
		return nil, domain.ErrTranslation(fmt.Sprintf("unexpected backend reply type %q", resp.Type))
	}

	out := &domain.CanonicalResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: domain.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		StopReason: domain.StopReasonEndTurn,
	}
	if resp.StopReason != nil {
		out.StopReason = anthropicapi.StopReason(*resp.StopReason)
	}

	for _, c := range resp.Content {
		switch c.Type {
		case "text":
			out.Content = append(out.Content, domain.TextBlock(c.Text))
		case "tool_use":
			out.Content = append(out.Content, domain.ToolUseBlock(c.ID, c.Name, c.Input))
		}
	}
	return out, nil
}
