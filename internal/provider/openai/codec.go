package openai

import (
	"encoding/json"
	"fmt"

	openaiapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/openai"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// toAPIRequest reshapes a canonical request into Chat Completions form.
// System messages stay as leading system messages and tool results become
// separate tool-role messages keyed by tool_call_id.
func toAPIRequest(req *domain.CanonicalRequest) (*openaiapi.ChatCompletionRequest, error) {
	out := &openaiapi.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Stop:        req.StopSequences,
	}

	for _, m := range req.Messages {
		msgs, err := toAPIMessages(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openaiapi.Tool{
			Type: "function",
			Function: openaiapi.FunctionTool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	if req.ToolChoice != nil {
		choice, err := toAPIToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = choice
	}

	return out, nil
}

func toAPIMessages(m domain.Message) ([]openaiapi.ChatCompletionMessage, error) {
	var (
		out      []openaiapi.ChatCompletionMessage
		parts    []openaiapi.ContentPart
		hasImage bool
		calls    []openaiapi.ToolCall
	)

	for _, b := range m.Content {
		switch b.Type {
		case domain.ContentTypeText:
			parts = append(parts, openaiapi.ContentPart{Type: "text", Text: b.Text})
		case domain.ContentTypeImage:
			if b.Image == nil {
				return nil, domain.ErrTranslation("image block without source")
			}
			hasImage = true
			parts = append(parts, openaiapi.ContentPart{Type: "image_url", ImageURL: &openaiapi.ImageURL{URL: b.Image.DataURL()}})
		case domain.ContentTypeToolUse:
			args := string(b.Arguments)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, openaiapi.ToolCall{
				ID:       b.ID,
				Type:     "function",
				Function: openaiapi.FunctionCall{Name: b.Name, Arguments: args},
			})
		case domain.ContentTypeToolResult:
			out = append(out, openaiapi.ChatCompletionMessage{
				Role:       "tool",
				ToolCallID: b.ToolUseID,
				Content:    openaiapi.TextContent(b.Content),
			})
		default:
			return nil, domain.ErrTranslation(fmt.Sprintf("unsupported content block %q", b.Type))
		}
	}

	if len(parts) == 0 && len(calls) == 0 {
		return out, nil
	}

	msg := openaiapi.ChatCompletionMessage{Role: string(m.Role), ToolCalls: calls}
	if msg.Role == string(domain.RoleTool) {
		// Text in a tool turn has no tool_call_id to hang off.
		msg.Role = string(domain.RoleUser)
	}
	switch {
	case hasImage:
		msg.Content = &openaiapi.MessageContent{Parts: parts}
	case len(parts) > 0:
		msg.Content = openaiapi.TextContent(domain.JoinText(m.Content))
	}
	return append(out, msg), nil
}

func toAPIToolChoice(tc *domain.ToolChoice) (json.RawMessage, error) {
	switch tc.Mode {
	case domain.ToolChoiceAuto:
		return json.RawMessage(`"auto"`), nil
	case domain.ToolChoiceAny:
		return json.RawMessage(`"required"`), nil
	case domain.ToolChoiceNone:
		return json.RawMessage(`"none"`), nil
	case domain.ToolChoiceTool:
		var named openaiapi.NamedToolChoice
		named.Type = "function"
		named.Function.Name = tc.Name
		return json.Marshal(named)
	}
	return nil, domain.ErrTranslation(fmt.Sprintf("unsupported tool_choice %q", tc.Mode))
}

// toCanonicalResponse normalizes the side-channel tool_calls field into
// inline tool_use blocks following any text.
func toCanonicalResponse(resp *openaiapi.ChatCompletionResponse) (*domain.CanonicalResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, domain.ErrTranslation("backend reply has no choices")
	}
	choice := resp.Choices[0]

	out := &domain.CanonicalResponse{
		ID:         resp.ID,
		Model:      resp.Model,
		StopReason: openaiapi.StopReason(choice.FinishReason),
	}

	if c := choice.Message.Content; c != nil {
		text := c.Text
		if c.Parts != nil {
			text = ""
			for _, p := range c.Parts {
				if p.Type == "text" {
					text += p.Text
				}
			}
		}
		if text != "" {
			out.Content = append(out.Content, domain.TextBlock(text))
		}
	}

	for _, call := range choice.Message.ToolCalls {
		args, err := openaiapi.ToolArguments(call.Function.Arguments)
		if err != nil {
			return nil, domain.ErrTranslation(fmt.Sprintf("tool call %q: %v", call.Function.Name, err))
		}
		id := call.ID
		if id == "" {
			id = openaiapi.NewToolCallID()
		}
		out.Content = append(out.Content, domain.ToolUseBlock(id, call.Function.Name, args))
	}

	if len(choice.Message.ToolCalls) > 0 && out.StopReason == domain.StopReasonEndTurn {
		// Some compatible backends report "stop" alongside tool calls.
		out.StopReason = domain.StopReasonToolUse
	}

	if resp.Usage != nil {
		out.Usage = domain.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}
