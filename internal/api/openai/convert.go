package openai

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// ToolArguments validates an arguments string and returns it as raw JSON.
// An empty string means no arguments.
func ToolArguments(s string) (json.RawMessage, error) {
	if s == "" {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	return json.RawMessage(s), nil
}

// NewToolCallID mints an id for backends that omit one.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// StopReason maps a finish_reason to the canonical stop reason.
func StopReason(finish string) domain.StopReason {
	switch finish {
	case "length":
		return domain.StopReasonMaxTokens
	case "tool_calls", "function_call":
		return domain.StopReasonToolUse
	default:
		return domain.StopReasonEndTurn
	}
}

// FinishReason maps a canonical stop reason to finish_reason.
func FinishReason(reason domain.StopReason) string {
	switch reason {
	case domain.StopReasonMaxTokens:
		return "length"
	case domain.StopReasonToolUse:
		return "tool_calls"
	default:
		return "stop"
	}
}
