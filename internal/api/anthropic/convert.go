package anthropic

import (
	"strings"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// StopReason maps an Anthropic stop_reason to the canonical value.
func StopReason(s string) domain.StopReason {
	switch s {
	case "max_tokens":
		return domain.StopReasonMaxTokens
	case "tool_use":
		return domain.StopReasonToolUse
	case "stop_sequence":
		return domain.StopReasonStopSequence
	default:
		return domain.StopReasonEndTurn
	}
}

// StopReasonName maps a canonical stop reason to stop_reason. The canonical
// error reason has no Anthropic equivalent and renders as end_turn.
func StopReasonName(r domain.StopReason) string {
	switch r {
	case domain.StopReasonMaxTokens, domain.StopReasonToolUse, domain.StopReasonStopSequence:
		return string(r)
	default:
		return "end_turn"
	}
}

// NewMessageID mints a message id in Anthropic's msg_ format.
func NewMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewToolUseID mints a tool_use id in Anthropic's toolu_ format.
func NewToolUseID() string {
	return "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
