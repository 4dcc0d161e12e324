// Package domain holds the protocol-neutral request, response, and stream
// event model every translation passes through.
package domain

import (
	"encoding/json"
	"fmt"
)

// APIType identifies a wire protocol family.
type APIType string

const (
	APITypeOpenAI    APIType = "openai"
	APITypeAnthropic APIType = "anthropic"
)

// Role is the author of a message. The set is closed.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	return JoinText(m.Content)
}

// ToolDefinition describes a callable tool. Parameters is an opaque schema
// copied verbatim between protocols.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoiceMode selects how the model may use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice constrains tool selection. Name is set only for ToolChoiceTool.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// CanonicalRequest is a chat request independent of any wire protocol.
type CanonicalRequest struct {
	Model           string           `json:"model"`
	Messages        []Message        `json:"messages"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	ToolChoice      *ToolChoice      `json:"tool_choice,omitempty"`
	Stream          bool             `json:"stream"`
	StopSequences   []string         `json:"stop_sequences,omitempty"`
	// StreamUsage is set when the client asked for a usage report at the end
	// of a stream in addition to the stop reason.
	StreamUsage bool `json:"stream_usage,omitempty"`
}

// SystemText returns the concatenated text of all system messages.
func (r *CanonicalRequest) SystemText() string {
	var out string
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if t := m.Text(); t != "" {
			if out != "" {
				out += "\n\n"
			}
			out += t
		}
	}
	return out
}

// Validate checks the structural invariants shared by every adapter: a
// non-empty conversation, closed roles, and tool results that answer a tool
// call issued earlier in the same conversation.
func (r *CanonicalRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrTranslation("messages must not be empty").WithParam("messages")
	}
	seen := make(map[string]struct{})
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return ErrTranslation(fmt.Sprintf("messages[%d]: unsupported role %q", i, m.Role)).WithParam("messages")
		}
		for _, b := range m.Content {
			switch b.Type {
			case ContentTypeToolUse:
				if b.ID == "" {
					return ErrTranslation(fmt.Sprintf("messages[%d]: tool call without id", i))
				}
				seen[b.ID] = struct{}{}
			case ContentTypeToolResult:
				if _, ok := seen[b.ToolUseID]; !ok {
					return ErrTranslation(fmt.Sprintf("messages[%d]: tool result %q does not answer an earlier tool call", i, b.ToolUseID))
				}
			}
		}
	}
	return nil
}

// StopReason explains why generation ended.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonError        StopReason = "error"
)

// Usage is token accounting for one response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CanonicalResponse is a buffered reply.
type CanonicalResponse struct {
	ID         string         `json:"id,omitempty"`
	Model      string         `json:"model,omitempty"`
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}
