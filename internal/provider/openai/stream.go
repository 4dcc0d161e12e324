package openai

import (
	"bytes"
	"encoding/json"
	"fmt"

	openaiapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/openai"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

var doneSentinel = []byte("[DONE]")

// streamChunk is a chunk that may instead carry an in-band error, which some
// compatible backends send after the stream has started.
type streamChunk struct {
	openaiapi.ChatCompletionChunk
	Error *openaiapi.APIError `json:"error,omitempty"`
}

// toolCall accumulates one streamed tool call. Argument fragments that arrive
// before the function name is known are held until the block can be started.
type toolCall struct {
	index     int
	id        string
	synthetic bool
	name      string
	started   bool
	closed    bool
	pending   bytes.Buffer
}

// replacedBy reports whether a fragment carrying id belongs to a different
// call than c. Some backends reuse one index for parallel calls and tell
// them apart only by id.
func (c *toolCall) replacedBy(id string) bool {
	return id != "" && c.id != "" && !c.synthetic && id != c.id
}

// StreamDecoder correlates Chat Completions chunks into canonical block
// events. Text and tool calls are streamed sequentially by these backends, so
// at most one block is open at a time: a block closes when a different block
// begins, when finish_reason arrives, or at [DONE].
type StreamDecoder struct {
	started   bool
	done      bool
	finished  bool
	nextIndex int

	textOpen  bool
	textIndex int
	openTool  *toolCall
	tools     map[int]*toolCall
	sawTools  bool

	stopReason domain.StopReason
	usage      *domain.Usage
}

func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{tools: make(map[int]*toolCall)}
}

// Decode consumes the data payload of one SSE frame.
func (d *StreamDecoder) Decode(chunk []byte) ([]domain.StreamEvent, error) {
	if d.done {
		return nil, nil
	}
	if bytes.Equal(bytes.TrimSpace(chunk), doneSentinel) {
		return d.complete(nil), nil
	}

	var c streamChunk
	if err := json.Unmarshal(chunk, &c); err != nil {
		return nil, domain.ErrTranslation(fmt.Sprintf("malformed backend stream chunk: %v", err))
	}
	if c.Error != nil {
		return nil, c.Error.ToCanonical(0)
	}

	var events []domain.StreamEvent
	if !d.started {
		d.started = true
		events = append(events, domain.MessageStart(c.ID, c.Model, nil))
	}

	if c.Usage != nil {
		d.usage = &domain.Usage{InputTokens: c.Usage.PromptTokens, OutputTokens: c.Usage.CompletionTokens}
	}

	if len(c.Choices) == 0 {
		return events, nil
	}
	choice := c.Choices[0]

	if choice.Delta.Content != nil && *choice.Delta.Content != "" {
		events = d.text(events, *choice.Delta.Content)
	}

	for _, tc := range choice.Delta.ToolCalls {
		var err error
		events, err = d.toolFragment(events, tc)
		if err != nil {
			return nil, err
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		events = d.closeOpen(events)
		d.finished = true
		d.stopReason = openaiapi.StopReason(*choice.FinishReason)
		if d.sawTools && d.stopReason == domain.StopReasonEndTurn {
			d.stopReason = domain.StopReasonToolUse
		}
	}

	return events, nil
}

// Finish is called at EOF. A backend that reported finish_reason but closed
// without [DONE] is treated as complete.
func (d *StreamDecoder) Finish() ([]domain.StreamEvent, error) {
	if d.done {
		return nil, nil
	}
	if d.finished {
		return d.complete(nil), nil
	}
	return nil, domain.ErrStreamInterrupted("backend stream ended before completion")
}

func (d *StreamDecoder) text(events []domain.StreamEvent, s string) []domain.StreamEvent {
	if !d.textOpen {
		events = d.closeOpen(events)
		d.textOpen = true
		d.textIndex = d.nextIndex
		d.nextIndex++
		events = append(events, domain.BlockStart(d.textIndex, domain.TextBlock("")))
	}
	return append(events, domain.BlockDelta(d.textIndex, s))
}

func (d *StreamDecoder) toolFragment(events []domain.StreamEvent, tc openaiapi.ToolCallChunk) ([]domain.StreamEvent, error) {
	call, ok := d.tools[tc.Index]
	if ok && call.replacedBy(tc.ID) {
		ok = false
	}
	if !ok {
		events = d.closeOpen(events)
		call = &toolCall{index: d.nextIndex}
		d.nextIndex++
		d.tools[tc.Index] = call
		d.openTool = call
		d.sawTools = true
	}
	if call.closed {
		return nil, domain.ErrTranslation(fmt.Sprintf("tool call %d continued after its block closed", tc.Index))
	}
	if call != d.openTool {
		events = d.closeOpen(events)
		d.openTool = call
	}

	if tc.ID != "" {
		call.id = tc.ID
	}
	var fragment string
	if tc.Function != nil {
		if tc.Function.Name != "" {
			call.name = tc.Function.Name
		}
		fragment = tc.Function.Arguments
	}

	if !call.started {
		call.pending.WriteString(fragment)
		if call.name == "" {
			return events, nil
		}
		return d.startTool(events, call), nil
	}
	if fragment != "" {
		events = append(events, domain.BlockDelta(call.index, fragment))
	}
	return events, nil
}

func (d *StreamDecoder) startTool(events []domain.StreamEvent, call *toolCall) []domain.StreamEvent {
	if call.id == "" {
		call.id = openaiapi.NewToolCallID()
		call.synthetic = true
	}
	call.started = true
	events = append(events, domain.BlockStart(call.index, domain.ContentBlock{
		Type: domain.ContentTypeToolUse,
		ID:   call.id,
		Name: call.name,
	}))
	if call.pending.Len() > 0 {
		events = append(events, domain.BlockDelta(call.index, call.pending.String()))
		call.pending.Reset()
	}
	return events
}

func (d *StreamDecoder) closeOpen(events []domain.StreamEvent) []domain.StreamEvent {
	if d.textOpen {
		d.textOpen = false
		events = append(events, domain.BlockStop(d.textIndex))
	}
	if call := d.openTool; call != nil {
		if !call.started {
			events = d.startTool(events, call)
		}
		call.closed = true
		d.openTool = nil
		events = append(events, domain.BlockStop(call.index))
	}
	return events
}

func (d *StreamDecoder) complete(events []domain.StreamEvent) []domain.StreamEvent {
	if !d.started {
		d.started = true
		events = append(events, domain.MessageStart("", "", nil))
	}
	events = d.closeOpen(events)
	reason := d.stopReason
	if reason == "" {
		reason = domain.StopReasonEndTurn
		if d.sawTools {
			reason = domain.StopReasonToolUse
		}
	}
	d.done = true
	return append(events, domain.MessageDelta(reason, d.usage), domain.MessageStop())
}
