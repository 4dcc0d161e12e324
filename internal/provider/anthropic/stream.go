package anthropic

import (
	"encoding/json"
	"fmt"

	anthropicapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// StreamDecoder maps Messages stream events onto canonical events. The wire
// format is already block-structured, so the only state kept is the index
// remapping that hides blocks with no canonical form (thinking).
type StreamDecoder struct {
	done        bool
	inputTokens int
	nextIndex   int
	indices     map[int]int
}

func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{indices: make(map[int]int)}
}

func (d *StreamDecoder) Decode(chunk []byte) ([]domain.StreamEvent, error) {
	if d.done {
		return nil, nil
	}

	var head anthropicapi.StreamEvent
	if err := json.Unmarshal(chunk, &head); err != nil {
		return nil, malformed(err)
	}

	switch head.Type {
	case "message_start":
		var ev anthropicapi.MessageStartEvent
		if err := json.Unmarshal(chunk, &ev); err != nil {
			return nil, malformed(err)
		}
		d.inputTokens = ev.Message.Usage.InputTokens
		usage := &domain.Usage{InputTokens: ev.Message.Usage.InputTokens, OutputTokens: ev.Message.Usage.OutputTokens}
		return []domain.StreamEvent{domain.MessageStart(ev.Message.ID, ev.Message.Model, usage)}, nil

	case "content_block_start":
		var ev anthropicapi.ContentBlockStartEvent
		if err := json.Unmarshal(chunk, &ev); err != nil {
			return nil, malformed(err)
		}
		var block domain.ContentBlock
		switch ev.ContentBlock.Type {
		case "text":
			block = domain.TextBlock("")
		case "tool_use":
			block = domain.ContentBlock{Type: domain.ContentTypeToolUse, ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
		default:
			return nil, nil
		}
		idx := d.nextIndex
		d.nextIndex++
		d.indices[ev.Index] = idx
		events := []domain.StreamEvent{domain.BlockStart(idx, block)}
		// Text that arrives inline with the start is replayed as a delta.
		if block.Type == domain.ContentTypeText && ev.ContentBlock.Text != "" {
			events = append(events, domain.BlockDelta(idx, ev.ContentBlock.Text))
		}
		return events, nil

	case "content_block_delta":
		var ev anthropicapi.ContentBlockDeltaEvent
		if err := json.Unmarshal(chunk, &ev); err != nil {
			return nil, malformed(err)
		}
		idx, ok := d.indices[ev.Index]
		if !ok {
			return nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []domain.StreamEvent{domain.BlockDelta(idx, ev.Delta.Text)}, nil
		case "input_json_delta":
			if ev.Delta.PartialJSON == "" {
				return nil, nil
			}
			return []domain.StreamEvent{domain.BlockDelta(idx, ev.Delta.PartialJSON)}, nil
		}
		return nil, nil

	case "content_block_stop":
		var ev anthropicapi.ContentBlockStopEvent
		if err := json.Unmarshal(chunk, &ev); err != nil {
			return nil, malformed(err)
		}
		idx, ok := d.indices[ev.Index]
		if !ok {
			return nil, nil
		}
		delete(d.indices, ev.Index)
		return []domain.StreamEvent{domain.BlockStop(idx)}, nil

	case "message_delta":
		var ev anthropicapi.MessageDeltaEvent
		if err := json.Unmarshal(chunk, &ev); err != nil {
			return nil, malformed(err)
		}
		var usage *domain.Usage
		if ev.Usage != nil {
			in := ev.Usage.InputTokens
			if in == 0 {
				in = d.inputTokens
			}
			usage = &domain.Usage{InputTokens: in, OutputTokens: ev.Usage.OutputTokens}
		}
		return []domain.StreamEvent{domain.MessageDelta(anthropicapi.StopReason(ev.Delta.StopReason), usage)}, nil

	case "message_stop":
		d.done = true
		return []domain.StreamEvent{domain.MessageStop()}, nil

	case "error":
		var ev anthropicapi.ErrorResponse
		if err := json.Unmarshal(chunk, &ev); err != nil || ev.Error == nil {
			return nil, domain.ErrStreamInterrupted("backend sent an unreadable error event")
		}
		return nil, ev.Error.ToCanonical(0)
	}

	// ping and future event types
	return nil, nil
}

func (d *StreamDecoder) Finish() ([]domain.StreamEvent, error) {
	if d.done {
		return nil, nil
	}
	return nil, domain.ErrStreamInterrupted("backend stream ended before message_stop")
}

func malformed(err error) error {
	return domain.ErrTranslation(fmt.Sprintf("malformed backend stream event: %v", err))
}
