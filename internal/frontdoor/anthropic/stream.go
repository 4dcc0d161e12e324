package anthropic

import (
	"encoding/json"
	"fmt"

	anthropicapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// streamEncoder renders canonical events as Messages API SSE events. It
// remembers the kind of each open block so deltas get the right delta type.
type streamEncoder struct {
	meta   domain.StreamMetadata
	kinds  map[int]domain.ContentType
	usage  domain.Usage
	closed bool
}

func newStreamEncoder(meta domain.StreamMetadata) *streamEncoder {
	if meta.ID == "" {
		meta.ID = anthropicapi.NewMessageID()
	}
	return &streamEncoder{meta: meta, kinds: make(map[int]domain.ContentType)}
}

var pingEvent = domain.WireEvent{Name: "ping", Data: []byte(`{"type":"ping"}`)}

func (e *streamEncoder) Encode(ev domain.StreamEvent) ([]domain.WireEvent, error) {
	if e.closed {
		return nil, nil
	}

	switch ev.Type {
	case domain.EventMessageStart:
		if ev.Usage != nil {
			e.usage.InputTokens = ev.Usage.InputTokens
		}
		msg := anthropicapi.MessageStartEvent{
			Type: "message_start",
			Message: anthropicapi.MessagesResponse{
				ID:      e.meta.ID,
				Type:    "message",
				Role:    "assistant",
				Model:   e.meta.Model,
				Content: []anthropicapi.ResponseContent{},
				Usage:   anthropicapi.MessagesUsage{InputTokens: e.usage.InputTokens, OutputTokens: 1},
			},
		}
		start, err := event("message_start", msg)
		if err != nil {
			return nil, err
		}
		return []domain.WireEvent{start, pingEvent}, nil

	case domain.EventBlockStart:
		kind := ev.Kind()
		e.kinds[ev.Index] = kind
		var block anthropicapi.ResponseContent
		switch kind {
		case domain.ContentTypeText:
			block = anthropicapi.ResponseContent{Type: "text"}
		case domain.ContentTypeToolUse:
			block = anthropicapi.ResponseContent{Type: "tool_use", ID: ev.Block.ID, Name: ev.Block.Name, Input: json.RawMessage(`{}`)}
		default:
			return nil, fmt.Errorf("unsupported block kind %q", kind)
		}
		start, err := event("content_block_start", anthropicapi.ContentBlockStartEvent{
			Type:         "content_block_start",
			Index:        ev.Index,
			ContentBlock: block,
		})
		if err != nil {
			return nil, err
		}
		if kind == domain.ContentTypeToolUse {
			return []domain.WireEvent{start, pingEvent}, nil
		}
		return []domain.WireEvent{start}, nil

	case domain.EventBlockDelta:
		delta := anthropicapi.BlockDelta{Type: "text_delta", Text: ev.Partial}
		if e.kinds[ev.Index] == domain.ContentTypeToolUse {
			delta = anthropicapi.BlockDelta{Type: "input_json_delta", PartialJSON: ev.Partial}
		}
		return one("content_block_delta", anthropicapi.ContentBlockDeltaEvent{
			Type:  "content_block_delta",
			Index: ev.Index,
			Delta: delta,
		})

	case domain.EventBlockStop:
		delete(e.kinds, ev.Index)
		return one("content_block_stop", anthropicapi.ContentBlockStopEvent{
			Type:  "content_block_stop",
			Index: ev.Index,
		})

	case domain.EventMessageDelta:
		if ev.Usage != nil {
			if ev.Usage.InputTokens > 0 {
				e.usage.InputTokens = ev.Usage.InputTokens
			}
			e.usage.OutputTokens = ev.Usage.OutputTokens
		}
		return one("message_delta", anthropicapi.MessageDeltaEvent{
			Type:  "message_delta",
			Delta: anthropicapi.MessageDelta{StopReason: anthropicapi.StopReasonName(ev.StopReason)},
			Usage: &anthropicapi.DeltaUsage{
				InputTokens:  e.usage.InputTokens,
				OutputTokens: e.usage.OutputTokens,
			},
		})

	case domain.EventMessageStop:
		e.closed = true
		return []domain.WireEvent{{Name: "message_stop", Data: []byte(`{"type":"message_stop"}`)}}, nil

	case domain.EventError:
		e.closed = true
		apiErr := ev.Err
		if apiErr == nil {
			apiErr = domain.ErrServer("stream failed")
		}
		return []domain.WireEvent{{Name: "error", Data: (&Codec{}).EncodeError(apiErr)}}, nil
	}

	return nil, fmt.Errorf("unknown stream event %q", ev.Type)
}

func event(name string, v any) (domain.WireEvent, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.WireEvent{}, err
	}
	return domain.WireEvent{Name: name, Data: data}, nil
}

func one(name string, v any) ([]domain.WireEvent, error) {
	ev, err := event(name, v)
	if err != nil {
		return nil, err
	}
	return []domain.WireEvent{ev}, nil
}
