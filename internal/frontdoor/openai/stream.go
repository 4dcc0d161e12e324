package openai

import (
	"encoding/json"
	"fmt"

	openaiapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/openai"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

var doneEvent = domain.WireEvent{Data: []byte("[DONE]")}

// streamEncoder renders canonical events as chat.completion.chunk frames.
// Tool blocks are numbered by their position among tool calls, which is the
// index OpenAI clients expect.
type streamEncoder struct {
	meta      domain.StreamMetadata
	kinds     map[int]domain.ContentType
	toolIndex map[int]int
	tools     int
	closed    bool
}

func newStreamEncoder(meta domain.StreamMetadata) *streamEncoder {
	return &streamEncoder{
		meta:      meta,
		kinds:     make(map[int]domain.ContentType),
		toolIndex: make(map[int]int),
	}
}

func (e *streamEncoder) chunk(delta openaiapi.ChunkDelta, finish *string) openaiapi.ChatCompletionChunk {
	return openaiapi.ChatCompletionChunk{
		ID:      e.meta.ID,
		Object:  "chat.completion.chunk",
		Created: e.meta.Created,
		Model:   e.meta.Model,
		Choices: []openaiapi.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func (e *streamEncoder) Encode(ev domain.StreamEvent) ([]domain.WireEvent, error) {
	if e.closed {
		return nil, nil
	}

	switch ev.Type {
	case domain.EventMessageStart:
		empty := ""
		return data(e.chunk(openaiapi.ChunkDelta{Role: "assistant", Content: &empty}, nil))

	case domain.EventBlockStart:
		kind := ev.Kind()
		e.kinds[ev.Index] = kind
		switch kind {
		case domain.ContentTypeText:
			return nil, nil
		case domain.ContentTypeToolUse:
			ord := e.tools
			e.tools++
			e.toolIndex[ev.Index] = ord
			return data(e.chunk(openaiapi.ChunkDelta{ToolCalls: []openaiapi.ToolCallChunk{{
				Index:    ord,
				ID:       ev.Block.ID,
				Type:     "function",
				Function: &openaiapi.FunctionCallChunk{Name: ev.Block.Name},
			}}}, nil))
		}
		return nil, fmt.Errorf("unsupported block kind %q", kind)

	case domain.EventBlockDelta:
		if e.kinds[ev.Index] == domain.ContentTypeToolUse {
			return data(e.chunk(openaiapi.ChunkDelta{ToolCalls: []openaiapi.ToolCallChunk{{
				Index:    e.toolIndex[ev.Index],
				Function: &openaiapi.FunctionCallChunk{Arguments: ev.Partial},
			}}}, nil))
		}
		text := ev.Partial
		return data(e.chunk(openaiapi.ChunkDelta{Content: &text}, nil))

	case domain.EventBlockStop:
		delete(e.kinds, ev.Index)
		return nil, nil

	case domain.EventMessageDelta:
		finish := openaiapi.FinishReason(ev.StopReason)
		out, err := data(e.chunk(openaiapi.ChunkDelta{}, &finish))
		if err != nil || ev.Usage == nil || !e.meta.IncludeUsage {
			return out, err
		}
		usage := openaiapi.ChatCompletionChunk{
			ID:      e.meta.ID,
			Object:  "chat.completion.chunk",
			Created: e.meta.Created,
			Model:   e.meta.Model,
			Choices: []openaiapi.ChunkChoice{},
			Usage: &openaiapi.Usage{
				PromptTokens:     ev.Usage.InputTokens,
				CompletionTokens: ev.Usage.OutputTokens,
				TotalTokens:      ev.Usage.InputTokens + ev.Usage.OutputTokens,
			},
		}
		more, err := data(usage)
		return append(out, more...), err

	case domain.EventMessageStop:
		e.closed = true
		return []domain.WireEvent{doneEvent}, nil

	case domain.EventError:
		e.closed = true
		apiErr := ev.Err
		if apiErr == nil {
			apiErr = domain.ErrServer("stream failed")
		}
		return []domain.WireEvent{{Data: (&Codec{}).EncodeError(apiErr)}}, nil
	}

	return nil, fmt.Errorf("unknown stream event %q", ev.Type)
}

func data(v any) ([]domain.WireEvent, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []domain.WireEvent{{Data: b}}, nil
}
