package domain

// EventType tags a StreamEvent.
type EventType string

const (
	EventMessageStart EventType = "message_start"
	EventBlockStart   EventType = "block_start"
	EventBlockDelta   EventType = "block_delta"
	EventBlockStop    EventType = "block_stop"
	EventMessageDelta EventType = "message_delta"
	EventMessageStop  EventType = "message_stop"
	EventError        EventType = "error"
)

// StreamEvent is one incremental unit of a streamed response. For a given
// Index the order is BlockStart, zero or more BlockDelta, BlockStop.
// MessageStop is terminal.
type StreamEvent struct {
	Type EventType

	// MessageStart
	MessageID string
	Model     string

	// BlockStart carries the block kind; tool_use starts also carry ID and Name.
	// BlockDelta carries Partial: text for text blocks, a JSON fragment of the
	// arguments for tool_use blocks.
	Index   int
	Block   *ContentBlock
	Partial string

	// MessageDelta
	StopReason StopReason
	Usage      *Usage

	// Error
	Err *APIError
}

func MessageStart(id, model string, usage *Usage) StreamEvent {
	return StreamEvent{Type: EventMessageStart, MessageID: id, Model: model, Usage: usage}
}

func BlockStart(index int, block ContentBlock) StreamEvent {
	return StreamEvent{Type: EventBlockStart, Index: index, Block: &block}
}

func BlockDelta(index int, partial string) StreamEvent {
	return StreamEvent{Type: EventBlockDelta, Index: index, Partial: partial}
}

func BlockStop(index int) StreamEvent {
	return StreamEvent{Type: EventBlockStop, Index: index}
}

func MessageDelta(reason StopReason, usage *Usage) StreamEvent {
	return StreamEvent{Type: EventMessageDelta, StopReason: reason, Usage: usage}
}

func MessageStop() StreamEvent {
	return StreamEvent{Type: EventMessageStop}
}

func ErrorEvent(err *APIError) StreamEvent {
	return StreamEvent{Type: EventError, Err: err}
}

// Kind returns the content type of the block a BlockStart opens.
func (e StreamEvent) Kind() ContentType {
	if e.Block == nil {
		return ""
	}
	return e.Block.Type
}
