// Package stream drives one streamed reply from backend chunks to client
// events without holding the whole reply in memory.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/codec"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// EventWriter delivers rendered events to the client. Each call is flushed.
type EventWriter interface {
	Write(events ...domain.WireEvent) error
}

// Transcoder connects an egress decoder to an ingress encoder for a single
// request. It is not reusable.
type Transcoder struct {
	Source  domain.ChunkSource
	Decoder domain.StreamDecoder
	Encoder domain.StreamEncoder
	Writer  EventWriter

	// Request and Counter are optional. When both are set and the backend
	// reports no usage, usage is estimated from the request and the emitted
	// content.
	Request *domain.CanonicalRequest
	Counter domain.TokenCounter

	result    Result
	usageSeen bool
	output    strings.Builder
}

// Result summarizes a finished stream.
type Result struct {
	StopReason domain.StopReason
	Usage      domain.Usage
	// Completed is true when MessageStop reached the client.
	Completed bool
	// Err is the terminal error rendered to the client, if any.
	Err *domain.APIError
}

// Run pumps the stream until MessageStop, a backend failure, or ctx ends.
// Backend failures are rendered in-stream and reported in Result.Err; the
// returned error is non-nil only when the client could not be written to or
// went away.
func (t *Transcoder) Run(ctx context.Context) (Result, error) {
	defer t.Source.Close()

	// Unblock a pending Next when the request is canceled or times out.
	stop := context.AfterFunc(ctx, func() { _ = t.Source.Close() })
	defer stop()

	for {
		chunk, err := t.Source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) && ctx.Err() == nil {
				return t.finish()
			}
			return t.sourceFailed(ctx, err)
		}

		events, err := t.Decoder.Decode(chunk)
		if emitErr := t.emit(events); emitErr != nil || t.done() {
			return t.result, emitErr
		}
		if err != nil {
			return t.fail(codec.ToCanonicalError(err))
		}
	}
}

func (t *Transcoder) done() bool {
	return t.result.Completed || t.result.Err != nil
}

func (t *Transcoder) finish() (Result, error) {
	events, err := t.Decoder.Finish()
	if emitErr := t.emit(events); emitErr != nil || t.done() {
		return t.result, emitErr
	}
	if err != nil {
		return t.fail(codec.ToCanonicalError(err))
	}
	return t.fail(domain.ErrStreamInterrupted("backend stream ended before the message was complete"))
}

func (t *Transcoder) sourceFailed(ctx context.Context, err error) (Result, error) {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return t.fail(domain.ErrUpstreamTimeout("backend did not finish the stream in time"))
	case ctxErr != nil:
		t.result.Err = codec.ToCanonicalError(ctxErr)
		return t.result, ctxErr
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return t.fail(apiErr)
	}
	return t.fail(domain.ErrStreamInterrupted("backend stream failed: " + err.Error()))
}

// fail renders a terminal error event and ends the stream.
func (t *Transcoder) fail(apiErr *domain.APIError) (Result, error) {
	if t.result.StopReason == "" {
		t.result.StopReason = domain.StopReasonError
	}
	if err := t.emit([]domain.StreamEvent{domain.ErrorEvent(apiErr)}); err != nil {
		return t.result, err
	}
	return t.result, nil
}

// emit renders events in order and writes them in one flush. Events after a
// terminal event are dropped.
func (t *Transcoder) emit(events []domain.StreamEvent) error {
	if len(events) == 0 || t.done() {
		return nil
	}

	var wire []domain.WireEvent
	for _, ev := range events {
		ev = t.observe(ev)
		out, err := t.Encoder.Encode(ev)
		if err != nil {
			apiErr := domain.ErrTranslation(err.Error())
			if errOut, encErr := t.Encoder.Encode(domain.ErrorEvent(apiErr)); encErr == nil {
				wire = append(wire, errOut...)
			}
			t.result.Err = apiErr
			t.result.StopReason = domain.StopReasonError
			break
		}
		wire = append(wire, out...)
		if t.done() {
			break
		}
	}
	if len(wire) == 0 {
		return nil
	}
	return t.Writer.Write(wire...)
}

// observe records usage, stop reason and output text, and fills in usage on
// MessageDelta when the backend gave none.
func (t *Transcoder) observe(ev domain.StreamEvent) domain.StreamEvent {
	switch ev.Type {
	case domain.EventMessageStart:
		if ev.Usage != nil {
			t.usageSeen = true
			t.result.Usage.InputTokens = ev.Usage.InputTokens
		}
	case domain.EventBlockDelta:
		if t.Counter != nil {
			t.output.WriteString(ev.Partial)
		}
	case domain.EventMessageDelta:
		t.result.StopReason = ev.StopReason
		switch {
		case ev.Usage != nil:
			t.usageSeen = true
			if ev.Usage.InputTokens > 0 {
				t.result.Usage.InputTokens = ev.Usage.InputTokens
			}
			t.result.Usage.OutputTokens = ev.Usage.OutputTokens
		case !t.usageSeen && t.Counter != nil && t.Request != nil:
			t.result.Usage = domain.Usage{
				InputTokens:  t.Counter.CountRequest(t.Request),
				OutputTokens: t.Counter.CountText(t.Request.Model, t.output.String()),
			}
		}
		usage := t.result.Usage
		if ev.Usage != nil || t.Counter != nil {
			ev.Usage = &usage
		}
	case domain.EventMessageStop:
		t.result.Completed = true
	case domain.EventError:
		t.result.Err = ev.Err
		t.result.StopReason = domain.StopReasonError
	}
	return ev
}
