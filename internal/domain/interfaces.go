package domain

import (
	"context"
	"fmt"
	"strings"
)

// EgressKind names a backend protocol family. The set is closed; registry
// construction rejects anything else.
type EgressKind string

const (
	EgressOpenAICompatible EgressKind = "openai-compatible"
	EgressAnthropic        EgressKind = "anthropic"
)

// EgressKinds lists every supported backend family.
var EgressKinds = []EgressKind{EgressOpenAICompatible, EgressAnthropic}

// ParseEgressKind maps a routing-table adapter name to its kind. The class
// names used by older routing tables are accepted as aliases.
func ParseEgressKind(name string) (EgressKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai", "openai-compatible", "openai_compatible", "openaicompatibleadapter":
		return EgressOpenAICompatible, nil
	case "anthropic", "anthropicadapter":
		return EgressAnthropic, nil
	}
	return "", fmt.Errorf("unknown adapter %q", name)
}

// RouteEntry is one row of the model registry with its secrets resolved.
type RouteEntry struct {
	Model         string
	Kind          EgressKind
	CredentialRef string
	EndpointRef   string
	APIKey        string
	BaseURL       string
}

// StreamMetadata is fixed for the lifetime of one response.
type StreamMetadata struct {
	ID      string
	Model   string
	Created int64
	// IncludeUsage asks encoders whose protocol makes usage optional to
	// report it.
	IncludeUsage bool
}

// WireEvent is one client-protocol stream frame. An empty Name omits the
// event: line.
type WireEvent struct {
	Name string
	Data []byte
}

// Ingress converts between a client protocol and the canonical model.
type Ingress interface {
	APIType() APIType

	// DecodeRequest parses a raw client body. Failures are TranslationErrors.
	DecodeRequest(body []byte) (*CanonicalRequest, error)

	// EncodeResponse renders a buffered reply.
	EncodeResponse(resp *CanonicalResponse, meta StreamMetadata) ([]byte, error)

	// NewStreamEncoder returns the renderer for one streamed response.
	NewStreamEncoder(meta StreamMetadata) StreamEncoder

	// EncodeError renders err in the client's error envelope.
	EncodeError(err *APIError) []byte
}

// StreamEncoder renders canonical events as client wire events, one event at
// a time and in order.
type StreamEncoder interface {
	Encode(ev StreamEvent) ([]WireEvent, error)
}

// ChunkSource yields raw backend stream chunks in arrival order. Next returns
// io.EOF when the backend closes the stream.
type ChunkSource interface {
	Next() ([]byte, error)
	Close() error
}

// StreamDecoder correlates backend chunks into canonical events. It owns the
// per-request accumulator and is discarded with the stream.
type StreamDecoder interface {
	Decode(chunk []byte) ([]StreamEvent, error)

	// Finish is called when the backend closes the stream. It returns any
	// events still owed, or a StreamInterrupted error if the response was
	// incomplete.
	Finish() ([]StreamEvent, error)
}

// Egress converts canonical requests into backend calls.
type Egress interface {
	Kind() EgressKind
	Complete(ctx context.Context, req *CanonicalRequest, route *RouteEntry) (*CanonicalResponse, error)
	Stream(ctx context.Context, req *CanonicalRequest, route *RouteEntry) (ChunkSource, StreamDecoder, error)
}
