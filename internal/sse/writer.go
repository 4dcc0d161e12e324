package sse

import (
	"errors"
	"net/http"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer emits frames to a client and flushes after every batch.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// start sends the stream headers before the first frame.
func (s *Writer) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// Write sends events in order and flushes once.
func (s *Writer) Write(events ...domain.WireEvent) error {
	s.start()
	for _, ev := range events {
		buf := make([]byte, 0, len(ev.Data)+len(ev.Name)+16)
		if ev.Name != "" {
			buf = append(buf, "event: "...)
			buf = append(buf, ev.Name...)
			buf = append(buf, '\n')
		}
		buf = append(buf, "data: "...)
		buf = append(buf, ev.Data...)
		buf = append(buf, '\n', '\n')
		if _, err := s.w.Write(buf); err != nil {
			return err
		}
	}
	s.flusher.Flush()
	return nil
}
