package sse

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

func TestReader_Next(t *testing.T) {
	input := ": keep-alive\n\n" +
		"event: message_start\r\ndata: {\"a\":1}\r\n\r\n" +
		"data:{\"b\":2}\n\n" +
		"data: line1\ndata: line2\n\n" +
		"data: [DONE]"

	r := NewReader(strings.NewReader(input))

	want := []Event{
		{Name: "message_start", Data: []byte(`{"a":1}`)},
		{Data: []byte(`{"b":2}`)},
		{Data: []byte("line1\nline2")},
		{Data: []byte("[DONE]")},
	}
	for i, w := range want {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		if got.Name != w.Name || string(got.Data) != string(w.Data) {
			t.Errorf("frame %d = {%q %q}, want {%q %q}", i, got.Name, got.Data, w.Name, w.Data)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReader_EmptyStream(t *testing.T) {
	r := NewReader(strings.NewReader(""))
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestWriter_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if w.started || len(rec.Header()) != 0 {
		t.Fatal("writer should not start before first write")
	}

	err = w.Write(
		domain.WireEvent{Name: "ping", Data: []byte(`{"type":"ping"}`)},
		domain.WireEvent{Data: []byte("[DONE]")},
	)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := "event: ping\ndata: {\"type\":\"ping\"}\n\ndata: [DONE]\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if !rec.Flushed {
		t.Error("expected flush")
	}
}
