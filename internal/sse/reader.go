// Package sse reads and writes Server-Sent Events frames.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

const maxFrameSize = 1024 * 1024

// Event is one dispatched SSE frame.
type Event struct {
	Name string
	Data []byte
}

// Reader splits an event stream into frames. Comment lines are skipped and
// multi-line data is joined with newlines.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	// Tool arguments and long completions can arrive as a single line.
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Reader{scanner: scanner}
}

// Next returns the next frame that carries data. It returns io.EOF once the
// stream is exhausted.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
	)
	for r.scanner.Scan() {
		line := bytes.TrimRight(r.scanner.Bytes(), "\r")
		if len(line) == 0 {
			if hasData {
				ev.Data = data.Bytes()
				return ev, nil
			}
			ev = Event{}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			ev.Name = string(value)
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		}
	}
	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Event{}, fmt.Errorf("sse frame exceeds %d bytes: %w", maxFrameSize, err)
		}
		return Event{}, err
	}
	if hasData {
		ev.Data = data.Bytes()
		return ev, nil
	}
	return Event{}, io.EOF
}
