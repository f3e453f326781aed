// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse encodes session events as Server-Sent Events frames and
// decodes them back.
//
// Every event is one frame:
//
//	data: {"type":"content","content":"Hel"}
//
//	data: {"type":"done","content":"Hello","timestamp":"2025-01-02T03:04:05Z"}
//
// Content frames carry no timestamp. Done and error frames do.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/modelexplorer/internal/session"
)

// FallbackFrame is written when a frame cannot be encoded.
const FallbackFrame = "data: {\"type\":\"error\",\"content\":\"Encoding failed\"}\n\n"

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// Frame is the JSON payload of one SSE frame.
type Frame struct {
	Type      string  `json:"type"`
	Content   *string `json:"content,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// FrameFor converts an event into its wire payload.
func FrameFor(ev session.Event, now time.Time) Frame {
	content := ev.Content
	f := Frame{Type: ev.Type.String(), Content: &content}
	if ev.IsTerminal() {
		f.Timestamp = now.UTC().Format(time.RFC3339)
	}
	return f
}

// Event converts a decoded frame back into an event.
func (f Frame) Event() (session.Event, error) {
	typ, ok := session.ParseEventType(f.Type)
	if !ok {
		return session.Event{}, fmt.Errorf("unknown event type %q", f.Type)
	}
	ev := session.Event{Type: typ}
	if f.Content != nil {
		ev.Content = *f.Content
	}
	return ev, nil
}

// Time parses the frame timestamp. The zero time is returned when absent.
func (f Frame) Time() (time.Time, error) {
	if f.Timestamp == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, f.Timestamp)
}

// =============================================================================
// ENCODER
// =============================================================================

// Encoder writes frames to a stream, flushing after each one when the
// writer supports it.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
	now     func() time.Time
	marshal func(any) ([]byte, error)
}

// NewEncoder creates an encoder on w.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w, now: time.Now, marshal: json.Marshal}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Encode writes one event as one frame. Encoding failures produce
// FallbackFrame instead of an error; only write failures are returned.
func (e *Encoder) Encode(ev session.Event) error {
	var buf bytes.Buffer
	data, err := e.marshal(FrameFor(ev, e.now()))
	if err != nil {
		buf.WriteString(FallbackFrame)
	} else {
		buf.WriteString("data: ")
		buf.Write(data)
		buf.WriteString("\n\n")
	}

	if _, err := e.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// WriteHeaders sets the event-stream response headers.
func WriteHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// =============================================================================
// DECODER
// =============================================================================

// ErrMalformedFrame is returned for a frame whose data is not a valid
// payload.
var ErrMalformedFrame = errors.New("malformed sse frame")

// Decoder reads frames from a stream. Comment lines and fields other than
// data are ignored; multiple data lines in one frame are joined with "\n".
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder on r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	return &Decoder{scanner: sc}
}

// Next returns the next frame, or io.EOF at the end of the stream.
func (d *Decoder) Next() (Frame, error) {
	var data []string
	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")
		if line == "" {
			if len(data) == 0 {
				continue
			}
			return parseFrame(strings.Join(data, "\n"))
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}
	if err := d.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if len(data) > 0 {
		return parseFrame(strings.Join(data, "\n"))
	}
	return Frame{}, io.EOF
}

// NextEvent returns the next frame as an event.
func (d *Decoder) NextEvent() (session.Event, error) {
	f, err := d.Next()
	if err != nil {
		return session.Event{}, err
	}
	return f.Event()
}

func parseFrame(data string) (Frame, error) {
	var f Frame
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}
