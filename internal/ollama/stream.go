// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 1 << 20

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader decodes an NDJSON chat stream line by line and accumulates
// the deltas, so callers can read the full text so far after each chunk.
type StreamReader struct {
	scanner *bufio.Scanner
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	tokenCount  int
	model       string
}

// NewStreamReader creates a stream reader over r.
func NewStreamReader(r io.Reader) *StreamReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StreamReader{scanner: sc}
}

// Next returns the next chunk. It returns io.EOF when the body ends, and an
// error when the server reports one mid-stream.
func (s *StreamReader) Next(ctx context.Context) (*StreamChunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp ChatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			// Skip malformed lines
			continue
		}
		if resp.Error != "" {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: resp.Error}
		}

		if resp.Model != "" {
			s.model = resp.Model
		}
		content := resp.Message.Content
		if content != "" {
			s.accumulator.WriteString(content)
			s.tokenCount++
		}

		chunk := &StreamChunk{
			Content: content,
			Done:    resp.Done,
			Model:   s.model,
		}
		if resp.Done {
			chunk.DoneReason = resp.DoneReason
			chunk.TotalDuration = time.Duration(resp.TotalDuration)
			chunk.PromptTokens = resp.PromptEvalCount
			chunk.CompletionTokens = resp.EvalCount
		}
		return chunk, nil
	}
}

// Process reads the stream and calls callback for each chunk until the
// final chunk or the end of the body.
func (s *StreamReader) Process(ctx context.Context, callback func(StreamChunk)) error {
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		callback(*chunk)
		if chunk.Done {
			return nil
		}
	}
}

// Accumulated returns all content received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// TokenCount returns the number of content chunks received.
func (s *StreamReader) TokenCount() int {
	return s.tokenCount
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}
