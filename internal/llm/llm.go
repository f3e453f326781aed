// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the language-model capability that chat sessions run
// against, independent of any one backend.
package llm

import (
	"context"
	"strings"
	"sync"
)

// Model is a language-model backend holding one conversational session.
//
// Stream produces snapshots: every value is the full response so far, not a
// delta. The snapshot channel is closed when the response is complete. The
// error channel carries at most one error and is closed after the snapshot
// channel. Cancelling ctx stops the stream; the error channel then yields
// ctx.Err().
//
// A backend remembers the exchanges of its session so follow-up prompts
// have context. Reset discards that session. Fork returns a model with a new,
// empty session on the same backend; the two never see each other's
// exchanges.
type Model interface {
	Name() string
	CheckAvailability(ctx context.Context) AvailabilityStatus
	Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
	Complete(ctx context.Context, prompt string) (string, error)
	Reset()
	Fork() Model
}

// Seeder is implemented by models that can rebuild their session from an
// existing transcript, so reopening a conversation keeps its context.
type Seeder interface {
	Seed(turns []Turn)
}

// Role names a participant in a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of session history.
type Turn struct {
	Role    Role
	Content string
}

// =============================================================================
// SESSION HISTORY
// =============================================================================

// History is the thread-safe transcript a backend sends with every prompt.
type History struct {
	mu     sync.Mutex
	system string
	turns  []Turn
}

// NewHistory creates a History that always starts with systemPrompt when it
// is non-empty.
func NewHistory(systemPrompt string) *History {
	return &History{system: strings.TrimSpace(systemPrompt)}
}

// With returns the transcript followed by a new user prompt. The history
// itself is not modified.
func (h *History) With(prompt string) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Turn, 0, len(h.turns)+2)
	if h.system != "" {
		out = append(out, Turn{Role: RoleSystem, Content: h.system})
	}
	out = append(out, h.turns...)
	return append(out, Turn{Role: RoleUser, Content: prompt})
}

// Commit records a completed exchange.
func (h *History) Commit(prompt, response string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns,
		Turn{Role: RoleUser, Content: prompt},
		Turn{Role: RoleAssistant, Content: response},
	)
}

// Seed replaces the transcript. System turns are dropped because the system
// prompt is configured separately.
func (h *History) Seed(turns []Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = h.turns[:0]
	for _, t := range turns {
		if t.Role == RoleSystem || strings.TrimSpace(t.Content) == "" {
			continue
		}
		h.turns = append(h.turns, t)
	}
}

// Fresh returns an empty History with the same system prompt.
func (h *History) Fresh() *History {
	return NewHistory(h.system)
}

// Reset clears the transcript.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// =============================================================================
// STREAM HELPERS
// =============================================================================

// Collect drains a stream and returns the final snapshot.
func Collect(snapshots <-chan string, errs <-chan error) (string, error) {
	var last string
	for s := range snapshots {
		last = s
	}
	if err := <-errs; err != nil {
		return last, err
	}
	return last, nil
}

// Send delivers a snapshot unless ctx is done first.
func Send(ctx context.Context, out chan<- string, snapshot string) bool {
	select {
	case out <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}
