// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// DefaultTitle is the placeholder title of a conversation that has not yet
// received a user message.
const DefaultTitle = "New Conversation"

// TitleMaxRunes is the length a derived title is cut to.
const TitleMaxRunes = 50

// ErrNoMessages is returned when an operation needs a last message and the
// conversation has none.
var ErrNoMessages = errors.New("conversation has no messages")

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered chat history and its metadata.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  make([]Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds msg to the end of the history and derives the title from the
// first user message while the title is still the default.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.touch()
	if c.Title == DefaultTitle {
		c.deriveTitle()
	}
}

// ReplaceLast replaces the content of element N-1, keeping its ID, role and
// timestamp. It returns ErrNoMessages when the history is empty.
func (c *Conversation) ReplaceLast(content string) error {
	n := len(c.Messages)
	if n == 0 {
		return ErrNoMessages
	}
	c.Messages[n-1] = c.Messages[n-1].WithContent(content)
	c.touch()
	return nil
}

// RemoveLast drops the last message and returns it.
func (c *Conversation) RemoveLast() (Message, bool) {
	n := len(c.Messages)
	if n == 0 {
		return Message{}, false
	}
	last := c.Messages[n-1]
	c.Messages = c.Messages[:n-1]
	c.touch()
	return last, true
}

// LastMessage returns the most recent message.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty reports whether the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// SetTitle overrides the title. An empty title resets it to the default so
// the next user message derives a new one.
func (c *Conversation) SetTitle(title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	c.Title = title
	c.touch()
}

// Preview returns a short single-line summary of the first user message.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg.Preview(80)
		}
	}
	return ""
}

// Clone returns a deep copy that shares no message storage with c.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return &clone
}

// touch advances UpdatedAt. Wall clock steps backwards are ignored so
// UpdatedAt never decreases.
func (c *Conversation) touch() {
	now := time.Now()
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

func (c *Conversation) deriveTitle() {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = TitleFrom(msg.Content)
			return
		}
	}
}

// =============================================================================
// TITLES
// =============================================================================

// TitleFrom derives a conversation title from message content: whitespace is
// collapsed, the text is NFC-normalized, and anything beyond TitleMaxRunes is
// cut and marked with "...".
func TitleFrom(content string) string {
	title := norm.NFC.String(strings.Join(strings.Fields(content), " "))
	if title == "" {
		return DefaultTitle
	}
	runes := []rune(title)
	if len(runes) <= TitleMaxRunes {
		return title
	}
	return string(runes[:TitleMaxRunes]) + "..."
}
