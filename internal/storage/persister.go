// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"strings"

	"github.com/jeranaias/modelexplorer/internal/model"
)

// Persister is the durable backend behind a ConversationStore.
//
// Implementations only move whole conversation records; ordering, titles
// and the current-conversation pointer are owned by the store.
type Persister interface {
	// LoadAll returns every readable conversation. Unreadable records are
	// skipped and reported through a *LoadError alongside the results.
	LoadAll() ([]*model.Conversation, error)
	// Save writes the full record, replacing any previous version.
	Save(conv *model.Conversation) error
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(id string) error
	// DeleteAll removes every record.
	DeleteAll() error
	// Close releases backend resources.
	Close() error
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ErrInvalidID is returned for IDs that cannot name a stored record.
var ErrInvalidID = &ConversationError{Message: "invalid conversation id"}

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// SkippedRecord describes one record LoadAll could not read.
type SkippedRecord struct {
	Name string
	Err  error
}

// LoadError is a partial failure: the conversations returned with it are
// usable, the Skipped ones are not.
type LoadError struct {
	Skipped []SkippedRecord
}

func (e *LoadError) Error() string {
	names := make([]string, 0, len(e.Skipped))
	for _, s := range e.Skipped {
		names = append(names, s.Name)
	}
	return fmt.Sprintf("skipped %d unreadable conversation(s): %s", len(e.Skipped), strings.Join(names, ", "))
}

// ValidID reports whether id is safe to use as a record key. IDs become file
// names, so path separators and dot segments are rejected.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, `/\:`+"\x00")
}
