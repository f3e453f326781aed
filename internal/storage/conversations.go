// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/observability"
)

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore owns the set of conversations and is the only writer of
// persisted state.
//
// The in-memory list is authoritative. Every mutation is written through to
// the Persister; write failures are logged and swallowed so a full disk never
// interrupts a chat, and the next successful write of the same conversation
// repairs the record.
//
// The list is kept ordered by UpdatedAt, newest first. Values handed out are
// clones, so callers can never mutate store state without going through it.
type ConversationStore struct {
	mu        sync.Mutex
	persister Persister
	logger    observability.Logger

	conversations []*model.Conversation
	byID          map[string]*model.Conversation
	currentID     string
}

// ConversationSummary is the lightweight listing form of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// NewConversationStore loads every conversation from p and returns a ready
// store. The most recently updated conversation becomes current.
func NewConversationStore(p Persister, logger observability.Logger) *ConversationStore {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &ConversationStore{
		persister: p,
		logger:    logger.WithComponent("storage"),
		byID:      make(map[string]*model.Conversation),
	}
	s.load()
	return s
}

func (s *ConversationStore) load() {
	convs, err := s.persister.LoadAll()
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			for _, skipped := range loadErr.Skipped {
				s.logger.Warn("skipping unreadable conversation", "name", skipped.Name, "error", skipped.Err)
			}
		} else {
			s.logger.Warn("failed to load conversations", "error", err)
		}
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	for _, conv := range convs {
		if _, dup := s.byID[conv.ID]; dup {
			continue
		}
		s.conversations = append(s.conversations, conv)
		s.byID[conv.ID] = conv
	}
	if len(s.conversations) > 0 {
		s.currentID = s.conversations[0].ID
	}
	s.logger.Debug("conversations loaded", "count", len(s.conversations))
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create adds a new empty conversation at the front of the list and makes it
// current.
func (s *ConversationStore) Create() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.NewConversation()
	s.conversations = append([]*model.Conversation{conv}, s.conversations...)
	s.byID[conv.ID] = conv
	s.currentID = conv.ID
	s.persist(conv)

	return conv.Clone()
}

// AddMessage appends msg to a conversation. The title is derived from the
// first user message while it is still the default.
func (s *ConversationStore) AddMessage(msg model.Message, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[conversationID]
	if !ok {
		return ErrConversationNotFound
	}

	conv.Append(msg)
	s.moveToFront(conv)
	s.persist(conv)
	return nil
}

// UpdateLastMessage replaces the content of the conversation's last message,
// keeping its ID, role and timestamp. It does nothing when the conversation
// has no messages.
//
// This runs once per streamed snapshot. The lookup is a map access and the
// list reorder is skipped when the conversation is already first, which it
// is for the whole of a stream.
func (s *ConversationStore) UpdateLastMessage(conversationID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if err := conv.ReplaceLast(content); err != nil {
		if errors.Is(err, model.ErrNoMessages) {
			return nil
		}
		return err
	}

	s.moveToFront(conv)
	s.persist(conv)
	return nil
}

// UpdateConversation replaces the stored conversation that has the same ID
// as snapshot. UpdatedAt is set to now. Used to roll back failed exchanges.
func (s *ConversationStore) UpdateConversation(snapshot *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[snapshot.ID]
	if !ok {
		return ErrConversationNotFound
	}

	conv := snapshot.Clone()
	conv.UpdatedAt = time.Now()
	if conv.UpdatedAt.Before(old.UpdatedAt) {
		conv.UpdatedAt = old.UpdatedAt
	}

	for i, c := range s.conversations {
		if c == old {
			s.conversations[i] = conv
			break
		}
	}
	s.byID[conv.ID] = conv
	s.moveToFront(conv)
	s.persist(conv)
	return nil
}

// Rename sets a conversation's title. An empty title restores the default
// so the next user message derives a new one.
func (s *ConversationStore) Rename(conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.SetTitle(title)
	s.moveToFront(conv)
	s.persist(conv)
	return nil
}

// Delete removes a conversation from memory and durable storage. If it was
// current, the new first conversation becomes current.
func (s *ConversationStore) Delete(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[conversationID]
	if !ok {
		return ErrConversationNotFound
	}

	delete(s.byID, conversationID)
	for i, c := range s.conversations {
		if c == conv {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			break
		}
	}

	if s.currentID == conversationID {
		s.currentID = ""
		if len(s.conversations) > 0 {
			s.currentID = s.conversations[0].ID
		}
	}

	if err := s.persister.Delete(conversationID); err != nil {
		s.logger.Warn("failed to delete conversation", "conversation_id", conversationID, "error", err)
	}
	return nil
}

// Clear removes every conversation.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.byID = make(map[string]*model.Conversation)
	s.currentID = ""

	if err := s.persister.DeleteAll(); err != nil {
		s.logger.Warn("failed to clear conversations", "error", err)
	}
}

// SetCurrent makes an existing conversation current.
func (s *ConversationStore) SetCurrent(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[conversationID]; !ok {
		return ErrConversationNotFound
	}
	s.currentID = conversationID
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a copy of one conversation.
func (s *ConversationStore) Get(conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// Current returns a copy of the current conversation.
func (s *ConversationStore) Current() (*model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[s.currentID]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// CurrentID returns the current conversation ID, or "" when there is none.
func (s *ConversationStore) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// List returns copies of all conversations, newest first.
func (s *ConversationStore) List() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// Summaries returns listing metadata for all conversations, newest first.
func (s *ConversationStore) Summaries() []ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ConversationSummary, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			MessageCount: len(c.Messages),
			Preview:      c.Preview(),
		}
	}
	return out
}

// Len returns the number of conversations.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Close releases the persister.
func (s *ConversationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persister.Close()
}

// =============================================================================
// HELPERS
// =============================================================================

// moveToFront keeps the newest-first ordering after conv was modified.
// Caller holds s.mu.
func (s *ConversationStore) moveToFront(conv *model.Conversation) {
	if len(s.conversations) > 0 && s.conversations[0] == conv {
		return
	}
	for i, c := range s.conversations {
		if c == conv {
			copy(s.conversations[1:i+1], s.conversations[:i])
			s.conversations[0] = conv
			return
		}
	}
}

// persist writes conv through to the backend. Caller holds s.mu, which also
// serializes writes to the same record.
func (s *ConversationStore) persist(conv *model.Conversation) {
	if err := s.persister.Save(conv); err != nil {
		s.logger.Warn("failed to persist conversation", "conversation_id", conv.ID, "error", err)
	}
}
