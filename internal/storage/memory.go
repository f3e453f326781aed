// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sort"
	"sync"

	"github.com/jeranaias/modelexplorer/internal/model"
)

// MemoryStore is a Persister that keeps records in process memory only. It
// backs the "memory" storage backend and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*model.Conversation
	saves   int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*model.Conversation)}
}

func (m *MemoryStore) LoadAll() ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Conversation, 0, len(m.records))
	for _, c := range m.records {
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Save(conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[conv.ID] = conv.Clone()
	m.saves++
	return nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) DeleteAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*model.Conversation)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Record returns a copy of the persisted version of a conversation.
func (m *MemoryStore) Record(id string) (*model.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.records[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Saves returns how many Save calls have been made.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
