// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/util"
)

// FileStore persists one JSON file per conversation, named <id>.json. The
// directory listing is the index.
type FileStore struct {
	// BaseDir is the directory for storing conversations.
	// Default: ~/.modelexplorer/conversations/
	BaseDir string
}

// NewFileStore creates a FileStore rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversation directory: %w", err)
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// LoadAll reads every conversation file, most recently updated first.
func (s *FileStore) LoadAll() ([]*model.Conversation, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Conversation{}, nil
		}
		return nil, err
	}

	convs := make([]*model.Conversation, 0, len(entries))
	var skipped []SkippedRecord

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || util.IsTempFile(name) {
			continue
		}

		conv, err := s.load(filepath.Join(s.BaseDir, name))
		if err != nil {
			skipped = append(skipped, SkippedRecord{Name: name, Err: err})
			continue
		}
		convs = append(convs, conv)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	if len(skipped) > 0 {
		return convs, &LoadError{Skipped: skipped}
	}
	return convs, nil
}

func (s *FileStore) load(path string) (*model.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	if !ValidID(conv.ID) {
		return nil, ErrInvalidID
	}
	if conv.Messages == nil {
		conv.Messages = make([]model.Message, 0)
	}
	return &conv, nil
}

// Save writes the conversation atomically. The directory is recreated if it
// was removed while the store was open.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func (s *FileStore) Save(conv *model.Conversation) error {
	if !ValidID(conv.ID) {
		return ErrInvalidID
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFileWithDir(s.filePath(conv.ID), data, 0644, 0755)
}

// Delete removes a conversation file.
func (s *FileStore) Delete(id string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	return util.RemoveFile(s.filePath(id))
}

// DeleteAll removes every conversation file, leaving other files alone.
func (s *FileStore) DeleteAll() error {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := util.RemoveFile(filepath.Join(s.BaseDir, entry.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close implements Persister. Files need no teardown.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
