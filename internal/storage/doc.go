// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for modelexplorer.
//
// # Key Types
//
//   - ConversationStore: in-memory conversation list, the single writer of
//     persisted state
//   - Persister: durable backend interface
//   - FileStore: one JSON file per conversation
//   - MemoryStore: process-local backend for ephemeral sessions and tests
//
// The SQLite backend lives in the storage/sqlite subpackage.
//
// # Usage
//
//	files, err := storage.NewFileStore(dir)
//	store := storage.NewConversationStore(files, logger)
//	conv := store.Create()
//	_ = store.AddMessage(model.NewUserMessage("hi"), conv.ID)
//
// # Storage Location
//
// Conversations are stored in ~/.modelexplorer/conversations/ as <id>.json.
package storage
