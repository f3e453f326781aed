// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sqlite provides a SQLite conversation backend for storage.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // CGO-less SQLite driver

	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/storage"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE conversations (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE messages (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		position        INTEGER NOT NULL,
		id              TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		timestamp       TEXT NOT NULL,
		PRIMARY KEY (conversation_id, position)
	)`,
	`CREATE INDEX idx_conversations_updated ON conversations(updated_at DESC)`,
}

// Store persists conversations in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ storage.Persister = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers, which is all a single-user client needs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return err
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`, i+1, formatTime(time.Now())); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// LoadAll returns every conversation, most recently updated first. Rows
// whose timestamps cannot be parsed are skipped and reported in a
// *storage.LoadError.
func (s *Store) LoadAll() ([]*model.Conversation, error) {
	rows, err := s.db.Query(`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}

	var convs []*model.Conversation
	byID := make(map[string]*model.Conversation)
	var skipped []storage.SkippedRecord

	for rows.Next() {
		var conv model.Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if conv.CreatedAt, err = parseTime(createdAt); err != nil {
			skipped = append(skipped, storage.SkippedRecord{Name: conv.ID, Err: err})
			continue
		}
		if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
			skipped = append(skipped, storage.SkippedRecord{Name: conv.ID, Err: err})
			continue
		}
		conv.Messages = make([]model.Message, 0)
		convs = append(convs, &conv)
		byID[conv.ID] = &conv
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	msgRows, err := s.db.Query(`SELECT conversation_id, id, role, content, timestamp FROM messages ORDER BY conversation_id, position`)
	if err != nil {
		return nil, err
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var convID, ts string
		var msg model.Message
		if err := msgRows.Scan(&convID, &msg.ID, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, err
		}
		conv, ok := byID[convID]
		if !ok {
			continue
		}
		msg.Timestamp, _ = parseTime(ts)
		conv.Messages = append(conv.Messages, msg)
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}

	if len(skipped) > 0 {
		return convs, &storage.LoadError{Skipped: skipped}
	}
	return convs, nil
}

// Save upserts the conversation and its messages in one transaction.
// Positions past the current message count are removed, which is how a
// rollback shrinks the stored history.
func (s *Store) Save(conv *model.Conversation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO conversations(id, title, created_at, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title=excluded.title, updated_at=excluded.updated_at`,
		conv.ID, conv.Title, formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt)); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO messages(conversation_id, position, id, role, content, timestamp) VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, position) DO UPDATE SET id=excluded.id, role=excluded.role, content=excluded.content, timestamp=excluded.timestamp`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		if _, err := stmt.Exec(conv.ID, i, msg.ID, string(msg.Role), msg.Content, formatTime(msg.Timestamp)); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ? AND position >= ?`, conv.ID, len(conv.Messages)); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a conversation and, through the foreign key, its messages.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// DeleteAll removes every conversation.
func (s *Store) DeleteAll() error {
	_, err := s.db.Exec(`DELETE FROM conversations`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored values sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
