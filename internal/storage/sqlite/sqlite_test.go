// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/storage"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "conversations.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s, path := openTemp(t)

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	// Reopening must not re-apply anything.
	require.NoError(t, s.Close())
	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()
	v, err = again.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s, _ := openTemp(t)

	conv := model.NewConversation()
	conv.Append(model.NewUserMessage("hello"))
	conv.Append(model.NewMessage(model.RoleAssistant, "hi there"))
	require.NoError(t, s.Save(conv))

	all, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "hello", got.Title)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "hi there", got.Messages[1].Content)
	assert.Equal(t, conv.Messages[0].ID, got.Messages[0].ID)
	assert.True(t, conv.UpdatedAt.Equal(got.UpdatedAt))
}

func TestStore_SaveShrinksHistory(t *testing.T) {
	s, _ := openTemp(t)

	conv := model.NewConversation()
	conv.Append(model.NewUserMessage("q"))
	conv.Append(model.NewAssistantPlaceholder())
	require.NoError(t, s.Save(conv))

	conv.RemoveLast()
	require.NoError(t, s.Save(conv))

	all, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Messages, 1)
}

func TestStore_OrderAndDelete(t *testing.T) {
	s, _ := openTemp(t)

	older := model.NewConversation()
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := model.NewConversation()
	require.NoError(t, s.Save(older))
	require.NoError(t, s.Save(newer))

	all, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)

	require.NoError(t, s.Delete(newer.ID))
	require.NoError(t, s.Delete("never-existed"))
	all, _ = s.LoadAll()
	require.Len(t, all, 1)
	assert.Equal(t, older.ID, all[0].ID)

	require.NoError(t, s.DeleteAll())
	all, _ = s.LoadAll()
	assert.Empty(t, all)
}

func TestStore_BadTimestampSkipped(t *testing.T) {
	s, _ := openTemp(t)

	good := model.NewConversation()
	require.NoError(t, s.Save(good))
	_, err := s.db.Exec(`INSERT INTO conversations(id, title, created_at, updated_at) VALUES('bad', 't', 'yesterday', 'today')`)
	require.NoError(t, err)

	all, err := s.LoadAll()
	require.Len(t, all, 1)

	var loadErr *storage.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "bad", loadErr.Skipped[0].Name)
}

func TestStore_BacksConversationStore(t *testing.T) {
	s, path := openTemp(t)

	store := storage.NewConversationStore(s, nil)
	conv := store.Create()
	require.NoError(t, store.AddMessage(model.NewAssistantPlaceholder(), conv.ID))
	require.NoError(t, store.UpdateLastMessage(conv.ID, "X"))
	require.NoError(t, store.UpdateLastMessage(conv.ID, "XY"))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	again := storage.NewConversationStore(reopened, nil)
	got, err := again.Get(conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "XY", got.Messages[0].Content)
}
