// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/llm/llmtest"
	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/session"
	"github.com/jeranaias/modelexplorer/internal/storage"
)

func newTestController(t *testing.T, fake *llmtest.Fake) (*Controller, *storage.ConversationStore, *storage.MemoryStore) {
	t.Helper()
	mem := storage.NewMemoryStore()
	store := storage.NewConversationStore(mem, nil)
	return New(store, fake, nil), store, mem
}

func drain(t *testing.T, ch <-chan session.Event) []session.Event {
	t.Helper()
	var events []session.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining events")
		}
	}
}

func TestSendMessageSuccess(t *testing.T) {
	fake := llmtest.New("Hi", "Hi there")
	c, store, mem := newTestController(t, fake)

	events, err := c.SendMessage(context.Background(), "  hello  ")
	require.NoError(t, err)
	got := drain(t, events)

	assert.Equal(t, session.Done("Hi there"), got[len(got)-1])
	assert.False(t, c.IsLoading())
	assert.Empty(t, c.ErrorMessage())
	assert.Equal(t, []string{"hello"}, fake.Prompts())

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "Hi there", msgs[1].Content)

	conv, err := store.Get(c.CurrentConversationID())
	require.NoError(t, err)
	assert.Equal(t, "hello", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, msgs[1], conv.Messages[1], "view and store agree on id, timestamp and content")

	rec, ok := mem.Record(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "Hi there", rec.Messages[1].Content)
}

func TestSendMessageIgnoresBlank(t *testing.T) {
	c, store, _ := newTestController(t, llmtest.New("x"))

	events, err := c.SendMessage(context.Background(), " \n\t ")
	assert.NoError(t, err)
	assert.Nil(t, events)
	assert.Equal(t, 0, store.Len())
}

func TestSendMessageUnavailable(t *testing.T) {
	fake := llmtest.New("x")
	fake.SetStatus(llm.StatusUnavailable(llm.DisabledByPolicy, "no API key", "set OPENAI_API_KEY"))
	c, store, _ := newTestController(t, fake)

	status := c.RefreshAvailability(context.Background())
	assert.Equal(t, llm.DisabledByPolicy, status.Kind)

	events, err := c.SendMessage(context.Background(), "hello")
	assert.Nil(t, events)
	assert.True(t, llm.IsUnavailable(err))
	assert.Equal(t, "Model Disabled: no API key", c.ErrorMessage())
	assert.Equal(t, 0, store.Len(), "nothing is recorded when the model cannot run")
	assert.Empty(t, fake.Prompts())
}

func TestSendMessageErrorRollsBack(t *testing.T) {
	fake := llmtest.New("A", "AB")
	c, store, _ := newTestController(t, fake)

	drain(t, mustSend(t, c, "first"))
	before := len(c.Messages())

	fake.Err = llm.NewSessionError("Generation failed", errors.New("reset by peer"))
	got := drain(t, mustSend(t, c, "second"))

	assert.Equal(t, session.EventError, got[len(got)-1].Type)
	assert.Equal(t, "Generation failed: reset by peer", c.ErrorMessage())
	assert.False(t, c.IsLoading())

	msgs := c.Messages()
	assert.Len(t, msgs, before, "the failed exchange is removed")
	assert.Equal(t, "AB", msgs[len(msgs)-1].Content)

	conv, err := store.Get(c.CurrentConversationID())
	require.NoError(t, err)
	assert.Len(t, conv.Messages, before)
	assert.Equal(t, "first", conv.Title)

	c.DismissError()
	assert.Empty(t, c.ErrorMessage())
}

func TestSendMessageFirstExchangeFailure(t *testing.T) {
	fake := llmtest.New("partial")
	fake.Err = errors.New("boom")
	c, store, mem := newTestController(t, fake)
	c.NewConversation()
	id := c.CurrentConversationID()

	drain(t, mustSend(t, c, "hello"))

	assert.Empty(t, c.Messages())
	conv, err := store.Get(id)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, model.DefaultTitle, conv.Title)

	rec, ok := mem.Record(id)
	require.True(t, ok)
	assert.Empty(t, rec.Messages)
}

func TestSendMessageUnavailableMidStreamUpdatesAvailability(t *testing.T) {
	fake := llmtest.New()
	fake.Err = llm.NewUnavailableError(llm.StatusUnavailable(llm.UnsupportedEnvironment, "Ollama stopped responding.", ""))
	c, _, _ := newTestController(t, fake)

	drain(t, mustSend(t, c, "hi"))
	assert.Equal(t, llm.UnsupportedEnvironment, c.Availability().Kind)
}

func TestSendMessageBusy(t *testing.T) {
	fake := llmtest.New("partial")
	fake.Block = true
	c, _, _ := newTestController(t, fake)

	events := mustSend(t, c, "one")
	<-events
	assert.True(t, c.IsLoading())

	_, err := c.SendMessage(context.Background(), "two")
	assert.ErrorIs(t, err, ErrBusy)

	c.Cancel()
	drain(t, events)
}

func TestSendToConversationBusyLeavesStreamRunning(t *testing.T) {
	fake := llmtest.New("partial")
	fake.Block = true
	c, store, _ := newTestController(t, fake)
	other := store.Create()

	c.NewConversation()
	streaming := c.CurrentConversationID()
	events := mustSend(t, c, "one")
	assert.Equal(t, session.Content("partial"), <-events)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.SendToConversation(context.Background(), other.ID, "two")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrBusy)
	}
	assert.True(t, c.IsLoading(), "the running stream is not cancelled")
	assert.Equal(t, streaming, c.CurrentConversationID())

	c.Cancel()
	drain(t, events)
	assert.Equal(t, "partial", c.Messages()[1].Content)
}

func TestSendToConversation(t *testing.T) {
	fake := llmtest.New("reply")
	c, store, _ := newTestController(t, fake)
	target := store.Create()
	c.NewConversation()

	events, err := c.SendToConversation(context.Background(), target.ID, "hi")
	require.NoError(t, err)
	drain(t, events)

	assert.Equal(t, target.ID, c.CurrentConversationID())
	conv, err := store.Get(target.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)

	_, err = c.SendToConversation(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestDeleteConversation(t *testing.T) {
	fake := llmtest.New("partial")
	fake.Block = true
	c, store, _ := newTestController(t, fake)
	events := mustSend(t, c, "one")
	<-events
	id := c.CurrentConversationID()

	assert.ErrorIs(t, c.DeleteConversation(id), ErrBusy)
	_, err := store.Get(id)
	assert.NoError(t, err, "a streaming conversation is kept")

	c.Cancel()
	drain(t, events)

	require.NoError(t, c.DeleteConversation(id))
	assert.Empty(t, c.CurrentConversationID())
	assert.Empty(t, c.Messages())
	assert.ErrorIs(t, c.DeleteConversation(id), storage.ErrConversationNotFound)
}

func TestCancelKeepsPartial(t *testing.T) {
	fake := llmtest.New("partial answer")
	fake.Block = true
	c, store, _ := newTestController(t, fake)

	events := mustSend(t, c, "question")
	assert.Equal(t, session.Content("partial answer"), <-events)
	c.Cancel()
	assert.Empty(t, drain(t, events), "no terminal event after cancel")

	assert.False(t, c.IsLoading())
	assert.Empty(t, c.ErrorMessage())
	assert.Equal(t, 1, fake.Resets(), "cancel resets the model session")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "partial answer", msgs[1].Content)

	conv, err := store.Get(c.CurrentConversationID())
	require.NoError(t, err)
	assert.Equal(t, "partial answer", conv.Messages[1].Content)
}

func TestNewConversation(t *testing.T) {
	fake := llmtest.New("ok")
	c, store, _ := newTestController(t, fake)
	drain(t, mustSend(t, c, "hi"))
	first := c.CurrentConversationID()

	c.NewConversation()

	assert.NotEqual(t, first, c.CurrentConversationID())
	assert.Empty(t, c.Messages())
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 1, fake.Resets())
}

func TestLoadConversation(t *testing.T) {
	fake := llmtest.New("answer")
	c, _, _ := newTestController(t, fake)
	drain(t, mustSend(t, c, "question one"))
	first := c.CurrentConversationID()

	c.NewConversation()
	drain(t, mustSend(t, c, "question two"))

	require.NoError(t, c.LoadConversation(first))
	assert.Equal(t, first, c.CurrentConversationID())

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "question one", msgs[0].Content)
	assert.Equal(t, []llm.Turn{
		{Role: llm.RoleUser, Content: "question one"},
		{Role: llm.RoleAssistant, Content: "answer"},
	}, fake.Seeded())

	assert.ErrorIs(t, c.LoadConversation("missing"), storage.ErrConversationNotFound)
}

func TestClearChat(t *testing.T) {
	fake := llmtest.New("ok")
	c, store, _ := newTestController(t, fake)
	drain(t, mustSend(t, c, "hi"))
	id := c.CurrentConversationID()

	c.ClearChat()

	assert.Empty(t, c.Messages())
	assert.Empty(t, c.CurrentConversationID())
	_, err := store.Get(id)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)

	// The next send starts a fresh conversation.
	drain(t, mustSend(t, c, "again"))
	assert.NotEmpty(t, c.CurrentConversationID())
	assert.Equal(t, 1, store.Len())
}

func TestNewShowsCurrentConversation(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := storage.NewConversationStore(mem, nil)
	conv := store.Create()
	require.NoError(t, store.AddMessage(model.NewUserMessage("earlier"), conv.ID))

	fake := llmtest.New()
	c := New(store, fake, nil)
	assert.Equal(t, conv.ID, c.CurrentConversationID())
	assert.Len(t, c.Messages(), 1)
	assert.Len(t, fake.Seeded(), 1)
}

func mustSend(t *testing.T, c *Controller, text string) <-chan session.Event {
	t.Helper()
	events, err := c.SendMessage(context.Background(), text)
	require.NoError(t, err)
	require.NotNil(t, events)
	return events
}
