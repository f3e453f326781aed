// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modelexplorer/internal/chat"
	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/llm/llmtest"
	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/storage"
	"github.com/jeranaias/modelexplorer/internal/ui/render"
	"github.com/jeranaias/modelexplorer/internal/ui/styles"
)

func newTestModel(t *testing.T, fake *llmtest.Fake) (Model, *chat.Controller) {
	t.Helper()
	store := storage.NewConversationStore(storage.NewMemoryStore(), nil)
	ctrl := chat.New(store, fake, nil)
	theme := styles.NewThemeWithProfile(termenv.Ascii)
	m := New(context.Background(), ctrl, theme, render.New(theme, 80, ""))

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model), ctrl
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

// send types text and presses enter.
func send(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	return m
}

// drain feeds every event of the running exchange back into the model.
func drain(t *testing.T, m Model) Model {
	t.Helper()
	for m.events != nil {
		m, _ = update(t, m, waitForEvent(m.events)())
	}
	return m
}

func TestSendStreamsIntoTranscript(t *testing.T) {
	m, ctrl := newTestModel(t, llmtest.New("Hel", "Hello **world**"))

	m = send(t, m, "hi")
	require.NotNil(t, m.events)
	assert.True(t, ctrl.IsLoading())
	assert.Empty(t, m.input.Value(), "input clears after sending")

	m = drain(t, m)
	assert.False(t, ctrl.IsLoading())

	view := m.View()
	assert.Contains(t, view, "You")
	assert.Contains(t, view, "hi")
	assert.Contains(t, view, "Hello world")

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello **world**", msgs[1].Content)
}

func TestBlankInputIgnored(t *testing.T) {
	fake := llmtest.New("x")
	m, _ := newTestModel(t, fake)

	m = send(t, m, "   ")
	assert.Nil(t, m.events)
	assert.Empty(t, fake.Prompts())
}

func TestEscCancelsStream(t *testing.T) {
	fake := llmtest.New("partial")
	fake.Block = true
	m, ctrl := newTestModel(t, fake)

	m = send(t, m, "go")
	m, _ = update(t, m, waitForEvent(m.events)())
	assert.Contains(t, m.View(), "partial")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, cmd, "esc while streaming must not quit")
	m = drain(t, m)

	assert.False(t, ctrl.IsLoading())
	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "partial", msgs[1].Content, "partial response is kept")
	assert.Empty(t, ctrl.ErrorMessage())
}

func TestCtrlCQuitsWhenIdle(t *testing.T) {
	m, _ := newTestModel(t, llmtest.New())

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestNewConversationAndClear(t *testing.T) {
	m, ctrl := newTestModel(t, llmtest.New("ok"))

	m = drain(t, send(t, m, "first"))
	firstID := ctrl.CurrentConversationID()
	require.NotEmpty(t, firstID)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Empty(t, ctrl.Messages())
	assert.Contains(t, m.View(), "New conversation.")

	m = drain(t, send(t, m, "second"))
	assert.NotEqual(t, firstID, ctrl.CurrentConversationID())
	require.Len(t, ctrl.Messages(), 2)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, ctrl.Messages())
	assert.Contains(t, m.View(), "Chat cleared.")
}

func TestUnavailableBanner(t *testing.T) {
	fake := llmtest.New("x")
	fake.SetStatus(llm.StatusUnavailable(llm.NotReady, "Model \"llama3.2\" is not installed.", "Run `ollama pull llama3.2`."))
	m, ctrl := newTestModel(t, fake)

	m, _ = update(t, m, m.checkAvailability()())
	view := m.View()
	assert.Contains(t, view, "Model Not Ready")
	assert.Contains(t, view, "is not installed")
	assert.Contains(t, view, "ollama pull llama3.2")

	m = send(t, m, "hi")
	assert.Nil(t, m.events)
	assert.Empty(t, fake.Prompts())
	assert.NotEmpty(t, ctrl.ErrorMessage())

	fake.SetStatus(llm.StatusAvailable("ready"))
	m, _ = update(t, m, m.checkAvailability()())
	assert.NotContains(t, m.View(), "ollama pull llama3.2")
}

func TestStreamErrorShownAndRolledBack(t *testing.T) {
	fake := llmtest.New("half")
	fake.Err = llm.NewSessionError("Generation failed", assert.AnError)
	m, ctrl := newTestModel(t, fake)

	m = drain(t, send(t, m, "hi"))

	assert.Empty(t, ctrl.Messages(), "the failed exchange is removed")
	assert.Contains(t, m.View(), "Generation failed")
	assert.Equal(t, "hi", m.input.Value(), "the prompt is restored for resending")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Empty(t, ctrl.ErrorMessage())
	assert.NotContains(t, m.View(), "Generation failed")
}

func TestViewBeforeSize(t *testing.T) {
	store := storage.NewConversationStore(storage.NewMemoryStore(), nil)
	theme := styles.NewThemeWithProfile(termenv.Ascii)
	m := New(context.Background(), chat.New(store, llmtest.New(), nil), theme, render.New(theme, 0, ""))
	assert.Equal(t, "Loading…", m.View())
}
