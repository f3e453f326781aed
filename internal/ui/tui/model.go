// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui is the interactive terminal chat.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/modelexplorer/internal/chat"
	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/session"
	"github.com/jeranaias/modelexplorer/internal/ui/render"
	"github.com/jeranaias/modelexplorer/internal/ui/styles"
)

const availabilityTimeout = 5 * time.Second

// =============================================================================
// MESSAGES
// =============================================================================

type availabilityMsg struct {
	status llm.AvailabilityStatus
}

type eventMsg struct {
	event session.Event
}

type streamClosedMsg struct{}

// =============================================================================
// MODEL
// =============================================================================

// Model is the bubbletea model for the chat screen. All conversation state
// lives in the chat.Controller; the model only renders it.
type Model struct {
	ctx      context.Context
	ctrl     *chat.Controller
	theme    *styles.Theme
	renderer *render.Renderer
	keys     KeyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	events <-chan session.Event
	// prompt is the text of the running exchange, restored to the input
	// when the exchange fails.
	prompt string
	notice string
	width  int
	height int
	ready  bool
}

// New creates the chat screen. ctx bounds every request the screen makes.
func New(ctx context.Context, ctrl *chat.Controller, theme *styles.Theme, renderer *render.Renderer) Model {
	input := textinput.New()
	input.Placeholder = "Send a message"
	input.Prompt = theme.Prompt.Render("> ")
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		theme:    theme,
		renderer: renderer,
		keys:     DefaultKeyMap(),
		viewport: viewport.New(render.DefaultWidth, 20),
		input:    input,
		spinner:  sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.checkAvailability())
}

func (m Model) checkAvailability() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
		defer cancel()
		return availabilityMsg{status: ctrl.RefreshAvailability(ctx)}
	}
}

// waitForEvent reads the next event of the running exchange.
func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.input.Width = msg.Width - 4
		m.renderer.SetWidth(msg.Width - 2)
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case availabilityMsg:
		m.layout()
		return m, nil

	case eventMsg:
		if msg.event.Type == session.EventError && m.input.Value() == "" {
			m.input.SetValue(m.prompt)
			m.input.CursorEnd()
		}
		m.refresh()
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.events = nil
		m.layout()
		return m, nil

	case spinner.TickMsg:
		if !m.ctrl.IsLoading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	loading := m.ctrl.IsLoading()

	switch {
	case loading && key.Matches(msg, m.keys.Cancel):
		m.ctrl.Cancel()
		m.notice = "Stopped."
		return m, nil

	case key.Matches(msg, m.keys.Quit):
		if loading {
			m.ctrl.Cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		m.ctrl.DismissError()
		m.notice = ""
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.New):
		if loading {
			return m, nil
		}
		m.ctrl.NewConversation()
		m.notice = "New conversation."
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		if loading {
			return m, nil
		}
		m.ctrl.ClearChat()
		m.notice = "Chat cleared."
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	events, err := m.ctrl.SendMessage(m.ctx, m.input.Value())
	switch {
	case errors.Is(err, chat.ErrBusy):
		return m, nil
	case err != nil:
		// The controller recorded the message; the banner shows it.
		m.layout()
		return m, nil
	case events == nil:
		return m, nil
	}

	m.prompt = m.input.Value()
	m.input.Reset()
	m.notice = ""
	m.events = events
	m.layout()
	return m, tea.Batch(m.spinner.Tick, waitForEvent(events))
}

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport around the chrome and re-renders the
// transcript.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	chrome := lineCount(m.header()) + lineCount(m.footer())
	h := m.height - chrome
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.refresh()
}

// refresh re-renders the transcript, following the bottom while streaming.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderer.Transcript(m.ctrl.Messages()))
	m.viewport.GotoBottom()
}
