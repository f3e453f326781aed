// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat binds streaming sessions to a visible transcript and the
// conversation store.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/observability"
	"github.com/jeranaias/modelexplorer/internal/session"
	"github.com/jeranaias/modelexplorer/internal/storage"
)

// ErrBusy is returned when a send is attempted while a response streams.
var ErrBusy = errors.New("a response is already streaming")

// Controller is the UI-facing chat state. All methods are safe for
// concurrent use.
type Controller struct {
	store  *storage.ConversationStore
	model  llm.Model
	logger observability.Logger

	mu           sync.Mutex
	messages     []model.Message
	loading      bool
	errMessage   string
	availability llm.AvailabilityStatus
	convID       string
	cancel       context.CancelFunc
}

// New creates a controller showing the store's current conversation.
//
// Availability starts as available; call RefreshAvailability to check the
// model before the first send.
func New(store *storage.ConversationStore, m llm.Model, logger observability.Logger) *Controller {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	c := &Controller{
		store:        store,
		model:        m,
		logger:       logger.WithComponent("chat"),
		availability: llm.StatusAvailable(""),
	}
	if conv, ok := store.Current(); ok {
		c.convID = conv.ID
		c.messages = conv.Messages
		c.seed(conv.Messages)
	}
	return c
}

// =============================================================================
// STATE
// =============================================================================

// Messages returns a copy of the visible transcript.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Message(nil), c.messages...)
}

// IsLoading reports whether a response is streaming.
func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// ErrorMessage returns the dismissible error, or "".
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMessage
}

// Availability returns the last known model availability.
func (c *Controller) Availability() llm.AvailabilityStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availability
}

// CurrentConversationID returns the conversation shown, or "".
func (c *Controller) CurrentConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convID
}

// ModelName returns the backing model's name.
func (c *Controller) ModelName() string {
	return c.model.Name()
}

// =============================================================================
// SENDING
// =============================================================================

// SendMessage starts an exchange for text and returns its events. The
// transcript and the store are already updated when each event arrives.
// The channel closes after loading has been cleared; the caller must drain
// it.
//
// Blank input is ignored and returns (nil, nil). An unavailable model sets
// the error message and returns an llm.ErrUnavailable error.
func (c *Controller) SendMessage(ctx context.Context, text string) (<-chan session.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return nil, ErrBusy
	}
	return c.sendLocked(ctx, text)
}

// SendToConversation shows conversation id and sends text to it in one
// step. It fails with ErrBusy before touching the current conversation when
// a response is already streaming.
func (c *Controller) SendToConversation(ctx context.Context, id, text string) (<-chan session.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return nil, ErrBusy
	}
	if err := c.loadLocked(id); err != nil {
		return nil, err
	}
	return c.sendLocked(ctx, text)
}

// sendLocked records the prompt and a placeholder and starts the session.
// Caller holds c.mu and has checked c.loading.
func (c *Controller) sendLocked(ctx context.Context, text string) (<-chan session.Event, error) {
	if !c.availability.IsAvailable() {
		c.errMessage = c.availability.Summary()
		return nil, llm.NewUnavailableError(c.availability)
	}

	if _, err := c.store.Get(c.convID); err != nil {
		// A conversation deleted elsewhere leaves stale model context.
		if c.convID != "" {
			c.model.Reset()
		}
		conv := c.store.Create()
		c.convID = conv.ID
		c.messages = nil
	}
	convID := c.convID

	user := model.NewUserMessage(text)
	c.messages = append(c.messages, user)
	c.addToStore(user, convID)

	c.loading = true
	c.errMessage = ""

	placeholder := model.NewAssistantPlaceholder()
	c.messages = append(c.messages, placeholder)
	c.addToStore(placeholder, convID)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.logger.Debug("sending message", "conversation_id", convID, "length", len(text))

	out := make(chan session.Event)
	ex := exchange{convID: convID, userID: user.ID, placeholderID: placeholder.ID}
	go c.run(runCtx, cancel, text, ex, out)
	return out, nil
}

// exchange identifies the messages one send added.
type exchange struct {
	convID        string
	userID        string
	placeholderID string
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, prompt string, ex exchange, out chan<- session.Event) {
	defer close(out)
	defer cancel()

	s := session.New(c.model, c.logger)
	for ev := range s.Run(ctx, prompt) {
		c.apply(ev, ex)
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	res := s.Result()
	if res.Err != nil {
		var llmErr *llm.Error
		if errors.As(res.Err, &llmErr) && llmErr.Kind == llm.KindUnavailable && llmErr.Status.Title != "" {
			c.mu.Lock()
			c.availability = llmErr.Status
			c.mu.Unlock()
		}
	}
	if res.Cancelled {
		c.logger.Debug("response cancelled", "conversation_id", ex.convID, "length", len(res.Text))
	}

	c.mu.Lock()
	c.loading = false
	c.cancel = nil
	c.mu.Unlock()
}

// apply reflects one event in the transcript and the store.
func (c *Controller) apply(ev session.Event, ex exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case session.EventContent, session.EventDone:
		if c.showing(ex.convID, ex.placeholderID) {
			last := len(c.messages) - 1
			c.messages[last] = c.messages[last].WithContent(ev.Content)
		}
		if err := c.store.UpdateLastMessage(ex.convID, ev.Content); err != nil {
			c.logger.Debug("dropping update for missing conversation", "conversation_id", ex.convID, "error", err)
		}

	case session.EventError:
		if c.showing(ex.convID, ex.placeholderID) {
			c.messages = c.messages[:len(c.messages)-1]
			if c.showing(ex.convID, ex.userID) {
				c.messages = c.messages[:len(c.messages)-1]
			}
		}
		c.rollback(ex)
		c.errMessage = ev.Content
	}
}

// rollback removes the exchange's placeholder and prompt from the stored
// conversation, leaving it as it was before the send. Caller holds c.mu.
func (c *Controller) rollback(ex exchange) {
	conv, err := c.store.Get(ex.convID)
	if err != nil {
		return
	}
	if last, ok := conv.LastMessage(); !ok || last.ID != ex.placeholderID {
		return
	}
	conv.RemoveLast()
	if last, ok := conv.LastMessage(); ok && last.ID == ex.userID {
		conv.RemoveLast()
	}
	if conv.IsEmpty() {
		conv.SetTitle("")
	}
	if err := c.store.UpdateConversation(conv); err != nil {
		c.logger.Warn("rollback failed", "conversation_id", ex.convID, "error", err)
	}
}

// showing reports whether the transcript of convID is shown and ends with
// message id. Caller holds c.mu.
func (c *Controller) showing(convID, id string) bool {
	if c.convID != convID || len(c.messages) == 0 {
		return false
	}
	return c.messages[len(c.messages)-1].ID == id
}

// Cancel stops the streaming response, keeping its partial content.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// NewConversation starts an empty conversation and resets the model session.
// A streaming response is cancelled first.
func (c *Controller) NewConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	conv := c.store.Create()
	c.convID = conv.ID
	c.messages = nil
	c.errMessage = ""
	c.model.Reset()
}

// LoadConversation shows an existing conversation. The model session is
// reset and, when the model supports it, seeded with the transcript.
func (c *Controller) LoadConversation(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(id)
}

func (c *Controller) loadLocked(id string) error {
	conv, err := c.store.Get(id)
	if err != nil {
		return err
	}
	if err := c.store.SetCurrent(id); err != nil {
		return err
	}
	if id == c.convID {
		return nil
	}

	c.cancelLocked()
	c.convID = id
	c.messages = conv.Messages
	c.errMessage = ""
	c.model.Reset()
	c.seed(conv.Messages)
	return nil
}

// DeleteConversation deletes conversation id from the store. Deleting the
// conversation that is streaming fails with ErrBusy; deleting the one shown
// empties the transcript.
func (c *Controller) DeleteConversation(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == c.convID && c.loading {
		return ErrBusy
	}
	if err := c.store.Delete(id); err != nil {
		return err
	}
	if id == c.convID {
		c.convID = ""
		c.messages = nil
		c.errMessage = ""
		c.model.Reset()
	}
	return nil
}

// ClearChat deletes the current conversation, resets the model session and
// empties the transcript.
func (c *Controller) ClearChat() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	if c.convID != "" {
		if err := c.store.Delete(c.convID); err != nil && !errors.Is(err, storage.ErrConversationNotFound) {
			c.logger.Warn("failed to delete conversation", "conversation_id", c.convID, "error", err)
		}
	}
	c.convID = ""
	c.messages = nil
	c.errMessage = ""
	c.model.Reset()
}

// DismissError clears the error message.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMessage = ""
}

// RefreshAvailability checks the model and records the result.
func (c *Controller) RefreshAvailability(ctx context.Context) llm.AvailabilityStatus {
	status := c.model.CheckAvailability(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.availability = status
	if status.IsAvailable() {
		c.logger.Debug("model available", "model", c.model.Name())
	} else {
		c.logger.Info("model unavailable", "model", c.model.Name(), "reason", status.Reason())
	}
	return status
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Controller) addToStore(msg model.Message, convID string) {
	if err := c.store.AddMessage(msg, convID); err != nil {
		c.logger.Warn("failed to record message", "conversation_id", convID, "error", err)
	}
}

func (c *Controller) cancelLocked() {
	if c.cancel != nil {
		c.cancel()
	}
}

// seed hands a transcript to models that can rebuild context from it.
func (c *Controller) seed(messages []model.Message) {
	seeder, ok := c.model.(llm.Seeder)
	if !ok {
		return
	}
	turns := make([]llm.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, llm.Turn{Role: llm.Role(m.Role), Content: m.Content})
	}
	seeder.Seed(turns)
}
