// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/observability"
	"github.com/jeranaias/modelexplorer/internal/server"
	"github.com/jeranaias/modelexplorer/internal/session"
	"github.com/jeranaias/modelexplorer/internal/sse"
)

// DefaultTimeout bounds status checks and conversation creation. Streams are
// bounded by the caller's context only.
const DefaultTimeout = 30 * time.Second

// ErrBusy is the cause of a session failure when the server is already
// streaming a response.
var ErrBusy = errors.New("server is busy with another response")

// Config configures the backend.
type Config struct {
	// BaseURL is the server root, e.g. http://127.0.0.1:8080.
	BaseURL string
	Timeout time.Duration
	// HTTPClient defaults to a client without a timeout.
	HTTPClient *http.Client
}

// Model is an llm.Model served by another modelexplorer instance. Its
// session lives in a conversation on that server, created on the first
// prompt and dropped by Reset.
type Model struct {
	config Config
	http   *http.Client
	logger observability.Logger

	mu     sync.Mutex
	convID string
}

var _ llm.Model = (*Model)(nil)

// NewModel creates a model for the server at cfg.BaseURL.
func NewModel(cfg Config, logger observability.Logger) *Model {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Model{
		config: cfg,
		http:   client,
		logger: logger.WithComponent("remote"),
	}
}

// Name implements llm.Model.
func (m *Model) Name() string {
	if u, err := url.Parse(m.config.BaseURL); err == nil && u.Host != "" {
		return "remote/" + u.Host
	}
	return "remote/" + m.config.BaseURL
}

// ConversationID returns the server conversation of the session, or "".
func (m *Model) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.convID
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// CheckAvailability implements llm.Model. The server's own status is passed
// through; an unreachable server is UnsupportedEnvironment.
func (m *Model) CheckAvailability(ctx context.Context) llm.AvailabilityStatus {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	var status server.StatusResponse
	if err := m.getJSON(ctx, "/api/status", &status); err != nil {
		m.logger.Debug("server unreachable", "url", m.config.BaseURL, "error", err)
		return m.unreachable()
	}
	if status.Available {
		return llm.StatusAvailable(status.Message)
	}

	kind, ok := llm.ParseAvailabilityKind(status.Reason)
	if !ok || kind == llm.Available {
		kind = llm.NotReady
	}
	return llm.StatusUnavailable(kind, status.Message, status.Remediation)
}

func (m *Model) unreachable() llm.AvailabilityStatus {
	return llm.StatusUnavailable(llm.UnsupportedEnvironment,
		fmt.Sprintf("Cannot reach modelexplorer at %s.", m.config.BaseURL),
		"Start it with `modelexplorer serve`, or set remote.url in the config.")
}

// =============================================================================
// GENERATION
// =============================================================================

// Stream implements llm.Model. Frames from the server's event stream are
// decoded back into snapshots.
func (m *Model) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(out)

		resp, err := m.openStream(ctx, prompt)
		if err != nil {
			errs <- m.classify(ctx, err)
			return
		}
		defer resp.Body.Close()

		dec := sse.NewDecoder(resp.Body)
		if resp.StatusCode == http.StatusServiceUnavailable {
			errs <- m.unavailableFrom(dec)
			return
		}

		var last string
		for {
			ev, err := dec.NextEvent()
			if errors.Is(err, io.EOF) {
				// A stream that ends without done was cut off.
				errs <- m.classify(ctx, io.ErrUnexpectedEOF)
				return
			}
			if err != nil {
				errs <- m.classify(ctx, err)
				return
			}

			switch ev.Type {
			case session.EventContent:
				last = ev.Content
				if !llm.Send(ctx, out, last) {
					errs <- ctx.Err()
					return
				}
			case session.EventDone:
				if ev.Content != last && !llm.Send(ctx, out, ev.Content) {
					errs <- ctx.Err()
				}
				return
			case session.EventError:
				errs <- llm.NewSessionError(ev.Content, nil)
				return
			}
		}
	}()

	return out, errs
}

// openStream posts prompt to the session's conversation, creating it first
// when needed. A conversation deleted on the server is replaced once.
func (m *Model) openStream(ctx context.Context, prompt string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		convID, err := m.conversation(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := m.post(ctx, "/api/stream", server.ChatRequest{Message: prompt, ConversationID: convID})
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusServiceUnavailable:
			return resp, nil
		case http.StatusNotFound:
			resp.Body.Close()
			m.forget(convID)
			if attempt == 0 {
				m.logger.Debug("server conversation missing, starting another", "conversation_id", convID)
				continue
			}
			return nil, errors.New("server conversation not found")
		case http.StatusConflict:
			resp.Body.Close()
			return nil, ErrBusy
		default:
			defer resp.Body.Close()
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, errorBody(resp.Body))
		}
	}
}

// conversation returns the session's server conversation, creating one.
func (m *Model) conversation(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.convID != "" {
		return m.convID, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	resp, err := m.post(ctx, "/api/conversations", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("creating conversation: server returned %d: %s", resp.StatusCode, errorBody(resp.Body))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		return "", fmt.Errorf("creating conversation: invalid response")
	}
	m.convID = created.ID
	return m.convID, nil
}

func (m *Model) forget(convID string) {
	m.mu.Lock()
	if m.convID == convID {
		m.convID = ""
	}
	m.mu.Unlock()
}

// unavailableFrom turns the error frame of a 503 stream into an
// unavailability error.
func (m *Model) unavailableFrom(dec *sse.Decoder) error {
	message := "The server's model is unavailable."
	if ev, err := dec.NextEvent(); err == nil && ev.Content != "" {
		message = ev.Content
	}
	return llm.NewUnavailableError(llm.StatusUnavailable(llm.NotReady, message,
		"Run `modelexplorer status` on the server."))
}

// Complete implements llm.Model.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	return llm.Collect(m.Stream(ctx, prompt))
}

// Reset implements llm.Model. The next prompt starts a new server
// conversation; the old one stays on the server.
func (m *Model) Reset() {
	m.mu.Lock()
	m.convID = ""
	m.mu.Unlock()
}

// Fork implements llm.Model.
func (m *Model) Fork() llm.Model {
	return &Model{config: m.config, http: m.http, logger: m.logger}
}

func (m *Model) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return llm.NewUnavailableError(m.unreachable())
	}
	m.logger.Warn("remote request failed", "url", m.config.BaseURL, "error", err)
	return llm.NewSessionError("Generation failed", err)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func (m *Model) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (m *Model) post(ctx context.Context, path string, body any) (*http.Response, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", sse.ContentType)
	return m.http.Do(req)
}

// errorBody extracts the message of a JSON error response.
func errorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(data))
}
