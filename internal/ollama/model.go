// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/observability"
)

// Model is an llm.Model backed by a local Ollama server.
type Model struct {
	client  *Client
	name    string
	history *llm.History
	logger  observability.Logger
}

var (
	_ llm.Model  = (*Model)(nil)
	_ llm.Seeder = (*Model)(nil)
)

// NewModel creates a model session for name on client.
func NewModel(client *Client, name, systemPrompt string, logger observability.Logger) *Model {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if name == "" {
		name = client.Config().Model
	}
	return &Model{
		client:  client,
		name:    name,
		history: llm.NewHistory(systemPrompt),
		logger:  logger.WithComponent("ollama"),
	}
}

// Name implements llm.Model.
func (m *Model) Name() string {
	return "ollama/" + m.name
}

// CheckAvailability implements llm.Model.
func (m *Model) CheckAvailability(ctx context.Context) llm.AvailabilityStatus {
	if err := m.client.CheckRunning(ctx); err != nil {
		m.logger.Debug("ollama unreachable", "url", m.client.Config().BaseURL, "error", err)
		return llm.StatusUnavailable(llm.UnsupportedEnvironment,
			fmt.Sprintf("Cannot reach Ollama at %s.", m.client.Config().BaseURL),
			"Start Ollama with `ollama serve`, or set ollama.url in the config.")
	}

	ok, err := m.client.HasModel(ctx, m.name)
	if err != nil {
		return llm.StatusUnavailable(llm.NotReady,
			"Ollama is running but did not list its models.",
			"Check the Ollama server logs and try again.")
	}
	if !ok {
		return llm.StatusUnavailable(llm.NotReady,
			fmt.Sprintf("Model %q is not installed.", m.name),
			fmt.Sprintf("Run `ollama pull %s`.", m.name))
	}
	return llm.StatusAvailable(fmt.Sprintf("%s is ready.", m.name))
}

// Stream implements llm.Model. Deltas from the server are accumulated into
// snapshots. A completed exchange is added to the session history; a failed
// or cancelled one is not.
func (m *Model) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(out)

		reader, closeBody, err := m.client.ChatStream(ctx, m.name, fromTurns(m.history.With(prompt)))
		if err != nil {
			errs <- m.classify(ctx, err)
			return
		}
		defer closeBody()

		for {
			chunk, err := reader.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errs <- m.classify(ctx, err)
				return
			}
			if chunk.Content != "" {
				if !llm.Send(ctx, out, reader.Accumulated()) {
					errs <- ctx.Err()
					return
				}
			}
			if chunk.Done {
				m.logger.Debug("stream complete",
					"model", chunk.Model,
					"tokens", chunk.CompletionTokens,
					"duration", chunk.TotalDuration,
					"done_reason", chunk.DoneReason)
				break
			}
		}

		m.history.Commit(prompt, reader.Accumulated())
	}()

	return out, errs
}

// Complete implements llm.Model.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Chat(ctx, m.name, fromTurns(m.history.With(prompt)))
	if err != nil {
		return "", m.classify(ctx, err)
	}
	m.history.Commit(prompt, resp.Message.Content)
	return resp.Message.Content, nil
}

// Reset implements llm.Model.
func (m *Model) Reset() {
	m.history.Reset()
}

// Fork implements llm.Model. The fork shares the HTTP client.
func (m *Model) Fork() llm.Model {
	return &Model{
		client:  m.client,
		name:    m.name,
		history: m.history.Fresh(),
		logger:  m.logger,
	}
}

// Seed implements llm.Seeder.
func (m *Model) Seed(turns []llm.Turn) {
	m.history.Seed(turns)
}

// classify turns a client error into the llm error taxonomy.
func (m *Model) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch {
	case IsNotRunning(err):
		return llm.NewUnavailableError(llm.StatusUnavailable(llm.UnsupportedEnvironment,
			"Ollama stopped responding.", "Start Ollama with `ollama serve`."))
	case IsModelNotFound(err):
		return llm.NewUnavailableError(llm.StatusUnavailable(llm.NotReady,
			fmt.Sprintf("Model %q is not installed.", m.name),
			fmt.Sprintf("Run `ollama pull %s`.", m.name)))
	default:
		m.logger.Warn("ollama request failed", "model", m.name, "error", err)
		return llm.NewSessionError("Generation failed", err)
	}
}
