// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai is the llm.Model backend for OpenAI-compatible chat APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/observability"
)

// Config configures the backend.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	// Timeout bounds availability checks and Complete. Streams are bounded
	// by the caller's context only.
	Timeout time.Duration
	// ProbeRetries is the number of attempts for the availability check.
	ProbeRetries int
}

// Model is an llm.Model backed by an OpenAI-compatible API.
type Model struct {
	config  Config
	client  *openai.Client
	history *llm.History
	logger  observability.Logger
}

var (
	_ llm.Model  = (*Model)(nil)
	_ llm.Seeder = (*Model)(nil)
)

// NewModel creates a model session.
func NewModel(cfg Config, logger observability.Logger) *Model {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.ProbeRetries <= 0 {
		cfg.ProbeRetries = 2
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{}

	return &Model{
		config:  cfg,
		client:  openai.NewClientWithConfig(clientConfig),
		history: llm.NewHistory(cfg.SystemPrompt),
		logger:  logger.WithComponent("openai"),
	}
}

// Name implements llm.Model.
func (m *Model) Name() string {
	return "openai/" + m.config.Model
}

// CheckAvailability implements llm.Model.
func (m *Model) CheckAvailability(ctx context.Context) llm.AvailabilityStatus {
	if strings.TrimSpace(m.config.APIKey) == "" {
		return llm.StatusUnavailable(llm.DisabledByPolicy,
			"No API key is configured.",
			"Set openai.api_key in the config or export OPENAI_API_KEY.")
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	var models openai.ModelsList
	err := m.doWithRetry(ctx, func() error {
		var err error
		models, err = m.client.ListModels(ctx)
		return err
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden) {
			return llm.StatusUnavailable(llm.DisabledByPolicy,
				"The API key was rejected.",
				"Check openai.api_key.")
		}
		return llm.StatusUnavailable(llm.NotReady,
			fmt.Sprintf("Cannot reach %s.", m.baseURL()),
			"Check openai.base_url and your network connection.")
	}

	// Some compatible servers return an empty list; only a non-empty list
	// that lacks the model is conclusive.
	if len(models.Models) > 0 && !containsModel(models.Models, m.config.Model) {
		return llm.StatusUnavailable(llm.NotReady,
			fmt.Sprintf("Model %q is not offered by %s.", m.config.Model, m.baseURL()),
			"Set model.name to one of the listed models.")
	}
	return llm.StatusAvailable(fmt.Sprintf("%s is ready.", m.config.Model))
}

// Stream implements llm.Model.
func (m *Model) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(out)

		req := openai.ChatCompletionRequest{
			Model:    m.config.Model,
			Messages: toMessages(m.history.With(prompt)),
			Stream:   true,
		}
		stream, err := m.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errs <- m.classify(ctx, err)
			return
		}
		defer stream.Close()

		var content strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errs <- m.classify(ctx, err)
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			content.WriteString(resp.Choices[0].Delta.Content)
			if !llm.Send(ctx, out, content.String()) {
				errs <- ctx.Err()
				return
			}
		}

		m.history.Commit(prompt, content.String())
	}()

	return out, errs
}

// Complete implements llm.Model.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    m.config.Model,
		Messages: toMessages(m.history.With(prompt)),
	})
	if err != nil {
		return "", m.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.NewSessionError("Generation failed", errors.New("empty chat response"))
	}
	text := resp.Choices[0].Message.Content
	m.history.Commit(prompt, text)
	return text, nil
}

// Reset implements llm.Model.
func (m *Model) Reset() {
	m.history.Reset()
}

// Fork implements llm.Model. The fork shares the API client.
func (m *Model) Fork() llm.Model {
	return &Model{
		config:  m.config,
		client:  m.client,
		history: m.history.Fresh(),
		logger:  m.logger,
	}
}

// Seed implements llm.Seeder.
func (m *Model) Seed(turns []llm.Turn) {
	m.history.Seed(turns)
}

// doWithRetry executes fn with exponential backoff. Only the availability
// check uses it; generation failures are surfaced, never retried.
func (m *Model) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < m.config.ProbeRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == m.config.ProbeRetries-1 {
			break
		}
		waitTime := time.Duration(math.Pow(2, float64(attempt))) * 250 * time.Millisecond
		m.logger.Debug("openai request failed, retrying",
			"attempt", attempt+1,
			"wait", waitTime,
			"error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return lastErr
}

func (m *Model) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return ctxErr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return llm.NewUnavailableError(llm.StatusUnavailable(llm.DisabledByPolicy,
				"The API key was rejected.", "Check openai.api_key."))
		case http.StatusNotFound:
			return llm.NewUnavailableError(llm.StatusUnavailable(llm.NotReady,
				fmt.Sprintf("Model %q was not found.", m.config.Model),
				"Set model.name to a model the server offers."))
		}
	}
	m.logger.Warn("openai request failed", "model", m.config.Model, "error", err)
	return llm.NewSessionError("Generation failed", err)
}

func (m *Model) baseURL() string {
	if m.config.BaseURL == "" {
		return "the OpenAI API"
	}
	return m.config.BaseURL
}

func containsModel(models []openai.Model, name string) bool {
	for _, mdl := range models {
		if mdl.ID == name {
			return true
		}
	}
	return false
}

func toMessages(turns []llm.Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		}
	}
	return out
}
