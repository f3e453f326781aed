// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/modelexplorer/internal/config"
	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/offline"
	"github.com/jeranaias/modelexplorer/internal/ollama"
	"github.com/jeranaias/modelexplorer/internal/openai"
	"github.com/jeranaias/modelexplorer/internal/remote"
	"github.com/jeranaias/modelexplorer/internal/storage"
	"github.com/jeranaias/modelexplorer/internal/storage/sqlite"
)

// NewModel creates the configured model backend.
func (a *App) NewModel() (llm.Model, error) {
	cfg := a.Config
	policy := offline.Policy{Enabled: cfg.Model.Offline}
	switch cfg.Model.Provider {
	case config.ProviderOllama:
		client := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL: cfg.Ollama.URL,
			Timeout: seconds(cfg.Ollama.TimeoutSecs),
			Model:   cfg.Model.Name,
		})
		m := ollama.NewModel(client, cfg.Model.Name, cfg.Model.SystemPrompt, a.Logger)
		return offline.Guard(m, cfg.Ollama.URL, policy), nil

	case config.ProviderOpenAI:
		m := openai.NewModel(openai.Config{
			BaseURL:      cfg.OpenAI.BaseURL,
			APIKey:       cfg.OpenAI.APIKey,
			Model:        cfg.Model.Name,
			SystemPrompt: cfg.Model.SystemPrompt,
			Timeout:      seconds(cfg.OpenAI.TimeoutSecs),
		}, a.Logger)
		return offline.Guard(m, cfg.OpenAI.BaseURL, policy), nil

	case config.ProviderRemote:
		m := remote.NewModel(remote.Config{
			BaseURL: cfg.Remote.URL,
			Timeout: seconds(cfg.Remote.TimeoutSecs),
		}, a.Logger)
		return offline.Guard(m, cfg.Remote.URL, policy), nil

	default:
		return nil, &ConfigError{Err: fmt.Errorf("unknown provider %q", cfg.Model.Provider)}
	}
}

// OpenStore opens the configured conversation store.
func (a *App) OpenStore() (*storage.ConversationStore, error) {
	cfg := a.Config.Storage

	var (
		p   storage.Persister
		err error
	)
	switch cfg.Backend {
	case config.BackendFile:
		p, err = storage.NewFileStore(cfg.Dir)
	case config.BackendSQLite:
		p, err = sqlite.Open(cfg.SQLitePath)
	case config.BackendMemory:
		p = storage.NewMemoryStore()
	default:
		return nil, &ConfigError{Err: fmt.Errorf("unknown storage backend %q", cfg.Backend)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Backend, err)
	}
	return storage.NewConversationStore(p, a.Logger), nil
}

// resolveID finds the conversation whose ID is arg or starts with it. A
// prefix must be unambiguous.
func resolveID(store *storage.ConversationStore, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", &UsageError{Message: "conversation ID is required"}
	}
	if _, err := store.Get(arg); err == nil {
		return arg, nil
	}

	var matches []string
	for _, s := range store.Summaries() {
		if strings.HasPrefix(s.ID, arg) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", &NotFoundError{ID: arg}
	case 1:
		return matches[0], nil
	default:
		return "", &UsageError{Message: fmt.Sprintf("ID prefix %q matches %d conversations", arg, len(matches))}
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
