// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama is the llm.Model backend for a local Ollama server.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API (/, /api/tags, /api/chat)
//   - StreamReader: NDJSON decoder that accumulates deltas into full text
//   - Model: llm.Model with session history on top of Client
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url})
//	m := ollama.NewModel(client, "llama3.2", "", logger)
//	snapshots, errs := m.Stream(ctx, "Hello")
//	for s := range snapshots {
//	    render(s) // full text so far
//	}
//	if err := <-errs; err != nil {
//	    ...
//	}
//
// Availability maps onto llm kinds: an unreachable server is
// UnsupportedEnvironment and a model that has not been pulled is NotReady.
package ollama
