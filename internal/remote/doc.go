// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package remote is the llm.Model backend for another modelexplorer server.
//
// Prompts are posted to the server's /api/stream endpoint and the returned
// event stream is decoded with sse.Decoder, so a remote answer reaches the
// terminal renderer as the same snapshot sequence a local backend produces.
// Availability is read from /api/status.
//
// Each session is a conversation on the server, which keeps the context
// between prompts:
//
//	m := remote.NewModel(remote.Config{BaseURL: "http://127.0.0.1:8080"}, logger)
//	snapshots, errs := m.Stream(ctx, "Hello")
package remote
