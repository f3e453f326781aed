// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the modelexplorer command tree.
//
// # Commands
//
//   - chat: interactive chat (default). --plain uses a line editor instead
//     of the full-screen interface.
//   - ask: one-shot streamed answer.
//   - serve: HTTP API with server-sent event streaming.
//   - list, show, rename, export, delete, clear: manage saved conversations.
//     Any unique ID prefix is accepted.
//   - status: model availability.
//
// Every command shares the global flags --config, --log-level, --provider,
// --model and --offline, which override the config file and MODELEXPLORER_*
// environment variables. --server URL uses another modelexplorer server as
// the model, so chat and ask can run against a remote serve.
//
// # Exit Codes
//
// 0 success, 1 general failure, 2 usage, 3 config, 4 model unavailable,
// 7 conversation not found.
package cli
