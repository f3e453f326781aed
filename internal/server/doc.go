// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes a model over HTTP.
//
// # Endpoints
//
//   - POST   /api/chat                - one-shot completion as JSON
//   - POST   /api/stream              - streamed completion as server-sent events
//   - GET    /api/status              - availability of the configured model
//   - GET    /api/conversations       - saved conversation summaries
//   - POST   /api/conversations       - create an empty conversation
//   - GET    /api/conversations/{id}  - one conversation with its messages
//   - DELETE /api/conversations/{id}  - delete a conversation
//   - GET    /api/conversations/{id}/export?format=markdown|json|html - download
//   - GET    /healthz                 - liveness
//   - GET    /                        - embedded web client
//
// Each stream frame is a single data line holding a JSON object of the form
// {"type":"content"|"done"|"error","content":"..."}. Content frames carry
// the full response so far, not a delta. Terminal frames also carry an
// RFC 3339 timestamp.
//
// A stream request that names a conversationId is recorded in that
// conversation. Only one such stream runs at a time; concurrent requests
// get 409.
//
// # Middleware
//
// Requests pass through panic recovery, request logging with X-Request-Id,
// security headers, CORS and a per-client token bucket rate limiter.
package server
