// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export converts saved conversations into portable documents.
//
// Supported formats:
//   - markdown: front matter plus one section per message
//   - json: the conversation record as stored
//   - html: a self-contained page with embedded CSS and no scripts
//
// Usage:
//
//	exp, err := export.ForFormat("markdown", export.DefaultOptions())
//	data, err := exp.Export(conv)
//	path, err := export.WriteFile(conv, exp, dir)
package export
