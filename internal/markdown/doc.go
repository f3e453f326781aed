// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown parses assistant responses into typed blocks.
//
// The parser understands the subset of markdown that chat models emit most:
// ATX headings, bullet and numbered lists, fenced code and paragraphs.
// Inline emphasis is split out separately by Inline so renderers can style
// it without re-scanning block structure.
//
// # Usage
//
//	for _, b := range markdown.Parse(content) {
//	    switch b.Kind {
//	    case markdown.KindCode:
//	        renderCode(b.Text, b.Lang)
//	    case markdown.KindHeading:
//	        renderHeading(b.Level, b.Text)
//	    }
//	}
package markdown
