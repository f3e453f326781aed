// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across modelexplorer.
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, StringWidth, PadRight: terminal cell aware helpers
//   - SingleLine: whitespace collapsing for previews
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//   - RemoveFile: delete that tolerates missing files
//
// # Usage
//
//	display := util.TruncateWidth(title, 40)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
