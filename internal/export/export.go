// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a conversation in one format.
type Exporter interface {
	// Export returns the rendered document.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the extension including the dot, e.g. ".md".
	FileExtension() string

	// MimeType returns the document's media type.
	MimeType() string
}

// ErrUnknownFormat is returned by ForFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown export format")

// ErrEmptyConversation is returned when there is nothing to export.
var ErrEmptyConversation = errors.New("conversation has no messages")

// Formats lists the accepted format names.
var Formats = []string{"markdown", "json", "html"}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the markdown and HTML exporters. JSON always carries
// the complete record.
type Options struct {
	// IncludeMetadata adds front matter and a details section.
	IncludeMetadata bool

	// IncludeTimestamps adds a time to each message heading.
	IncludeTimestamps bool

	// Now stamps the export. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns options with metadata and timestamps on.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// ForFormat returns the exporter for name. "md" and "htm" are accepted as
// aliases.
func ForFormat(name string, opts *Options) (Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "markdown", "md", "":
		return &MarkdownExporter{options: opts}, nil
	case "json":
		return &JSONExporter{}, nil
	case "html", "htm":
		return &HTMLExporter{options: opts}, nil
	default:
		return nil, fmt.Errorf("%w %q, must be one of: %s", ErrUnknownFormat, name, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// FILES
// =============================================================================

// Filename returns a file name for conv such as
// "conversation_Go_channels_20250102_150405.md".
func Filename(conv *model.Conversation, exp Exporter, at time.Time) string {
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(conv.Title),
		at.Format("20060102_150405"),
		exp.FileExtension())
}

// WriteFile exports conv into dir and returns the written path.
func WriteFile(conv *model.Conversation, exp Exporter, dir string) (string, error) {
	data, err := exp.Export(conv)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, Filename(conv, exp, time.Now()))
	if err := util.AtomicWriteFileWithDir(path, data, 0o644, 0o755); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// sanitizeFilename replaces characters that are invalid in file names on
// common platforms and caps the length.
func sanitizeFilename(s string) string {
	const maxRunes = 50
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > maxRunes {
		runes = runes[:maxRunes]
	}

	var sb strings.Builder
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			sb.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			sb.WriteRune('_')
		case r < 32 || r == 127:
			sb.WriteRune('-')
		default:
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "conversation"
	}
	return sb.String()
}

func validate(conv *model.Conversation) error {
	if conv == nil || len(conv.Messages) == 0 {
		return ErrEmptyConversation
	}
	return nil
}

func roleLabel(r model.Role) string {
	return r.DisplayName()
}
